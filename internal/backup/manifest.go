package backup

import (
	"sync"
	"time"
)

// ManifestEntry records one proposed deletion and the safety gate's verdict
// on it, written before the corresponding destructive command is ever
// issued.
type ManifestEntry struct {
	Path      string
	Operation string
	Reason    string
	Validated bool
	Timestamp time.Time
}

// DeletionManifest is an append-only, single-mutex-guarded record of every
// deletion this process has proposed, validated or not. Nothing ever
// removes an entry.
type DeletionManifest struct {
	mu      sync.Mutex
	entries []ManifestEntry
}

// NewDeletionManifest builds an empty manifest.
func NewDeletionManifest() *DeletionManifest {
	return &DeletionManifest{}
}

// Append records entry. Called for every proposed deletion, validated or
// not, strictly before the corresponding command is dispatched.
func (m *DeletionManifest) Append(path, operation, reason string, validated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, ManifestEntry{
		Path:      path,
		Operation: operation,
		Reason:    reason,
		Validated: validated,
		Timestamp: time.Now().UTC(),
	})
}

// Entries returns a snapshot copy of every recorded entry.
func (m *DeletionManifest) Entries() []ManifestEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ManifestEntry, len(m.entries))
	copy(out, m.entries)
	return out
}
