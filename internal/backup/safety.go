// Package backup captures and restores target-host state before and after
// a migration, gated throughout by a pure safety validator that never lets
// a destructive command reach a path it shouldn't.
package backup

import (
	"fmt"
	"path"
	"strings"
)

// denyRoots is the deny-list: any resolved path equal to, or nested under,
// one of these is rejected outright regardless of extension or filename.
// The root "/" is rejected only when the path is "/" itself.
var denyRoots = []string{
	"/", "/bin", "/boot", "/dev", "/etc", "/lib", "/proc", "/root", "/sbin",
	"/sys", "/usr", "/var/log", "/var/lib", "/home", "/mnt", "/opt",
}

// allowRoots is the safe-deletion area: anything under one of these needs
// no further extension/filename check.
var allowRoots = []string{"/tmp", "/var/tmp", "/opt/migration_temp"}

// allowedExtensions and allowedFilenames gate deletions OUTSIDE allowRoots
// that are nonetheless considered safe by file type.
var allowedExtensions = []string{".tar.gz", ".tar", ".zip", ".tmp", ".temp", ".migration"}
var allowedFilenames = []string{"docker-compose.yml", "docker-compose.yaml"}

// zfsSnapshotPrefixes is the allow-list of snapshot-name prefixes this
// system is permitted to destroy.
var zfsSnapshotPrefixes = []string{"migrate_", "migration_", "backup_", "temp_"}

// DeletionOutcome is the result of a deletion-path validation.
type DeletionOutcome struct {
	Validated bool
	Reason    string
}

// SafetyGate is a pure validator; it never performs I/O and never takes a
// context, matching the rest of this codebase's suspension-point
// discipline (pure functions don't suspend).
type SafetyGate struct{}

// NewSafetyGate constructs a SafetyGate. It carries no state: every check
// is a pure function of its arguments.
func NewSafetyGate() *SafetyGate { return &SafetyGate{} }

// ValidateDeletionPath decides whether rawPath may be passed to a
// destructive remote command (rm -rf, tar overwrite, etc). It never
// resolves the path against a live filesystem: only string-level
// normalization via path.Clean, so the check stays pure and can run
// before any session is opened.
func (g *SafetyGate) ValidateDeletionPath(rawPath string) DeletionOutcome {
	if strings.Contains(rawPath, "..") {
		return DeletionOutcome{Validated: false, Reason: "path traversal ('..') present in input"}
	}
	if !strings.HasPrefix(rawPath, "/") {
		return DeletionOutcome{Validated: false, Reason: "not an absolute path"}
	}

	cleaned := path.Clean(rawPath)

	// Allow roots take precedence: /opt/migration_temp sits under the
	// deny-listed /opt and must still be usable as a scratch area.
	for _, allow := range allowRoots {
		if cleaned == allow || strings.HasPrefix(cleaned, allow+"/") {
			return DeletionOutcome{Validated: true, Reason: fmt.Sprintf("within allow-listed safe area %s", allow)}
		}
	}

	for _, deny := range denyRoots {
		if cleaned == deny || strings.HasPrefix(cleaned, deny+"/") {
			return DeletionOutcome{Validated: false, Reason: fmt.Sprintf("path is within deny-listed root %s", deny)}
		}
	}

	base := path.Base(cleaned)
	for _, fname := range allowedFilenames {
		if base == fname {
			return DeletionOutcome{Validated: true, Reason: "matches allowed compose filename"}
		}
	}
	for _, ext := range allowedExtensions {
		if strings.HasSuffix(base, ext) {
			return DeletionOutcome{Validated: true, Reason: fmt.Sprintf("matches allowed extension %s", ext)}
		}
	}

	return DeletionOutcome{Validated: false, Reason: "outside allow-list and does not match an allowed extension or filename"}
}

// ValidateZFSSnapshotDeletion decides whether a dataset@snapshot reference
// may be destroyed: the reference must contain exactly one '@', and the
// snapshot name must begin with one of the allowed prefixes and be at
// least 10 characters long.
func (g *SafetyGate) ValidateZFSSnapshotDeletion(snapshotRef string) DeletionOutcome {
	if strings.Count(snapshotRef, "@") != 1 {
		return DeletionOutcome{Validated: false, Reason: "not a dataset@snapshot reference"}
	}
	parts := strings.SplitN(snapshotRef, "@", 2)
	name := parts[1]

	if len(name) < 10 {
		return DeletionOutcome{Validated: false, Reason: "snapshot name shorter than 10 characters"}
	}
	for _, prefix := range zfsSnapshotPrefixes {
		if strings.HasPrefix(name, prefix) {
			return DeletionOutcome{Validated: true, Reason: fmt.Sprintf("matches allowed prefix %s", prefix)}
		}
	}
	return DeletionOutcome{Validated: false, Reason: "snapshot name does not start with an allowed prefix"}
}
