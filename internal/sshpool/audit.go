package sshpool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEntry is one append-only record of a command dispatched through the
// pool. The command itself never appears in the log, only a hash of it:
// the log is meant to be safe to hand to anyone without leaking stack
// contents or secrets baked into a command line.
type AuditEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Host          string    `json:"host"`
	User          string    `json:"user"`
	CommandHash   string    `json:"command_hash"`
	CommandLength int       `json:"command_length"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
}

// HashCommand returns the first 16 hex characters of the command's SHA-256
// digest, enough to correlate repeated runs without reversing the input.
func HashCommand(cmd string) string {
	sum := sha256.Sum256([]byte(cmd))
	return hex.EncodeToString(sum[:])[:16]
}

// AuditLog is a JSON-lines append-only log guarded by a single mutex; every
// writer serializes through it so lines are never interleaved.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLog opens (creating if needed) the log file at path for appending.
func NewAuditLog(path string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLog{file: f}, nil
}

// Record appends one entry. host/user/cmd describe the dispatched command;
// the raw cmd is hashed before it ever reaches the log.
func (a *AuditLog) Record(host, user, cmd string, success bool, runErr error) error {
	entry := AuditEntry{
		Timestamp:     time.Now().UTC(),
		Host:          host,
		User:          user,
		CommandHash:   HashCommand(cmd),
		CommandLength: len(cmd),
		Success:       success,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.file.Write(line)
	return err
}

// Close flushes and closes the underlying file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
