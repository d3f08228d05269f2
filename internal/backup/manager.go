package backup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
	"github.com/artemis/fleetmigrate/internal/sshcmd"
)

// RecordType distinguishes the two backup artifact kinds.
type RecordType string

const (
	RecordTypeDirectoryTar RecordType = "directory_tar"
	RecordTypeZFSSnapshot  RecordType = "zfs_snapshot"
)

// Record is the backup artifact reference carried on the migration context
// and consulted by rollback.
type Record struct {
	Type        RecordType `json:"type"`
	HostID      string     `json:"host_id"`
	SourcePath  string     `json:"source_path"`
	ArtifactRef string     `json:"artifact_ref,omitempty"`
	SizeBytes   int64      `json:"size_bytes"`
	CreatedAt   time.Time  `json:"created_at"`
	Reason      string     `json:"reason"`
	StackName   string     `json:"stack_name"`
}

// Manager captures and restores target-host state, consulting the safety
// gate and writing to the deletion manifest before any destructive
// command.
type Manager struct {
	exec     *executor.Executor
	gate     *SafetyGate
	manifest *DeletionManifest
	store    *Store
}

// NewManager builds a Manager. manifest and gate are explicit dependencies,
// never ambient globals, per this codebase's process-wide-state policy.
func NewManager(exec *executor.Executor, gate *SafetyGate, manifest *DeletionManifest) *Manager {
	return &Manager{exec: exec, gate: gate, manifest: manifest}
}

// WithStore attaches a persistent record store; every captured backup is
// appended to it so the artifact can be located after a restart.
func (m *Manager) WithStore(store *Store) *Manager {
	m.store = store
	return m
}

func (m *Manager) persist(rec Record) {
	if m.store != nil {
		// Persistence is best-effort: a failed write must not turn a
		// successful backup into a failed phase.
		_ = m.store.Append(rec)
	}
}

// Backup tars path on host into /tmp/backup_<stack>_<ts>.tar.gz. If path
// does not exist, it returns a no-op record with an empty ArtifactRef
// rather than erroring, since migrating into a previously empty target is a
// valid, common case.
func (m *Manager) Backup(ctx context.Context, host config.Host, path, stackName string) (Record, error) {
	cleanPath, err := sshcmd.AbsPath(path)
	if err != nil {
		return Record{}, err
	}
	name, err := sshcmd.StackName(stackName)
	if err != nil {
		return Record{}, err
	}

	existsCmd := fmt.Sprintf("test -e %s", shq(cleanPath))
	res, err := m.exec.Run(ctx, host, existsCmd, executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil {
		if _, isExit := err.(*executor.ExitError); !isExit {
			return Record{}, err
		}
	}
	if res.ExitCode != 0 {
		return Record{Type: RecordTypeDirectoryTar, HostID: host.ID, SourcePath: cleanPath, StackName: name}, nil
	}

	ts := timestamp()
	archivePath := fmt.Sprintf("/tmp/backup_%s_%s.tar.gz", name, ts)

	tarCmd := fmt.Sprintf("tar czf %s -C %s .", shq(archivePath), shq(cleanPath))
	if _, err := m.exec.Run(ctx, host, tarCmd, executor.RunOptions{Timeout: executor.ArchiveTimeout}); err != nil {
		return Record{}, err
	}

	statRes, err := m.exec.Run(ctx, host, fmt.Sprintf("stat -c %%s %s", shq(archivePath)), executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil {
		return Record{}, err
	}
	size, _ := strconv.ParseInt(strings.TrimSpace(statRes.Stdout), 10, 64)

	rec := Record{
		Type:        RecordTypeDirectoryTar,
		HostID:      host.ID,
		SourcePath:  cleanPath,
		ArtifactRef: archivePath,
		SizeBytes:   size,
		CreatedAt:   time.Now().UTC(),
		Reason:      "pre-migration target backup",
		StackName:   name,
	}
	m.persist(rec)
	return rec, nil
}

// BackupZFS takes a backup_<stack>_<ts> snapshot on dataset.
func (m *Manager) BackupZFS(ctx context.Context, host config.Host, dataset, stackName string) (Record, error) {
	name, err := sshcmd.StackName(stackName)
	if err != nil {
		return Record{}, err
	}

	snapName := fmt.Sprintf("backup_%s_%s", name, timestamp())
	ref := fmt.Sprintf("%s@%s", dataset, snapName)

	cmd := fmt.Sprintf("zfs snapshot %s", shq(ref))
	if _, err := m.exec.Run(ctx, host, cmd, executor.RunOptions{Timeout: executor.BackupTimeout}); err != nil {
		return Record{}, err
	}

	usedRes, err := m.exec.Run(ctx, host, fmt.Sprintf("zfs get -H -p -o value used %s", shq(ref)), executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil {
		return Record{}, err
	}
	used, _ := strconv.ParseInt(strings.TrimSpace(usedRes.Stdout), 10, 64)

	rec := Record{
		Type:        RecordTypeZFSSnapshot,
		HostID:      host.ID,
		SourcePath:  dataset,
		ArtifactRef: ref,
		SizeBytes:   used,
		CreatedAt:   time.Now().UTC(),
		Reason:      "pre-migration target backup",
		StackName:   name,
	}
	m.persist(rec)
	return rec, nil
}

// Restore reverses a Record: directory restore removes the current target
// path and re-extracts the tar; ZFS restore rolls back to the snapshot.
// Both paths consult the safety gate and write to the deletion manifest
// before issuing anything destructive.
func (m *Manager) Restore(ctx context.Context, host config.Host, rec Record) error {
	switch rec.Type {
	case RecordTypeDirectoryTar:
		return m.restoreDirectory(ctx, host, rec)
	case RecordTypeZFSSnapshot:
		return m.restoreZFS(ctx, host, rec)
	default:
		return fmt.Errorf("backup: unknown record type %q", rec.Type)
	}
}

func (m *Manager) restoreDirectory(ctx context.Context, host config.Host, rec Record) error {
	if rec.ArtifactRef == "" {
		return nil
	}

	outcome := m.gate.ValidateDeletionPath(rec.SourcePath)
	m.manifest.Append(rec.SourcePath, "rm -rf", outcome.Reason, outcome.Validated)
	if !outcome.Validated {
		return &SafetyBlockedError{Path: rec.SourcePath, Reason: outcome.Reason}
	}

	rmCmd := fmt.Sprintf("rm -rf %s", shq(rec.SourcePath))
	if _, err := m.exec.Run(ctx, host, rmCmd, executor.RunOptions{Timeout: executor.ArchiveTimeout}); err != nil {
		return err
	}

	mkdirCmd := fmt.Sprintf("mkdir -p %s", shq(rec.SourcePath))
	if _, err := m.exec.Run(ctx, host, mkdirCmd, executor.RunOptions{Timeout: executor.ShortTimeout}); err != nil {
		return err
	}

	extractCmd := fmt.Sprintf("tar xzf %s -C %s", shq(rec.ArtifactRef), shq(rec.SourcePath))
	_, err := m.exec.Run(ctx, host, extractCmd, executor.RunOptions{Timeout: executor.ArchiveTimeout})
	return err
}

func (m *Manager) restoreZFS(ctx context.Context, host config.Host, rec Record) error {
	outcome := m.gate.ValidateZFSSnapshotDeletion(rec.ArtifactRef)
	m.manifest.Append(rec.ArtifactRef, "zfs rollback", outcome.Reason, outcome.Validated)
	if !outcome.Validated {
		return &SafetyBlockedError{Path: rec.ArtifactRef, Reason: outcome.Reason}
	}

	cmd := fmt.Sprintf("zfs rollback %s", shq(rec.ArtifactRef))
	_, err := m.exec.Run(ctx, host, cmd, executor.RunOptions{Timeout: executor.BackupTimeout})
	return err
}

// CleanupDirectoryBackup removes a directory-tar backup after a successful
// migration, validated through the same safety gate as restore.
func (m *Manager) CleanupDirectoryBackup(ctx context.Context, host config.Host, rec Record) error {
	if rec.Type != RecordTypeDirectoryTar || rec.ArtifactRef == "" {
		return nil
	}
	outcome := m.gate.ValidateDeletionPath(rec.ArtifactRef)
	m.manifest.Append(rec.ArtifactRef, "rm -f", outcome.Reason, outcome.Validated)
	if !outcome.Validated {
		return &SafetyBlockedError{Path: rec.ArtifactRef, Reason: outcome.Reason}
	}
	_, err := m.exec.Run(ctx, host, fmt.Sprintf("rm -f %s", shq(rec.ArtifactRef)), executor.RunOptions{Timeout: executor.ShortTimeout})
	return err
}

// SafetyBlockedError is returned whenever the safety gate rejects a
// proposed destructive command. It is fatal and never triggers a retry or
// a fallback: by construction, nothing destructive has happened yet.
type SafetyBlockedError struct {
	Path   string
	Reason string
}

func (e *SafetyBlockedError) Error() string {
	return fmt.Sprintf("safety gate blocked deletion of %q: %s", e.Path, e.Reason)
}
func (e *SafetyBlockedError) Kind() string { return "SafetyBlocked" }

func shq(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func timestamp() string {
	return time.Now().UTC().Format("20060102T150405Z")
}
