package transfer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artemis/fleetmigrate/internal/backup"
	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
	"github.com/artemis/fleetmigrate/internal/sshcmd"
)

// ZFS moves data via zfs send/receive between two ZFS-capable hosts.
type ZFS struct {
	exec     *executor.Executor
	gate     *backup.SafetyGate
	manifest *backup.DeletionManifest
}

// NewZFS builds a ZFS transfer. The snapshot cleanup this transfer
// performs on success is itself a destructive command, so it is subject to
// the same safety-gate/deletion-manifest discipline as a backup restore.
func NewZFS(exec *executor.Executor) *ZFS {
	return &ZFS{exec: exec, gate: backup.NewSafetyGate(), manifest: backup.NewDeletionManifest()}
}

// Type implements Transfer.
func (z *ZFS) Type() string { return "zfs" }

// Do creates a migrate_<UTC-timestamp> snapshot on the source dataset
// (non-recursive unless req.Recursive), streams it to the target dataset,
// verifies referenced byte size within ±5%, and destroys the source
// snapshot non-recursively on success.
func (z *ZFS) Do(ctx context.Context, req Request) (Result, error) {
	result := Result{Type: "zfs"}
	if req.DryRun {
		result.Success = true
		return result, nil
	}

	sourceDataset := req.Source.ZFSDataset
	targetDataset := req.Target.ZFSDataset
	if sourceDataset == "" || targetDataset == "" {
		return Result{}, fmt.Errorf("zfs transfer: both hosts must declare a zfs_dataset")
	}

	snapName := fmt.Sprintf("migrate_%s", time.Now().UTC().Format("20060102T150405Z"))
	snapshotRef := fmt.Sprintf("%s@%s", sourceDataset, snapName)

	if err := z.createSnapshot(ctx, req.Source, snapshotRef, req.Recursive); err != nil {
		return Result{}, err
	}

	if err := z.sendReceive(ctx, req, snapshotRef, targetDataset); err != nil {
		return Result{}, err
	}

	_, tgtUsed, err := z.verify(ctx, req, sourceDataset, targetDataset)
	if err != nil {
		return Result{}, err
	}

	if err := z.destroySnapshot(ctx, req.Source, snapshotRef); err != nil {
		return Result{}, err
	}

	result.Success = true
	result.SnapshotName = snapName
	result.TotalBytes = tgtUsed
	return result, nil
}

func (z *ZFS) createSnapshot(ctx context.Context, host config.Host, snapshotRef string, recursive bool) error {
	flag := ""
	if recursive {
		flag = "-r "
	}
	cmd := fmt.Sprintf("zfs snapshot %s%s", flag, shq(snapshotRef))
	_, err := z.exec.Run(ctx, host, cmd, executor.RunOptions{Timeout: executor.BackupTimeout})
	return err
}

func (z *ZFS) sendReceive(ctx context.Context, req Request, snapshotRef, targetDataset string) error {
	sshArgs, err := sshcmd.SSHBaseArgs(req.Target)
	if err != nil {
		return err
	}
	sshPrefix := strings.Join(sshArgs, " ")

	sendFlags := "send"
	if req.Recursive {
		sendFlags = "send -R"
	}
	recvFlags := "zfs recv"
	if req.ForceReceive {
		recvFlags = "zfs recv -F"
	}

	cmd := fmt.Sprintf("zfs %s %s | %s %s %s", sendFlags, shq(snapshotRef), sshPrefix, recvFlags, shq(targetDataset))
	_, err = z.exec.Run(ctx, req.Source, cmd, executor.RunOptions{Timeout: executor.RsyncTimeout})
	return err
}

func (z *ZFS) verify(ctx context.Context, req Request, sourceDataset, targetDataset string) (int64, int64, error) {
	existsRes, err := z.exec.Run(ctx, req.Target, fmt.Sprintf("zfs list -H -o name %s", shq(targetDataset)), executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil {
		return 0, 0, err
	}
	if existsRes.ExitCode != 0 {
		return 0, 0, fmt.Errorf("zfs transfer: target dataset %s not found after receive", targetDataset)
	}

	srcUsed, err := z.referencedBytes(ctx, req.Source, sourceDataset)
	if err != nil {
		return 0, 0, err
	}
	tgtUsed, err := z.referencedBytes(ctx, req.Target, targetDataset)
	if err != nil {
		return 0, 0, err
	}

	if srcUsed > 0 {
		drift := float64(tgtUsed-srcUsed) / float64(srcUsed)
		if drift < 0 {
			drift = -drift
		}
		if drift > 0.05 {
			return srcUsed, tgtUsed, fmt.Errorf("zfs transfer: referenced size drift %.1f%% exceeds 5%% tolerance", drift*100)
		}
	}

	return srcUsed, tgtUsed, nil
}

func (z *ZFS) referencedBytes(ctx context.Context, host config.Host, dataset string) (int64, error) {
	res, err := z.exec.Run(ctx, host, fmt.Sprintf("zfs get -H -p -o value referenced %s", shq(dataset)), executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
	if convErr != nil {
		return 0, fmt.Errorf("zfs transfer: parse referenced size for %s: %w", dataset, convErr)
	}
	return n, nil
}

// destroySnapshot validates snapshotRef against the safety gate, recording
// the outcome in the deletion manifest before issuing the command,
// regardless of whether validation passed.
func (z *ZFS) destroySnapshot(ctx context.Context, host config.Host, snapshotRef string) error {
	outcome := z.gate.ValidateZFSSnapshotDeletion(snapshotRef)
	z.manifest.Append(snapshotRef, "zfs destroy", outcome.Reason, outcome.Validated)
	if !outcome.Validated {
		return &backup.SafetyBlockedError{Path: snapshotRef, Reason: outcome.Reason}
	}

	cmd := fmt.Sprintf("zfs destroy %s", shq(snapshotRef))
	_, err := z.exec.Run(ctx, host, cmd, executor.RunOptions{Timeout: executor.BackupTimeout})
	return err
}

func shq(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
