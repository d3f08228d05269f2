// Package transfer moves byte content between two hosts, choosing between
// rsync-over-SSH and ZFS send/receive depending on host capability.
package transfer

import (
	"context"

	"github.com/artemis/fleetmigrate/internal/config"
)

// Request describes one transfer: a set of source paths into a target base
// directory, scoped to one stack.
type Request struct {
	Source      config.Host
	Target      config.Host
	SourcePaths []string
	TargetBase  string
	// PathMap resolves each source path to its computed directory on the
	// target; a path absent from the map lands under TargetBase by
	// basename.
	PathMap   map[string]string
	StackName string
	DryRun    bool
	Delete    bool
	// Recursive controls ZFS snapshot/destroy scope; it is always an
	// explicit, caller-supplied flag, never a runtime attribute check.
	Recursive bool
	// ForceReceive opts into `zfs recv -F`. Defaults to false; callers on
	// a target holding user data must not set this casually.
	ForceReceive bool
}

// Result is the outcome of one transfer, shared by both implementations.
type Result struct {
	Type             string
	Success          bool
	FilesTransferred int
	TotalBytes       int64
	Rate             string
	Speedup          string
	SnapshotName     string
	ArchivePath      string
}

// Transfer is the capability interface both implementations satisfy.
type Transfer interface {
	Type() string
	Do(ctx context.Context, req Request) (Result, error)
}

// ZFSProbe reports whether both ends of a prospective transfer actually
// support ZFS send/receive between their declared datasets, beyond the
// operator-declared capability hints on the host descriptors.
type ZFSProbe interface {
	Probe(ctx context.Context, source, target config.Host) bool
}
