package transfer

import (
	"context"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
)

// SelectMethod is the pure selector choosing between ZFS send/receive and
// rsync. ZFS is chosen only when both hosts declare ZFSCapable with a
// non-empty ZFSDataset AND probe confirms a live send/receive path between
// them; otherwise rsync. This is the single dispatch point for transfer
// method choice; no further type-switching happens downstream of it.
func SelectMethod(ctx context.Context, source, target config.Host, probe ZFSProbe, exec *executor.Executor) Transfer {
	if source.ZFSCapable && target.ZFSCapable &&
		source.ZFSDataset != "" && target.ZFSDataset != "" &&
		probe != nil && probe.Probe(ctx, source, target) {
		return NewZFS(exec)
	}
	return NewRsync(exec)
}
