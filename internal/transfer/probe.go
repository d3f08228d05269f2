package transfer

import (
	"context"
	"fmt"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
)

// SSHProbe confirms a live ZFS send/receive path between two hosts by
// checking both datasets are actually listable, not just trusting the
// operator-declared ZFSCapable/ZFSDataset hints.
type SSHProbe struct {
	exec *executor.Executor
}

// NewSSHProbe builds a ZFSProbe backed by real `zfs list` calls.
func NewSSHProbe(exec *executor.Executor) *SSHProbe {
	return &SSHProbe{exec: exec}
}

func (p *SSHProbe) Probe(ctx context.Context, source, target config.Host) bool {
	if source.ZFSDataset == "" || target.ZFSDataset == "" {
		return false
	}

	cmd := fmt.Sprintf("zfs list -H -o name %s", shq(source.ZFSDataset))
	if res, err := p.exec.Run(ctx, source, cmd, executor.RunOptions{Timeout: executor.ShortTimeout}); err != nil || res.ExitCode != 0 {
		return false
	}

	cmd = fmt.Sprintf("zfs list -H -o name %s", shq(target.ZFSDataset))
	if res, err := p.exec.Run(ctx, target, cmd, executor.RunOptions{Timeout: executor.ShortTimeout}); err != nil || res.ExitCode != 0 {
		return false
	}
	return true
}
