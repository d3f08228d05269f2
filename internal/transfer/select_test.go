package transfer

import (
	"context"
	"testing"

	"github.com/artemis/fleetmigrate/internal/config"
)

type alwaysTrueProbe struct{}

func (alwaysTrueProbe) Probe(ctx context.Context, source, target config.Host) bool { return true }

type alwaysFalseProbe struct{}

func (alwaysFalseProbe) Probe(ctx context.Context, source, target config.Host) bool { return false }

func TestSelectMethodChoosesZFSWhenBothCapableAndProbed(t *testing.T) {
	source := config.Host{ZFSCapable: true, ZFSDataset: "pool/a"}
	target := config.Host{ZFSCapable: true, ZFSDataset: "pool/b"}

	transfer := SelectMethod(context.Background(), source, target, alwaysTrueProbe{}, nil)
	if transfer.Type() != "zfs" {
		t.Fatalf("Type() = %q, want zfs", transfer.Type())
	}
}

func TestSelectMethodFallsBackToRsyncWhenProbeFails(t *testing.T) {
	source := config.Host{ZFSCapable: true, ZFSDataset: "pool/a"}
	target := config.Host{ZFSCapable: true, ZFSDataset: "pool/b"}

	transfer := SelectMethod(context.Background(), source, target, alwaysFalseProbe{}, nil)
	if transfer.Type() != "rsync" {
		t.Fatalf("Type() = %q, want rsync", transfer.Type())
	}
}

func TestSelectMethodFallsBackToRsyncWhenOnlyOneHostCapable(t *testing.T) {
	source := config.Host{ZFSCapable: true, ZFSDataset: "pool/a"}
	target := config.Host{ZFSCapable: false}

	transfer := SelectMethod(context.Background(), source, target, alwaysTrueProbe{}, nil)
	if transfer.Type() != "rsync" {
		t.Fatalf("Type() = %q, want rsync", transfer.Type())
	}
}

func TestSelectMethodFallsBackToRsyncWhenDatasetMissing(t *testing.T) {
	source := config.Host{ZFSCapable: true, ZFSDataset: ""}
	target := config.Host{ZFSCapable: true, ZFSDataset: "pool/b"}

	transfer := SelectMethod(context.Background(), source, target, alwaysTrueProbe{}, nil)
	if transfer.Type() != "rsync" {
		t.Fatalf("Type() = %q, want rsync", transfer.Type())
	}
}
