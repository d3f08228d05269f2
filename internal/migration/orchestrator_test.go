package migration

import (
	"context"
	"strings"
	"testing"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
)

func TestMigrationIDDerivesDeterministicallyWhenUnset(t *testing.T) {
	req := Request{SourceHostID: "nuc1", TargetHostID: "nuc2", StackName: "blog"}
	id := migrationID(req)
	if id != "nuc1__nuc2__blog" {
		t.Errorf("migrationID() = %q, want %q", id, "nuc1__nuc2__blog")
	}
	if migrationID(req) != id {
		t.Error("migrationID() must be deterministic across calls with the same request")
	}
}

func TestMigrationIDRespectsExplicitID(t *testing.T) {
	req := Request{MigrationID: "custom-id", SourceHostID: "a", TargetHostID: "b", StackName: "c"}
	if got := migrationID(req); got != "custom-id" {
		t.Errorf("migrationID() = %q, want %q", got, "custom-id")
	}
}

func TestPhaseP1FailsOnUnknownSourceHost(t *testing.T) {
	hosts := config.NewHostRegistry(config.Host{ID: "target"})
	o := &Orchestrator{hosts: hosts, exec: executor.New(nil), contexts: make(map[string]*Context)}
	mc := newContext(Request{SourceHostID: "missing", TargetHostID: "target"})

	result := phaseP1(context.Background(), o, mc)
	if result.Status != "failed" {
		t.Fatalf("phaseP1 status = %q, want failed", result.Status)
	}
	if !strings.Contains(result.Message, "HostNotFound") {
		t.Errorf("phaseP1 message = %q, want it to carry the HostNotFound kind", result.Message)
	}
}

func TestPhaseP1PassesWithBothHostsKnown(t *testing.T) {
	hosts := config.NewHostRegistry(config.Host{ID: "source"}, config.Host{ID: "target"})
	o := &Orchestrator{hosts: hosts, exec: executor.New(nil), contexts: make(map[string]*Context)}
	mc := newContext(Request{SourceHostID: "source", TargetHostID: "target"})

	result := phaseP1(context.Background(), o, mc)
	if result.Status != "ok" {
		t.Fatalf("phaseP1 status = %q, want ok", result.Status)
	}
}

func TestPhaseP8KeepsSourceVolumesAndBuildsFullPathMap(t *testing.T) {
	hosts := config.NewHostRegistry(
		config.Host{ID: "source", AppdataPath: "/mnt/pool1"},
		config.Host{ID: "target", AppdataPath: "/srv/appdata"},
	)
	o := &Orchestrator{hosts: hosts, exec: executor.New(nil), contexts: make(map[string]*Context)}

	mc := newContext(Request{SourceHostID: "source", TargetHostID: "target", StackName: "blog"})
	bind, _ := ParseSpec("/mnt/pool1/blog/config:/data", "/mnt/pool1")
	named, _ := ParseSpec("blog_db:/var/lib/mysql", "/mnt/pool1")
	mc.Volumes = []Volume{bind, named}

	result := phaseP8(context.Background(), o, mc)
	if result.Status != "ok" {
		t.Fatalf("phaseP8 status = %q, want ok", result.Status)
	}

	// The source-side view must survive untouched so the transfer phase
	// still knows where the data lives on the source host.
	if mc.Volumes[0].SourcePath != "/mnt/pool1/blog/config" {
		t.Errorf("source volume mutated: %q", mc.Volumes[0].SourcePath)
	}
	if mc.MappedVolumes[0].SourcePath != "/srv/appdata/blog/config" {
		t.Errorf("mapped volume = %q, want /srv/appdata/blog/config", mc.MappedVolumes[0].SourcePath)
	}
	if got := mc.PathMap["/mnt/pool1/blog/config"]; got != "/srv/appdata/blog/config" {
		t.Errorf("PathMap entry = %q, want /srv/appdata/blog/config", got)
	}
	if mc.MappedVolumes[1].VolumeName != "blog_db" {
		t.Errorf("named volume should pass through unchanged, got %+v", mc.MappedVolumes[1])
	}
}

func TestToResultReflectsTerminalSuccessState(t *testing.T) {
	mc := newContext(Request{MigrationID: "id-1"})
	mc.Status = StatusSuccess
	mc.Risk = 42
	mc.recordPhase(PhaseResult{Phase: "P1_validate_hosts", Status: "ok"})

	res := toResult(mc)
	if !res.Success {
		t.Error("Success = false, want true for StatusSuccess")
	}
	if res.Risk != 42 {
		t.Errorf("Risk = %d, want 42", res.Risk)
	}
	if len(res.Phases) != 1 {
		t.Errorf("len(Phases) = %d, want 1", len(res.Phases))
	}
}

func TestMigrateStackIsIdempotentAfterSuccess(t *testing.T) {
	hosts := config.NewHostRegistry(config.Host{ID: "source"}, config.Host{ID: "target"})
	o := &Orchestrator{hosts: hosts, exec: executor.New(nil), contexts: make(map[string]*Context)}

	req := Request{MigrationID: "fixed-id", SourceHostID: "source", TargetHostID: "target", StackName: "blog"}
	o.contexts["fixed-id"] = &Context{
		Request:      req,
		Status:       StatusSuccess,
		PhaseResults: map[string]PhaseResult{"P1_validate_hosts": {Phase: "P1_validate_hosts", Status: "ok"}},
	}

	res, err := o.MigrateStack(context.Background(), req)
	if err != nil {
		t.Fatalf("MigrateStack() error = %v", err)
	}
	if !res.Success || res.MigrationID != "fixed-id" {
		t.Errorf("expected cached success result, got %+v", res)
	}
	if len(res.Phases) != 1 {
		t.Errorf("expected the cached single-phase result to be returned unchanged, got %d phases", len(res.Phases))
	}
}
