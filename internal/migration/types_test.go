package migration

import "testing"

func TestNewContextSeedsPendingStatus(t *testing.T) {
	mc := newContext(Request{SourceHostID: "a", TargetHostID: "b", StackName: "blog"})
	if mc.Status != StatusPending {
		t.Errorf("Status = %v, want StatusPending", mc.Status)
	}
	if mc.PhaseResults == nil {
		t.Fatal("PhaseResults map should be initialized, not nil")
	}
}

func TestRecordPhaseAccumulatesWarningsAndErrors(t *testing.T) {
	mc := newContext(Request{})
	mc.recordPhase(PhaseResult{Phase: "P5_network_probe", Status: "warn", Message: "slow link"})
	mc.recordPhase(PhaseResult{Phase: "P10_transfer", Status: "failed", Message: "rsync exit 23"})

	if len(mc.Warnings) != 1 || mc.Warnings[0] != "P5_network_probe: slow link" {
		t.Errorf("Warnings = %v, want one entry \"P5_network_probe: slow link\"", mc.Warnings)
	}
	if len(mc.Errors) != 1 || mc.Errors[0] != "P10_transfer: rsync exit 23" {
		t.Errorf("Errors = %v, want one entry \"P10_transfer: rsync exit 23\"", mc.Errors)
	}
}

func TestPhaseDoneReflectsRecordedPhases(t *testing.T) {
	mc := newContext(Request{})
	if mc.phaseDone("P1_validate_hosts") {
		t.Fatal("phaseDone() should be false before the phase runs")
	}
	mc.recordPhase(PhaseResult{Phase: "P1_validate_hosts", Status: "ok"})
	if !mc.phaseDone("P1_validate_hosts") {
		t.Fatal("phaseDone() should be true after the phase is recorded")
	}
}
