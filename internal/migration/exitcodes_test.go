package migration

import "testing"

func TestExitCodeForTerminalStates(t *testing.T) {
	cases := []struct {
		status Status
		want   ExitCode
	}{
		{StatusSuccess, ExitSuccess},
		{StatusFailedRolledBack, ExitRecoverableFailure},
		{StatusFailedRollbackFailed, ExitUnrecoverableFailure},
		{StatusCancelled, ExitCancelled},
		{StatusRunning, ExitUnrecoverableFailure},
	}
	for _, c := range cases {
		if got := ExitCodeFor(&Result{Status: c.status}); got != c.want {
			t.Errorf("ExitCodeFor(%s) = %d, want %d", c.status, got, c.want)
		}
	}
}
