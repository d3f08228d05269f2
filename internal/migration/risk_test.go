package migration

import "testing"

func TestScoreRiskLowForSmallQuietStack(t *testing.T) {
	score := ScoreRisk(RiskInputs{
		TotalBytes:         100 * 1024 * 1024,
		EstimatedDowntime:  30,
		CriticalFileCount:  0,
		PersistentServices: 0,
		TotalServices:      1,
	})
	if score > 10 {
		t.Errorf("ScoreRisk() = %d, want a low score for a small quiet stack", score)
	}
}

func TestScoreRiskHighForLargeCriticalStack(t *testing.T) {
	score := ScoreRisk(RiskInputs{
		TotalBytes:         200 * 1024 * 1024 * 1024,
		EstimatedDowntime:  900,
		CriticalFileCount:  10,
		PersistentServices: 3,
		TotalServices:      3,
	})
	if score < 80 {
		t.Errorf("ScoreRisk() = %d, want a high score for a large critical stack", score)
	}
}

func TestScoreRiskNeverExceeds100(t *testing.T) {
	score := ScoreRisk(RiskInputs{
		TotalBytes:         1 << 60,
		EstimatedDowntime:  100000,
		CriticalFileCount:  1000,
		PersistentServices: 100,
		TotalServices:      100,
	})
	if score != 100 {
		t.Errorf("ScoreRisk() = %d, want clamped to 100", score)
	}
}

func TestScoreRiskMonotonicInDowntime(t *testing.T) {
	low := ScoreRisk(RiskInputs{EstimatedDowntime: 30, TotalServices: 1})
	high := ScoreRisk(RiskInputs{EstimatedDowntime: 900, TotalServices: 1})
	if high <= low {
		t.Errorf("expected higher downtime to score higher, got low=%d high=%d", low, high)
	}
}
