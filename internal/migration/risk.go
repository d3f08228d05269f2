package migration

// RiskInputs carries the signals P6 scores into a single 0-100 number.
type RiskInputs struct {
	TotalBytes          int64
	EstimatedDowntime   float64 // seconds
	CriticalFileCount   int
	PersistentServices  int
	TotalServices       int
}

// ScoreRisk produces an advisory 0-100 risk score for the operator.
// Higher is riskier. This never blocks a migration (P6's failure policy
// is Advisory); it only annotates the context.
func ScoreRisk(in RiskInputs) int {
	score := 0

	switch {
	case in.TotalBytes > 100*1024*1024*1024:
		score += 30
	case in.TotalBytes > 10*1024*1024*1024:
		score += 15
	case in.TotalBytes > 1024*1024*1024:
		score += 5
	}

	switch {
	case in.EstimatedDowntime > 600:
		score += 25
	case in.EstimatedDowntime > 120:
		score += 10
	}

	if in.CriticalFileCount > 0 {
		score += 20
		if in.CriticalFileCount > 5 {
			score += 10
		}
	}

	if in.TotalServices > 0 {
		ratio := float64(in.PersistentServices) / float64(in.TotalServices)
		score += int(ratio * 15)
	}

	if score > 100 {
		score = 100
	}
	return score
}
