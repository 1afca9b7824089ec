package models

import "time"

// PersonalityScores is the player-level aggregate across all analyzed
// games for (UserID, Platform). Each trait lives in [0, 100], 50 is neutral.
type PersonalityScores struct {
	UserID     string
	Platform   Platform
	Tactical   float64
	Positional float64
	Aggressive float64
	Patient    float64
	Novelty    float64
	Staleness  float64
	GamesUsed  int
	UpdatedAt  time.Time
}

// Clamp01to100 restricts a trait score to the documented [0, 100] range.
func Clamp01to100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
