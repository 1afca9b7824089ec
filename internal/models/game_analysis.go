package models

import "time"

// MoveCounts tallies classifications across a game or a player's history.
type MoveCounts struct {
	Best       int `json:"best"`
	Great      int `json:"great"`
	Excellent  int `json:"excellent"`
	Good       int `json:"good"`
	Inaccuracy int `json:"inaccuracy"`
	Mistake    int `json:"mistake"`
	Blunder    int `json:"blunder"`
}

// PhaseAccuracies is per-phase move accuracy, percent.
type PhaseAccuracies struct {
	Opening    float64 `json:"opening"`
	Middlegame float64 `json:"middlegame"`
	Endgame    float64 `json:"endgame"`
}

// PersonalitySubscores are the six per-game trait contributions that feed
// the player-level PersonalityScores aggregate (see personality.go).
type PersonalitySubscores struct {
	Tactical   float64 `json:"tactical"`
	Positional float64 `json:"positional"`
	Aggressive float64 `json:"aggressive"`
	Patient    float64 `json:"patient"`
	Novelty    float64 `json:"novelty"`
	Staleness  float64 `json:"staleness"`
}

// GameAnalysis is the per-game aggregate. It is a pure function of the
// MoveAnalysis rows sharing its identity and MUST be rewritten atomically
// with them (see persistence package transaction protocol).
type GameAnalysis struct {
	UserID          string
	Platform        Platform
	ProviderGameID  string
	AnalysisType    AnalysisType
	Subscores       PersonalitySubscores
	Accuracy        float64
	PhaseAccuracies PhaseAccuracies
	Counts          MoveCounts
	MoveCount       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
