package models

import "time"

// ImportPhase is where a two-phase import session currently stands.
type ImportPhase string

const (
	PhaseProbeNew    ImportPhase = "probe_new"
	PhaseBackfillOld ImportPhase = "backfill_old"
	PhaseDone        ImportPhase = "done"
	PhaseError       ImportPhase = "error"
)

// ImportCursor tracks where the next fetch should resume. Lichess uses a
// millisecond-epoch timestamp; Chess.com uses (Year, Month) plus an
// in-month index checkpoint.
type ImportCursor struct {
	TimestampMs int64
	Year        int
	Month       int
	MonthIndex  int
}

// ImportSession is the ephemeral, per-(UserID, Platform) tracker for an
// in-flight or just-finished import. Exactly one is active at a time.
type ImportSession struct {
	UserID            string
	Platform          Platform
	Phase             ImportPhase
	Cursor            ImportCursor
	ImportedCount     int
	CheckedCount      int
	SkippedDuplicates int
	StartedAt         time.Time
	LastProgressAt    time.Time
	StatusMessage     string
	FailureTag        string
}

// Stuck reports whether the session has made no progress for the given
// duration (spec §4.2/§5: 30s with no progress is reported as "stuck").
func (s ImportSession) Stuck(now time.Time, threshold time.Duration) bool {
	return s.Phase != PhaseDone && s.Phase != PhaseError && now.Sub(s.LastProgressAt) >= threshold
}
