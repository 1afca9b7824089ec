package models

import "time"

// JobKind distinguishes a single-game analysis from a batch request.
type JobKind string

const (
	JobSingleGame JobKind = "single_game"
	JobBatch      JobKind = "batch"
)

// JobState is the analysis job state machine. Transitions are
// queued -> running -> {completed | failed | cancelled}; terminal states
// are final, a retry is always a new job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// GameIdentity names one (user, platform, game) tuple targeted by a job.
type GameIdentity struct {
	UserID         string
	Platform       Platform
	ProviderGameID string
}

// AnalysisJobSpec is the immutable request that created a job.
type AnalysisJobSpec struct {
	UserID       string
	Platform     Platform
	Kind         JobKind
	Targets      []GameIdentity
	AnalysisType AnalysisType
	Depth        int
	TimePerMoveS float64
	IsAnonymous  bool
	ClientIP     string
	AccountTier  AccountTier
}

// ProgressSnapshot is the polled progress view of a running job, per spec
// §4.3 ("jobs_total, jobs_completed, current_game_id, moves_analyzed,
// moves_total, phase").
type ProgressSnapshot struct {
	JobID          string    `json:"jobId"`
	State          JobState  `json:"state"`
	JobsTotal      int       `json:"jobsTotal"`
	JobsCompleted  int       `json:"jobsCompleted"`
	CurrentGameID  string    `json:"currentGameId,omitempty"`
	MovesAnalyzed  int       `json:"movesAnalyzed"`
	MovesTotal     int       `json:"movesTotal"`
	Phase          string    `json:"phase"`
	FallbackMoves  int       `json:"fallbackMoves"`
	ErrorTag       string    `json:"errorTag,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AnalysisJob is the full server-side job record.
type AnalysisJob struct {
	ID          string
	Spec        AnalysisJobSpec
	State       JobState
	Progress    ProgressSnapshot
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	ErrorTag    string
}
