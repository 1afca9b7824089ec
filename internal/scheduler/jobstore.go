package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chessanalytics/core/internal/models"
)

// jobStore tracks in-process AnalysisJob records, guarded by a single mutex
// (the teacher's AnalysisJob idiom in internal/models/game.go — mutex-
// protected progress/status setters — generalized here from one job per
// process to a map of concurrently running jobs, the same way
// persistence.ImportSessionRepo generalizes a single import session into a
// map keyed by tenant).
type jobStore struct {
	mu     sync.Mutex
	jobs   map[string]*models.AnalysisJob
	cancel map[string]context.CancelFunc
}

func newJobStore() *jobStore {
	return &jobStore{
		jobs:   make(map[string]*models.AnalysisJob),
		cancel: make(map[string]context.CancelFunc),
	}
}

func (s *jobStore) create(spec models.AnalysisJobSpec, cancelFn context.CancelFunc) *models.AnalysisJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &models.AnalysisJob{
		ID:        uuid.NewString(),
		Spec:      spec,
		State:     models.JobQueued,
		CreatedAt: time.Now(),
		Progress: models.ProgressSnapshot{
			JobsTotal: len(spec.Targets),
			State:     models.JobQueued,
			UpdatedAt: time.Now(),
		},
	}
	job.Progress.JobID = job.ID
	s.jobs[job.ID] = job
	s.cancel[job.ID] = cancelFn
	return job
}

func (s *jobStore) get(id string) (*models.AnalysisJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// cancelJob invokes the stored cancellation func, if the job is still
// tracked; it does not itself flip the job's state, which the run loop does
// once it observes ctx.Done().
func (s *jobStore) cancelJob(id string) bool {
	s.mu.Lock()
	cancelFn, ok := s.cancel[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancelFn()
	return true
}

// setState transitions a job's state, refusing to move out of a terminal
// state (spec §4.3: "terminal states are final; a retry is always a new
// job").
func (s *jobStore) setState(id string, state models.JobState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.State.Terminal() {
		return
	}
	job.State = state
	job.Progress.State = state
	job.Progress.UpdatedAt = time.Now()
	switch state {
	case models.JobRunning:
		job.StartedAt = time.Now()
	case models.JobCompleted, models.JobFailed, models.JobCancelled:
		job.CompletedAt = time.Now()
	}
}

func (s *jobStore) setError(id string, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	job.ErrorTag = tag
	job.Progress.ErrorTag = tag
}

// updateProgress merges a partial progress update, refusing updates once the
// job has reached a terminal state — mirrors AnalysisJob.UpdateProgress's
// mutex-guarded in-place mutation, generalized to a map lookup by job id.
func (s *jobStore) updateProgress(id string, fn func(p *models.ProgressSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.State.Terminal() {
		return
	}
	fn(&job.Progress)
	job.Progress.UpdatedAt = time.Now()
}

// snapshot returns a copy of a job's current progress view, safe to hand to
// an HTTP poller without racing the run loop's writer.
func (s *jobStore) snapshot(id string) (models.ProgressSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ProgressSnapshot{}, false
	}
	return job.Progress, true
}
