package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chessanalytics/core/internal/models"
)

func TestJobStoreCreateStartsQueued(t *testing.T) {
	js := newJobStore()
	_, cancel := context.WithCancel(context.Background())
	job := js.create(models.AnalysisJobSpec{UserID: "hero"}, cancel)

	require.Equal(t, models.JobQueued, job.State)
	snap, ok := js.snapshot(job.ID)
	require.True(t, ok, "expected snapshot to find the just-created job")
	require.Equal(t, models.JobQueued, snap.State)
}

func TestJobStoreSetStateRefusesReentryAfterTerminal(t *testing.T) {
	js := newJobStore()
	_, cancel := context.WithCancel(context.Background())
	job := js.create(models.AnalysisJobSpec{}, cancel)

	js.setState(job.ID, models.JobRunning)
	js.setState(job.ID, models.JobCompleted)
	js.setState(job.ID, models.JobRunning) // must be refused: already terminal

	snap, ok := js.snapshot(job.ID)
	require.True(t, ok)
	require.Equal(t, models.JobCompleted, snap.State, "terminal state must not be overwritten")
}

func TestJobStoreUpdateProgressRefusedAfterTerminal(t *testing.T) {
	js := newJobStore()
	_, cancel := context.WithCancel(context.Background())
	job := js.create(models.AnalysisJobSpec{}, cancel)

	js.setState(job.ID, models.JobRunning)
	js.setState(job.ID, models.JobFailed)
	js.updateProgress(job.ID, func(p *models.ProgressSnapshot) {
		p.MovesAnalyzed = 999
	})

	snap, ok := js.snapshot(job.ID)
	require.True(t, ok)
	require.NotEqual(t, 999, snap.MovesAnalyzed, "progress update must be refused once the job is terminal")
}

func TestJobStoreCancelInvokesStoredCancelFunc(t *testing.T) {
	js := newJobStore()
	ctx, cancel := context.WithCancel(context.Background())
	job := js.create(models.AnalysisJobSpec{}, cancel)

	require.True(t, js.cancelJob(job.ID), "expected cancelJob to find the tracked job")
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected the stored context to be cancelled")
	}
}

func TestJobStoreCancelUnknownJobReturnsFalse(t *testing.T) {
	js := newJobStore()
	require.False(t, js.cancelJob("does-not-exist"), "expected cancelJob to report false for an untracked id")
}
