package scheduler

import (
	"testing"
	"time"

	"github.com/chessanalytics/core/internal/models"
)

func gameAt(providerID string, playedAt time.Time) models.Game {
	return models.Game{ProviderGameID: providerID, PlayedAt: playedAt}
}

func TestValidateOrderingAcceptsMonotonicNonIncreasing(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	games := []models.Game{
		gameAt("g3", now),
		gameAt("g2", now.Add(-time.Hour)),
		gameAt("g1", now.Add(-2*time.Hour)),
	}
	if err := validateOrdering(games); err != nil {
		t.Fatalf("expected no error for non-increasing played_at, got %v", err)
	}
}

func TestValidateOrderingAcceptsTies(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	games := []models.Game{gameAt("g1", now), gameAt("g2", now)}
	if err := validateOrdering(games); err != nil {
		t.Fatalf("expected ties to be accepted, got %v", err)
	}
}

func TestValidateOrderingRejectsInversion(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	games := []models.Game{
		gameAt("g1", now.Add(-time.Hour)),
		gameAt("g2", now),
	}
	if err := validateOrdering(games); err == nil {
		t.Fatal("expected an error when played_at increases")
	}
}

func TestValidateOrderingAcceptsEmptyAndSingleton(t *testing.T) {
	if err := validateOrdering(nil); err != nil {
		t.Fatalf("empty slice should never fail: %v", err)
	}
	if err := validateOrdering([]models.Game{gameAt("g1", time.Now())}); err != nil {
		t.Fatalf("singleton slice should never fail: %v", err)
	}
}
