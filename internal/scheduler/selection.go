package scheduler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/models"
)

// selectBatchTargets implements spec §4.3's job-selection steps for batch
// analysis. GamesRepo.ListUnanalyzed already does the ordered fetch
// (played_at DESC), the already-analyzed anti-join, and the take-first-N
// limit in a single query (steps 1, 4, 5); validateOrdering is the
// remaining defensive check (step 2) against the query ever regressing.
func (s *Scheduler) selectBatchTargets(ctx context.Context, userID string, platform models.Platform, analysisType models.AnalysisType, limit int) ([]models.Game, error) {
	games, err := s.store.Games.ListUnanalyzed(ctx, userID, platform, analysisType, limit)
	if err != nil {
		return nil, err
	}
	if err := validateOrdering(games); err != nil {
		return nil, err
	}
	return games, nil
}

// validateOrdering enforces spec §4.3 step 2: played_at must be
// monotonically non-increasing. An inversion here means the query (or the
// data it reads) violated its own contract — a fatal programming error that
// fails the job rather than silently analyzing games out of order.
func validateOrdering(games []models.Game) error {
	for i := 1; i < len(games); i++ {
		if games[i].PlayedAt.After(games[i-1].PlayedAt) {
			return apperr.New(apperr.TagValidation, "batch ordering invariant violated: played_at is not monotonically non-increasing")
		}
	}
	return nil
}

// fetchOrderedPGNs implements spec §4.3 step 3: batch-fetch PGNs by
// provider_game_id, then re-order the map result to match games' original
// order (never trust map-iteration order). A game whose PGN was never
// imported falls back to the importer's single-game fetch rather than
// failing the whole batch.
func (s *Scheduler) fetchOrderedPGNs(ctx context.Context, userID string, platform models.Platform, games []models.Game) ([]string, error) {
	ids := make([]string, len(games))
	for i, g := range games {
		ids[i] = g.ProviderGameID
	}

	byID, err := s.store.PGNs.GetByIDs(ctx, userID, platform, ids)
	if err != nil {
		return nil, err
	}

	movetexts := make([]string, len(games))
	for i, g := range games {
		if rec, ok := byID[g.ProviderGameID]; ok {
			movetexts[i] = rec.Movetext
			continue
		}
		pgn, err := s.imp.FetchMissingPGN(ctx, userID, platform, g.ProviderGameID)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"component":        "scheduler",
				"provider_game_id": g.ProviderGameID,
			}).Warn("could not recover missing pgn for batch target, skipping game")
			continue
		}
		movetexts[i] = pgn
	}
	return movetexts, nil
}
