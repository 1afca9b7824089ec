package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/models"
)

// GameAnalysesRepo stores the per-game aggregate, unique on
// (user_id, platform, provider_game_id, analysis_type) — the corrected
// constraint from REDESIGN FLAGS, which permits re-analysis and coexistence
// of multiple analysis_types for the same game (spec §4.4).
type GameAnalysesRepo struct {
	pool *pgxpool.Pool
}

const upsertGameAnalysisSQL = `
INSERT INTO game_analyses (
	user_id, platform, provider_game_id, analysis_type,
	tactical, positional, aggressive, patient, novelty, staleness,
	accuracy, opening_accuracy, middlegame_accuracy, endgame_accuracy,
	best_count, great_count, excellent_count, good_count, inaccuracy_count,
	mistake_count, blunder_count, move_count, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,NOW())
ON CONFLICT (user_id, platform, provider_game_id, analysis_type) DO UPDATE SET
	tactical = EXCLUDED.tactical, positional = EXCLUDED.positional,
	aggressive = EXCLUDED.aggressive, patient = EXCLUDED.patient,
	novelty = EXCLUDED.novelty, staleness = EXCLUDED.staleness,
	accuracy = EXCLUDED.accuracy, opening_accuracy = EXCLUDED.opening_accuracy,
	middlegame_accuracy = EXCLUDED.middlegame_accuracy, endgame_accuracy = EXCLUDED.endgame_accuracy,
	best_count = EXCLUDED.best_count, great_count = EXCLUDED.great_count,
	excellent_count = EXCLUDED.excellent_count, good_count = EXCLUDED.good_count,
	inaccuracy_count = EXCLUDED.inaccuracy_count, mistake_count = EXCLUDED.mistake_count,
	blunder_count = EXCLUDED.blunder_count, move_count = EXCLUDED.move_count,
	updated_at = NOW()
`

// Upsert writes the aggregate row within tx, atomically with the move rows
// written by MoveAnalysesRepo.ReplaceForGame in the same transaction.
func (r *GameAnalysesRepo) Upsert(ctx context.Context, tx pgx.Tx, userID string, platform models.Platform, providerGameID string, analysisType models.AnalysisType, a models.GameAnalysis) error {
	canonical := CanonicalUserID(userID, platform)
	_, err := tx.Exec(ctx, upsertGameAnalysisSQL,
		canonical, platform, providerGameID, analysisType,
		a.Subscores.Tactical, a.Subscores.Positional, a.Subscores.Aggressive,
		a.Subscores.Patient, a.Subscores.Novelty, a.Subscores.Staleness,
		a.Accuracy, a.PhaseAccuracies.Opening, a.PhaseAccuracies.Middlegame, a.PhaseAccuracies.Endgame,
		a.Counts.Best, a.Counts.Great, a.Counts.Excellent, a.Counts.Good,
		a.Counts.Inaccuracy, a.Counts.Mistake, a.Counts.Blunder, a.MoveCount,
	)
	if err != nil {
		return apperr.Wrap(apperr.TagPersistenceFailed, "upsert game analysis aggregate", err)
	}
	return nil
}

const getGameAnalysisSQL = `
SELECT tactical, positional, aggressive, patient, novelty, staleness,
       accuracy, opening_accuracy, middlegame_accuracy, endgame_accuracy,
       best_count, great_count, excellent_count, good_count, inaccuracy_count,
       mistake_count, blunder_count, move_count, created_at, updated_at
FROM game_analyses
WHERE user_id = $1 AND platform = $2 AND provider_game_id = $3 AND analysis_type = $4
`

// Get fetches one game's aggregate, if present.
func (r *GameAnalysesRepo) Get(ctx context.Context, userID string, platform models.Platform, providerGameID string, analysisType models.AnalysisType) (models.GameAnalysis, bool, error) {
	canonical := CanonicalUserID(userID, platform)
	a := models.GameAnalysis{
		UserID: canonical, Platform: platform, ProviderGameID: providerGameID, AnalysisType: analysisType,
	}
	err := r.pool.QueryRow(ctx, getGameAnalysisSQL, canonical, platform, providerGameID, analysisType).Scan(
		&a.Subscores.Tactical, &a.Subscores.Positional, &a.Subscores.Aggressive,
		&a.Subscores.Patient, &a.Subscores.Novelty, &a.Subscores.Staleness,
		&a.Accuracy, &a.PhaseAccuracies.Opening, &a.PhaseAccuracies.Middlegame, &a.PhaseAccuracies.Endgame,
		&a.Counts.Best, &a.Counts.Great, &a.Counts.Excellent, &a.Counts.Good, &a.Counts.Inaccuracy,
		&a.Counts.Mistake, &a.Counts.Blunder, &a.MoveCount, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return models.GameAnalysis{}, false, nil
		}
		return models.GameAnalysis{}, false, apperr.Wrap(apperr.TagPersistenceFailed, "fetch game analysis", err)
	}
	return a, true, nil
}

const listGameAnalysesForTenantSQL = `
SELECT tactical, positional, aggressive, patient, novelty, staleness,
       accuracy, opening_accuracy, middlegame_accuracy, endgame_accuracy,
       best_count, great_count, excellent_count, good_count, inaccuracy_count,
       mistake_count, blunder_count, move_count, provider_game_id, created_at, updated_at
FROM game_analyses
WHERE user_id = $1 AND platform = $2 AND analysis_type = $3
`

// ListForTenant returns every game's aggregate for a tenant, the input to
// internal/personality.Aggregate's cross-game trait rollup.
func (r *GameAnalysesRepo) ListForTenant(ctx context.Context, userID string, platform models.Platform, analysisType models.AnalysisType) ([]models.GameAnalysis, error) {
	canonical := CanonicalUserID(userID, platform)
	rows, err := r.pool.Query(ctx, listGameAnalysesForTenantSQL, canonical, platform, analysisType)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagPersistenceFailed, "list game analyses for tenant", err)
	}
	defer rows.Close()

	var out []models.GameAnalysis
	for rows.Next() {
		a := models.GameAnalysis{UserID: canonical, Platform: platform, AnalysisType: analysisType}
		if err := rows.Scan(
			&a.Subscores.Tactical, &a.Subscores.Positional, &a.Subscores.Aggressive,
			&a.Subscores.Patient, &a.Subscores.Novelty, &a.Subscores.Staleness,
			&a.Accuracy, &a.PhaseAccuracies.Opening, &a.PhaseAccuracies.Middlegame, &a.PhaseAccuracies.Endgame,
			&a.Counts.Best, &a.Counts.Great, &a.Counts.Excellent, &a.Counts.Good, &a.Counts.Inaccuracy,
			&a.Counts.Mistake, &a.Counts.Blunder, &a.MoveCount, &a.ProviderGameID, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, apperr.Wrap(apperr.TagPersistenceFailed, "scan game analysis row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.TagPersistenceFailed, "iterate game analysis rows", err)
	}
	return out, nil
}

// PersonalityScoresRepo stores the player-level aggregate.
type PersonalityScoresRepo struct {
	pool *pgxpool.Pool
}

const upsertPersonalitySQL = `
INSERT INTO personality_scores (user_id, platform, tactical, positional, aggressive, patient, novelty, staleness, games_used, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
ON CONFLICT (user_id, platform) DO UPDATE SET
	tactical = EXCLUDED.tactical, positional = EXCLUDED.positional,
	aggressive = EXCLUDED.aggressive, patient = EXCLUDED.patient,
	novelty = EXCLUDED.novelty, staleness = EXCLUDED.staleness,
	games_used = EXCLUDED.games_used, updated_at = NOW()
`

// Upsert stores the rederived player-level personality scores.
func (r *PersonalityScoresRepo) Upsert(ctx context.Context, s models.PersonalityScores) error {
	canonical := CanonicalUserID(s.UserID, s.Platform)
	_, err := r.pool.Exec(ctx, upsertPersonalitySQL,
		canonical, s.Platform, s.Tactical, s.Positional, s.Aggressive, s.Patient, s.Novelty, s.Staleness, s.GamesUsed,
	)
	if err != nil {
		return apperr.Wrap(apperr.TagPersistenceFailed, "upsert personality scores", err)
	}
	return nil
}

const getPersonalitySQL = `
SELECT tactical, positional, aggressive, patient, novelty, staleness, games_used, updated_at
FROM personality_scores WHERE user_id = $1 AND platform = $2
`

// Get fetches a tenant's last-computed personality scores, if any have been
// stored yet.
func (r *PersonalityScoresRepo) Get(ctx context.Context, userID string, platform models.Platform) (models.PersonalityScores, bool, error) {
	canonical := CanonicalUserID(userID, platform)
	s := models.PersonalityScores{UserID: canonical, Platform: platform}
	err := r.pool.QueryRow(ctx, getPersonalitySQL, canonical, platform).Scan(
		&s.Tactical, &s.Positional, &s.Aggressive, &s.Patient, &s.Novelty, &s.Staleness, &s.GamesUsed, &s.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return models.PersonalityScores{}, false, nil
		}
		return models.PersonalityScores{}, false, apperr.Wrap(apperr.TagPersistenceFailed, "fetch personality scores", err)
	}
	return s, true, nil
}
