package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/models"
)

// MoveAnalysesRepo stores per-ply analysis rows, replaced wholesale on
// re-analysis keyed by (identity, analysis_type) — spec §3.
type MoveAnalysesRepo struct {
	pool *pgxpool.Pool
}

const deleteMoveAnalysesSQL = `
DELETE FROM move_analyses
WHERE user_id = $1 AND platform = $2 AND provider_game_id = $3 AND analysis_type = $4
`

const insertMoveAnalysisSQL = `
INSERT INTO move_analyses (
	user_id, platform, provider_game_id, analysis_type, ply_index, move_san,
	phase, classification, centipawn_loss, is_best, is_blunder, is_mistake,
	is_inaccuracy, evaluation_before, evaluation_after, is_fallback
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`

// ReplaceForGame deletes existing rows for (identity, analysisType) and
// inserts the new set within tx — the caller is responsible for committing
// tx together with the Game Analysis upsert in the same transaction
// (spec §4.3 persistence protocol: "move rows before the game aggregate in
// the same transaction").
func (r *MoveAnalysesRepo) ReplaceForGame(ctx context.Context, tx pgx.Tx, userID string, platform models.Platform, providerGameID string, analysisType models.AnalysisType, moves []models.MoveAnalysis) error {
	canonical := CanonicalUserID(userID, platform)

	if _, err := tx.Exec(ctx, deleteMoveAnalysesSQL, canonical, platform, providerGameID, analysisType); err != nil {
		return apperr.Wrap(apperr.TagPersistenceFailed, "delete existing move analyses", err)
	}

	for _, m := range moves {
		_, err := tx.Exec(ctx, insertMoveAnalysisSQL,
			canonical, platform, providerGameID, analysisType, m.PlyIndex, m.MoveSAN,
			m.Phase, m.Classification, m.CentipawnLoss, m.IsBest, m.IsBlunder, m.IsMistake,
			m.IsInaccuracy, m.EvaluationBefore, m.EvaluationAfter, m.IsFallback,
		)
		if err != nil {
			return apperr.Wrap(apperr.TagPersistenceFailed, "insert move analysis row", err)
		}
	}
	return nil
}

const getMoveAnalysesSQL = `
SELECT user_id, platform, provider_game_id, analysis_type, ply_index, move_san,
       phase, classification, centipawn_loss, is_best, is_blunder, is_mistake,
       is_inaccuracy, evaluation_before, evaluation_after, is_fallback
FROM move_analyses
WHERE user_id = $1 AND platform = $2 AND provider_game_id = $3 AND analysis_type = $4
ORDER BY ply_index ASC
`

// GetForGame returns the stored move analyses for one game, ply-ordered.
func (r *MoveAnalysesRepo) GetForGame(ctx context.Context, userID string, platform models.Platform, providerGameID string, analysisType models.AnalysisType) ([]models.MoveAnalysis, error) {
	canonical := CanonicalUserID(userID, platform)
	rows, err := r.pool.Query(ctx, getMoveAnalysesSQL, canonical, platform, providerGameID, analysisType)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagPersistenceFailed, "query move analyses", err)
	}
	defer rows.Close()

	var moves []models.MoveAnalysis
	for rows.Next() {
		var m models.MoveAnalysis
		if err := rows.Scan(
			&m.UserID, &m.Platform, &m.ProviderGameID, &m.AnalysisType, &m.PlyIndex, &m.MoveSAN,
			&m.Phase, &m.Classification, &m.CentipawnLoss, &m.IsBest, &m.IsBlunder, &m.IsMistake,
			&m.IsInaccuracy, &m.EvaluationBefore, &m.EvaluationAfter, &m.IsFallback,
		); err != nil {
			return nil, apperr.Wrap(apperr.TagPersistenceFailed, "scan move analysis row", err)
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// BeginTx exposes transaction creation so callers (the scheduler) can group
// a ReplaceForGame call with a GameAnalysesRepo upsert atomically.
func (r *MoveAnalysesRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagPersistenceFailed, "begin analysis transaction", err)
	}
	return tx, nil
}
