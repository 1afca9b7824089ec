package persistence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/models"
)

// PGNRepo stores and fetches raw game movetext, kept separate from Game
// because it is large and independently cacheable (spec §3).
type PGNRepo struct {
	pool *pgxpool.Pool
}

const upsertPGNSQL = `
INSERT INTO pgn_records (user_id, platform, provider_game_id, movetext, fetched_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (user_id, platform, provider_game_id) DO UPDATE SET
	movetext = EXCLUDED.movetext, fetched_at = NOW()
`

// Upsert stores a PGN record, overwriting any prior movetext for the same
// identity (re-import may supersede a previously incomplete fetch).
func (r *PGNRepo) Upsert(ctx context.Context, rec models.PGNRecord) error {
	canonical := CanonicalUserID(rec.UserID, rec.Platform)
	_, err := r.pool.Exec(ctx, upsertPGNSQL, canonical, rec.Platform, rec.ProviderGameID, rec.Movetext)
	if err != nil {
		return apperr.Wrap(apperr.TagPersistenceFailed, "upsert pgn record", err)
	}
	return nil
}

const getPGNSQL = `
SELECT user_id, platform, provider_game_id, movetext, fetched_at
FROM pgn_records WHERE user_id = $1 AND platform = $2 AND provider_game_id = $3
`

// Get fetches a single PGN record; ok is false if it has never been stored.
func (r *PGNRepo) Get(ctx context.Context, userID string, platform models.Platform, providerGameID string) (models.PGNRecord, bool, error) {
	canonical := CanonicalUserID(userID, platform)
	var rec models.PGNRecord
	err := r.pool.QueryRow(ctx, getPGNSQL, canonical, platform, providerGameID).Scan(
		&rec.UserID, &rec.Platform, &rec.ProviderGameID, &rec.Movetext, &rec.FetchedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return models.PGNRecord{}, false, nil
		}
		return models.PGNRecord{}, false, apperr.Wrap(apperr.TagPersistenceFailed, "fetch pgn record", err)
	}
	return rec, true, nil
}

const getPGNsByIDsSQL = `
SELECT user_id, platform, provider_game_id, movetext, fetched_at
FROM pgn_records WHERE user_id = $1 AND platform = $2 AND provider_game_id = ANY($3)
`

// GetByIDs fetches multiple PGN records in one query. The caller MUST
// re-order the result to match its own chronological ordering — map/slice
// iteration here carries no ordering guarantee (spec §4.3 step 3).
func (r *PGNRepo) GetByIDs(ctx context.Context, userID string, platform models.Platform, providerGameIDs []string) (map[string]models.PGNRecord, error) {
	canonical := CanonicalUserID(userID, platform)
	rows, err := r.pool.Query(ctx, getPGNsByIDsSQL, canonical, platform, providerGameIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagPersistenceFailed, "fetch pgn records by id", err)
	}
	defer rows.Close()

	result := make(map[string]models.PGNRecord, len(providerGameIDs))
	for rows.Next() {
		var rec models.PGNRecord
		if err := rows.Scan(&rec.UserID, &rec.Platform, &rec.ProviderGameID, &rec.Movetext, &rec.FetchedAt); err != nil {
			return nil, apperr.Wrap(apperr.TagPersistenceFailed, "scan pgn record", err)
		}
		result[rec.ProviderGameID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.TagPersistenceFailed, "iterate pgn records", err)
	}
	return result, nil
}
