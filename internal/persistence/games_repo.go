package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/models"
)

// GamesRepo is the idempotent upsert/read surface for the Game entity.
type GamesRepo struct {
	pool *pgxpool.Pool
}

// UpsertResult reports how many rows an Upsert call touched and how many
// it confirmed present via a follow-up read (spec §4.2/§4.4: a game is
// "truly committed" only after read-back verification).
type UpsertResult struct {
	Inserted int
	Updated  int
	Verified int
}

const upsertGameSQL = `
INSERT INTO games (
	user_id, platform, provider_game_id, played_at, color, result,
	my_rating, opponent_rating, time_control, opening, opening_normalized,
	opening_family, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, NOW())
ON CONFLICT (user_id, platform, provider_game_id) DO UPDATE SET
	played_at = EXCLUDED.played_at,
	color = EXCLUDED.color,
	result = EXCLUDED.result,
	my_rating = EXCLUDED.my_rating,
	opponent_rating = EXCLUDED.opponent_rating,
	time_control = EXCLUDED.time_control,
	opening = EXCLUDED.opening,
	opening_normalized = EXCLUDED.opening_normalized,
	opening_family = EXCLUDED.opening_family,
	updated_at = NOW()
RETURNING (xmax = 0) AS inserted, id
`

// Upsert inserts or overwrites display fields for a batch of games,
// preserving each game's identity, then verifies every affected id is
// actually readable (defence against a silently-failed write, spec §4.2).
func (r *GamesRepo) Upsert(ctx context.Context, batch []models.Game) (UpsertResult, error) {
	var result UpsertResult
	if len(batch) == 0 {
		return result, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return result, apperr.Wrap(apperr.TagPersistenceFailed, "begin upsert transaction", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(batch))
	for _, g := range batch {
		canonical := CanonicalUserID(g.UserID, g.Platform)
		var inserted bool
		var id uuid.UUID
		err := tx.QueryRow(ctx, upsertGameSQL,
			canonical, g.Platform, g.ProviderGameID, g.PlayedAt, g.Color, g.Result,
			g.MyRating, g.OpponentRating, g.TimeControl, g.Opening, g.OpeningNormalized,
			g.OpeningFamily,
		).Scan(&inserted, &id)
		if err != nil {
			return result, apperr.Wrap(apperr.TagPersistenceFailed, "upsert game row", err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, apperr.Wrap(apperr.TagPersistenceFailed, "commit upsert transaction", err)
	}

	verified, err := r.countByIDs(ctx, ids)
	if err != nil {
		return result, err
	}
	result.Verified = verified
	return result, nil
}

func (r *GamesRepo) countByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM games WHERE id = ANY($1)`, ids).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.TagPersistenceFailed, "verify upserted games", err)
	}
	return count, nil
}

const getOrderedSQL = `
SELECT user_id, platform, provider_game_id, played_at, color, result,
       my_rating, opponent_rating, time_control, opening, opening_normalized,
       opening_family, created_at, updated_at
FROM games
WHERE user_id = $1 AND platform = $2
ORDER BY played_at DESC, provider_game_id DESC
LIMIT $3 OFFSET $4
`

// GetOrdered returns a tenant's games newest-first (spec §4.4).
func (r *GamesRepo) GetOrdered(ctx context.Context, userID string, platform models.Platform, limit, offset int) ([]models.Game, error) {
	canonical := CanonicalUserID(userID, platform)
	rows, err := r.pool.Query(ctx, getOrderedSQL, canonical, platform, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagPersistenceFailed, "query ordered games", err)
	}
	defer rows.Close()
	return scanGames(rows)
}

const listUnanalyzedSQL = `
SELECT g.user_id, g.platform, g.provider_game_id, g.played_at, g.color, g.result,
       g.my_rating, g.opponent_rating, g.time_control, g.opening, g.opening_normalized,
       g.opening_family, g.created_at, g.updated_at
FROM games g
LEFT JOIN game_analyses ga
  ON ga.user_id = g.user_id AND ga.platform = g.platform
  AND ga.provider_game_id = g.provider_game_id AND ga.analysis_type = $3
WHERE g.user_id = $1 AND g.platform = $2 AND ga.provider_game_id IS NULL
ORDER BY g.played_at DESC, g.provider_game_id DESC
LIMIT $4
`

// ListUnanalyzed implements the left-anti-join of spec §4.3/§4.4: games
// with no Game Analysis row yet for the requested analysis_type.
func (r *GamesRepo) ListUnanalyzed(ctx context.Context, userID string, platform models.Platform, analysisType models.AnalysisType, n int) ([]models.Game, error) {
	canonical := CanonicalUserID(userID, platform)
	rows, err := r.pool.Query(ctx, listUnanalyzedSQL, canonical, platform, analysisType, n)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagPersistenceFailed, "query unanalyzed games", err)
	}
	defer rows.Close()
	return scanGames(rows)
}

const getGameSQL = `
SELECT user_id, platform, provider_game_id, played_at, color, result,
       my_rating, opponent_rating, time_control, opening, opening_normalized,
       opening_family, created_at, updated_at
FROM games WHERE user_id = $1 AND platform = $2 AND provider_game_id = $3
`

// Get fetches a single game by identity; ok is false if it has never been
// imported. Used by the scheduler when a single-game request targets a game
// whose Color and other display fields are needed but not supplied by the
// caller.
func (r *GamesRepo) Get(ctx context.Context, userID string, platform models.Platform, providerGameID string) (models.Game, bool, error) {
	canonical := CanonicalUserID(userID, platform)
	var g models.Game
	err := r.pool.QueryRow(ctx, getGameSQL, canonical, platform, providerGameID).Scan(
		&g.UserID, &g.Platform, &g.ProviderGameID, &g.PlayedAt, &g.Color, &g.Result,
		&g.MyRating, &g.OpponentRating, &g.TimeControl, &g.Opening, &g.OpeningNormalized,
		&g.OpeningFamily, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return models.Game{}, false, nil
		}
		return models.Game{}, false, apperr.Wrap(apperr.TagPersistenceFailed, "fetch game", err)
	}
	return g, true, nil
}

// Exists reports whether a Game row is already present for the identity,
// used by the scheduler's FK preflight before inserting Move Analysis rows
// (spec §4.3: auto-create a minimal Game row when the referenced one is
// missing, rather than fail the insert on the foreign key).
func (r *GamesRepo) Exists(ctx context.Context, userID string, platform models.Platform, providerGameID string) (bool, error) {
	canonical := CanonicalUserID(userID, platform)
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM games WHERE user_id = $1 AND platform = $2 AND provider_game_id = $3)`,
		canonical, platform, providerGameID,
	).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.TagPersistenceFailed, "check game existence", err)
	}
	return exists, nil
}

// NewestPlayedAt returns the most recent played_at for a tenant, used by
// the importer's probe-new phase; the zero time if the tenant has no games.
func (r *GamesRepo) NewestPlayedAt(ctx context.Context, userID string, platform models.Platform) (models.Game, bool, error) {
	return r.extremePlayedAt(ctx, userID, platform, "DESC")
}

// OldestPlayedAt returns the least recent played_at, used by the importer's
// backfill-old phase.
func (r *GamesRepo) OldestPlayedAt(ctx context.Context, userID string, platform models.Platform) (models.Game, bool, error) {
	return r.extremePlayedAt(ctx, userID, platform, "ASC")
}

func (r *GamesRepo) extremePlayedAt(ctx context.Context, userID string, platform models.Platform, direction string) (models.Game, bool, error) {
	canonical := CanonicalUserID(userID, platform)
	query := fmt.Sprintf(`
		SELECT user_id, platform, provider_game_id, played_at, color, result,
		       my_rating, opponent_rating, time_control, opening, opening_normalized,
		       opening_family, created_at, updated_at
		FROM games WHERE user_id = $1 AND platform = $2
		ORDER BY played_at %s LIMIT 1
	`, direction)

	rows, err := r.pool.Query(ctx, query, canonical, platform)
	if err != nil {
		return models.Game{}, false, apperr.Wrap(apperr.TagPersistenceFailed, "query extreme played_at", err)
	}
	defer rows.Close()

	games, err := scanGames(rows)
	if err != nil {
		return models.Game{}, false, err
	}
	if len(games) == 0 {
		return models.Game{}, false, nil
	}
	return games[0], true, nil
}

// DeleteUserAnalyses removes every analysis row for a tenant (operator
// tooling, spec §4.4), cascading through move analyses via the same
// transaction since there is no DB-level FK between the two identity keys.
func (r *GamesRepo) DeleteUserAnalyses(ctx context.Context, userID string, platform models.Platform) error {
	canonical := CanonicalUserID(userID, platform)
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.TagPersistenceFailed, "begin delete transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM move_analyses WHERE user_id = $1 AND platform = $2`, canonical, platform); err != nil {
		return apperr.Wrap(apperr.TagPersistenceFailed, "delete move analyses", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM game_analyses WHERE user_id = $1 AND platform = $2`, canonical, platform); err != nil {
		return apperr.Wrap(apperr.TagPersistenceFailed, "delete game analyses", err)
	}
	return tx.Commit(ctx)
}

func scanGames(rows pgx.Rows) ([]models.Game, error) {
	var games []models.Game
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(
			&g.UserID, &g.Platform, &g.ProviderGameID, &g.PlayedAt, &g.Color, &g.Result,
			&g.MyRating, &g.OpponentRating, &g.TimeControl, &g.Opening, &g.OpeningNormalized,
			&g.OpeningFamily, &g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, apperr.Wrap(apperr.TagPersistenceFailed, "scan game row", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.TagPersistenceFailed, "iterate game rows", err)
	}
	return games, nil
}
