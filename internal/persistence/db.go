// Package persistence wraps the relational store with idempotent upserts
// and chronologically ordered reads, grounded on Piemme99-TreeChess's
// internal/repository package but generalized from package-level globals
// into an explicit Store value threaded through the composition root.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultQueryTimeout bounds any single query issued through Store when the
// caller's context carries no earlier deadline.
const DefaultQueryTimeout = 5 * time.Second

// Store owns the shared pgx connection pool and the repos built on it.
type Store struct {
	Pool *pgxpool.Pool

	Games              *GamesRepo
	PGNs               *PGNRepo
	MoveAnalyses       *MoveAnalysesRepo
	GameAnalyses       *GameAnalysesRepo
	PersonalityScores  *PersonalityScoresRepo
	ImportSessions     *ImportSessionRepo
	UsageTracking      *UsageTrackingRepo
}

// Open connects to databaseURL, runs pending migrations, and wires repos.
func Open(ctx context.Context, databaseURL string, maxConns int) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logrus.WithField("component", "persistence").Info("database pool ready")

	return &Store{
		Pool:              pool,
		Games:             &GamesRepo{pool: pool},
		PGNs:              &PGNRepo{pool: pool},
		MoveAnalyses:      &MoveAnalysesRepo{pool: pool},
		GameAnalyses:      &GameAnalysesRepo{pool: pool},
		PersonalityScores: &PersonalityScoresRepo{pool: pool},
		ImportSessions:    &ImportSessionRepo{pool: pool},
		UsageTracking:     &UsageTrackingRepo{pool: pool},
	}, nil
}

// runMigrations applies every embedded migration via the pgx/v5 stdlib
// bridge, grounded on the devops-mcp manifest's golang-migrate/migrate/v4
// usage rather than the teacher's inline schema string (TreeChess runs an
// idempotent CREATE TABLE IF NOT EXISTS block directly against the pool;
// generalized here into versioned migrations since the schema now has to
// evolve across a constraint fix, see DESIGN.md).
func runMigrations(databaseURL string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open stdlib bridge: %w", err)
	}
	defer db.Close()

	dbDriver, err := pgx.WithInstance(db, &pgx.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}
