// Package scheduler enforces quotas, admits analysis jobs, assigns work to
// the engine pool, and persists outcomes (spec §4.3). It generalizes the
// teacher's single in-process AnalysisJob (internal/models/game.go) into a
// multi-tenant, quota-checked job queue running over a shared engine.Pool.
package scheduler

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/cache"
	"github.com/chessanalytics/core/internal/engine"
	"github.com/chessanalytics/core/internal/importer"
	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/internal/opening"
	"github.com/chessanalytics/core/internal/persistence"
	"github.com/chessanalytics/core/internal/ratelimit"
)

// defaultBatchLimit is used when a BatchRequest supplies no positive Limit.
const defaultBatchLimit = 20

// maxPersistRetries bounds the persistence-protocol retry of spec §4.3:
// "the job reports persistence_failed with cause and is retried up to
// twice."
const maxPersistRetries = 2

// Scheduler is the composition-root-owned job queue. One Scheduler is
// shared across all tenants; per-job state lives in jobStore.
type Scheduler struct {
	store     *persistence.Store
	engines   *engine.Pool
	analytics *cache.AnalyticsCache
	limiter   *ratelimit.Limiter
	openings  *opening.Table
	imp       *importer.Importer

	jobs *jobStore

	maxConcurrentGames     int
	maxConcurrentPositions int
	defaultDepth           int
	defaultTimePerMove     time.Duration
	skillLevel             int
}

// New builds a Scheduler. maxConcurrentEngines comes from
// EngineConfig.MaxConcurrentEngines and bounds both cross-game and
// within-game position concurrency, per spec §4.3's concurrency model.
func New(
	store *persistence.Store,
	engines *engine.Pool,
	analytics *cache.AnalyticsCache,
	limiter *ratelimit.Limiter,
	openings *opening.Table,
	imp *importer.Importer,
	maxConcurrentEngines int,
	defaultDepth int,
	defaultTimePerMove time.Duration,
	skillLevel int,
) *Scheduler {
	if maxConcurrentEngines < 1 {
		maxConcurrentEngines = 1
	}
	return &Scheduler{
		store:                  store,
		engines:                engines,
		analytics:              analytics,
		limiter:                limiter,
		openings:               openings,
		imp:                    imp,
		jobs:                   newJobStore(),
		maxConcurrentGames:     maxConcurrentEngines,
		maxConcurrentPositions: maxConcurrentEngines,
		defaultDepth:           defaultDepth,
		defaultTimePerMove:     defaultTimePerMove,
		skillLevel:             skillLevel,
	}
}

// Admit runs spec §4.3's admission-control steps 1-3 for a request: resolve
// the tenant's quota bucket from its tier, consult the rate limiter, and
// reject with a rate_limit_exceeded error on deny. The limiter itself fails
// open on a backend outage (internal/ratelimit), so Admit never blocks a
// request merely because the usage-tracking store is unreachable.
//
// This re-checks the same counter internal/middleware.RateLimit already
// incremented once at the HTTP boundary for POST /analyze — via the
// non-incrementing Peek* variants, so a request flowing through Submit is
// never counted against its quota twice. It stays read-only (rather than
// being dropped entirely) so a caller that reaches Submit without having
// gone through that middleware still gets a correct admission decision.
func (s *Scheduler) Admit(ctx context.Context, req models.AnalyzeRequest) (ratelimit.Decision, error) {
	var decision ratelimit.Decision
	switch {
	case req.IsAnonymous:
		decision = s.limiter.PeekAnonymous(ctx, req.ClientIP)
	case req.AccountTier == models.TierPaid:
		decision = s.limiter.CheckUnlimited()
	default:
		decision = s.limiter.PeekFreeTier(ctx, req.UserID)
	}
	if !decision.Allowed {
		return decision, ratelimit.ErrRateLimitExceeded(decision)
	}
	return decision, nil
}

// Submit admits and queues req, returning the created job immediately; the
// analysis itself runs on a detached goroutine and is polled via Progress.
// Only the batch and single-game request kinds flow through the scheduler
// (spec §4.3's quota/persistence machinery); position and move requests are
// synchronous engine-pool calls that bypass it entirely (see
// internal/orchestrator).
func (s *Scheduler) Submit(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisJob, error) {
	if _, err := s.Admit(ctx, req); err != nil {
		return nil, err
	}

	switch req.Kind {
	case models.RequestBatch:
		return s.submitBatch(ctx, req)
	case models.RequestSingleGameByID:
		return s.submitSingleGameByID(ctx, req)
	case models.RequestSingleGameByPGN:
		return s.submitSingleGameByPGN(ctx, req)
	default:
		return nil, apperr.New(apperr.TagValidation, "request kind is not schedulable")
	}
}

// Progress returns the polled progress view of a job (spec §4.3).
func (s *Scheduler) Progress(jobID string) (models.ProgressSnapshot, bool) {
	return s.jobs.snapshot(jobID)
}

// Cancel requests cancellation of a running job via its stored
// context.CancelFunc (spec §5: "every Job carries a context.Context with a
// context.CancelFunc stored for external cancellation").
func (s *Scheduler) Cancel(jobID string) bool {
	return s.jobs.cancelJob(jobID)
}

func (s *Scheduler) submitBatch(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisJob, error) {
	limit := defaultBatchLimit
	if req.Batch != nil && req.Batch.Limit > 0 {
		limit = req.Batch.Limit
	}

	games, err := s.selectBatchTargets(ctx, req.UserID, req.Platform, req.AnalysisType, limit)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return s.startJob(req, nil, nil), nil
	}

	movetexts, err := s.fetchOrderedPGNs(ctx, req.UserID, req.Platform, games)
	if err != nil {
		return nil, err
	}
	return s.startJob(req, games, movetexts), nil
}

func (s *Scheduler) submitSingleGameByID(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisJob, error) {
	if req.SingleGameByID == nil || req.SingleGameByID.ProviderGameID == "" {
		return nil, apperr.New(apperr.TagValidation, "single-game request missing provider_game_id")
	}
	providerGameID := req.SingleGameByID.ProviderGameID

	rec, ok, err := s.store.PGNs.Get(ctx, req.UserID, req.Platform, providerGameID)
	var movetext string
	if err != nil {
		return nil, err
	}
	if ok {
		movetext = rec.Movetext
	} else {
		movetext, err = s.imp.FetchMissingPGN(ctx, req.UserID, req.Platform, providerGameID)
		if err != nil {
			return nil, err
		}
	}

	game, ok, err := s.store.Games.Get(ctx, req.UserID, req.Platform, providerGameID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Not yet imported: the FK preflight will auto-create it from the
		// PGN headers once analysis runs. Color is left empty here; run
		// derives it from the PGN headers when it is unset.
		game = models.Game{UserID: req.UserID, Platform: req.Platform, ProviderGameID: providerGameID}
	}
	return s.startJob(req, []models.Game{game}, []string{movetext}), nil
}

// submitSingleGameByPGN analyzes an ad hoc PGN not necessarily imported
// (spec.md REDESIGN FLAGS's SingleGameByPGNRequest variant). Its identity is
// derived from the PGN's own Site/Link header when present, falling back to
// a deterministic "adhoc:" id hashed from the movetext so the persistence
// protocol's (user_id, platform, provider_game_id) key is always populated,
// even for a game the importer never touched.
func (s *Scheduler) submitSingleGameByPGN(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisJob, error) {
	if req.SingleGameByPGN == nil || strings.TrimSpace(req.SingleGameByPGN.PGN) == "" {
		return nil, apperr.New(apperr.TagValidation, "single-game-by-pgn request missing pgn text")
	}
	movetext := req.SingleGameByPGN.PGN

	parsedGames := importer.ParseGames(movetext)
	if len(parsedGames) == 0 {
		return nil, apperr.New(apperr.TagParseError, "pgn did not contain a playable game")
	}
	headers := parsedGames[0].Headers

	providerGameID := adhocGameID(headers, movetext)
	game := models.Game{UserID: req.UserID, Platform: req.Platform, ProviderGameID: providerGameID}
	return s.startJob(req, []models.Game{game}, []string{movetext}), nil
}

func adhocGameID(headers map[string]string, movetext string) string {
	if id := importer.ProviderGameIDFromAnyHeader(headers); id != "" {
		return id
	}
	sum := sha1.Sum([]byte(movetext))
	return "adhoc:" + hex.EncodeToString(sum[:])
}

func (s *Scheduler) logger(jobID string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"component": "scheduler", "job_id": jobID})
}
