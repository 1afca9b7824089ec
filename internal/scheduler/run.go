package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/notnil/chess"

	"github.com/chessanalytics/core/internal/analysis"
	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/importer"
	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/internal/opening"
	"github.com/chessanalytics/core/internal/personality"
)

// startJob builds the job spec and record, then launches the execution
// loop on a detached goroutine, returning the queued job for immediate
// polling (spec §4.3 progress snapshot).
func (s *Scheduler) startJob(req models.AnalyzeRequest, games []models.Game, movetexts []string) *models.AnalysisJob {
	targets := make([]models.GameIdentity, len(games))
	for i, g := range games {
		targets[i] = models.GameIdentity{UserID: req.UserID, Platform: req.Platform, ProviderGameID: g.ProviderGameID}
	}

	kind := models.JobSingleGame
	if req.Kind == models.RequestBatch {
		kind = models.JobBatch
	}

	spec := models.AnalysisJobSpec{
		UserID:       req.UserID,
		Platform:     req.Platform,
		Kind:         kind,
		Targets:      targets,
		AnalysisType: req.AnalysisType,
		Depth:        s.defaultDepth,
		TimePerMoveS: s.defaultTimePerMove.Seconds(),
		IsAnonymous:  req.IsAnonymous,
		ClientIP:     req.ClientIP,
		AccountTier:  req.AccountTier,
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := s.jobs.create(spec, cancel)

	go s.run(ctx, job, games, movetexts)
	return job
}

func parseMovetext(movetext string) (*chess.Game, error) {
	pgnFn, err := chess.PGN(strings.NewReader(movetext))
	if err != nil {
		return nil, apperr.Wrap(apperr.TagParseError, "parse stored movetext", err)
	}
	return chess.NewGame(pgnFn), nil
}

type runTarget struct {
	game   models.Game
	parsed *chess.Game
}

// run is the job execution loop: parses every target's movetext, derives
// the job-level timeout from total ply count (spec §4.3: "max_job_seconds,
// default 10x the product of move count and per-move time"), fans out a
// worker per game bounded by maxConcurrentGames, and settles the job's
// terminal state once every worker returns.
func (s *Scheduler) run(ctx context.Context, job *models.AnalysisJob, games []models.Game, movetexts []string) {
	log := s.logger(job.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("analysis job panicked: %v", r)
			s.jobs.setState(job.ID, models.JobFailed)
			s.jobs.setError(job.ID, string(apperr.TagPersistenceFailed))
		}
	}()

	if len(games) == 0 {
		s.jobs.setState(job.ID, models.JobRunning)
		s.jobs.setState(job.ID, models.JobCompleted)
		return
	}

	s.jobs.setState(job.ID, models.JobRunning)

	var targets []runTarget
	totalPlies := 0
	for i, g := range games {
		if i >= len(movetexts) || movetexts[i] == "" {
			continue
		}
		parsed, err := parseMovetext(movetexts[i])
		if err != nil {
			log.WithError(err).WithField("provider_game_id", g.ProviderGameID).
				Warn("skipping game with unparseable stored movetext")
			continue
		}
		if g.Color == "" {
			headers := headersOf(parsed)
			g.Color = importer.DetermineColor(headers, job.Spec.UserID)
			if g.Color == "" {
				g.Color = models.ColorWhite
			}
		}
		targets = append(targets, runTarget{game: g, parsed: parsed})
		totalPlies += len(parsed.Moves())
	}

	s.jobs.updateProgress(job.ID, func(p *models.ProgressSnapshot) {
		p.JobsTotal = len(targets)
		p.MovesTotal = totalPlies
		p.Phase = "running"
	})

	perMove := time.Duration(job.Spec.TimePerMoveS * float64(time.Second))
	if perMove <= 0 {
		perMove = s.defaultTimePerMove
	}
	jobTimeout := 10 * time.Duration(totalPlies) * perMove
	if jobTimeout <= 0 {
		jobTimeout = perMove
	}
	runCtx, cancelTimeout := context.WithTimeout(ctx, jobTimeout)
	defer cancelTimeout()

	sem := make(chan struct{}, s.maxConcurrentGames)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for _, t := range targets {
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(t runTarget) {
			defer wg.Done()
			defer func() { <-sem }()

			s.processGame(runCtx, job, t.game, t.parsed)

			mu.Lock()
			completed++
			n := completed
			mu.Unlock()
			s.jobs.updateProgress(job.ID, func(p *models.ProgressSnapshot) {
				p.JobsCompleted = n
				p.CurrentGameID = t.game.ProviderGameID
			})
		}(t)
	}
	wg.Wait()

	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			s.jobs.setState(job.ID, models.JobCancelled)
		} else {
			s.jobs.setState(job.ID, models.JobFailed)
			s.jobs.setError(job.ID, string(apperr.TagTimeout))
		}
		return
	}
	s.jobs.setState(job.ID, models.JobCompleted)
}

func headersOf(g *chess.Game) map[string]string {
	headers := make(map[string]string)
	for _, tp := range g.TagPairs() {
		headers[tp.Key] = tp.Value
	}
	return headers
}

// processGame computes one game's move analyses and aggregate, then
// persists them. A failure here is logged against the job's progress but
// does not abort sibling games — spec §4.3 scopes the persistence-protocol
// retry to a single game, not the whole batch.
func (s *Scheduler) processGame(ctx context.Context, job *models.AnalysisJob, g models.Game, parsed *chess.Game) {
	log := s.logger(job.ID).WithField("provider_game_id", g.ProviderGameID)

	opts := analysis.Options{
		Depth:                  job.Spec.Depth,
		TimePerMove:            time.Duration(job.Spec.TimePerMoveS * float64(time.Second)),
		SkillLevel:             s.skillLevel,
		MaxConcurrentPositions: s.maxConcurrentPositions,
	}
	if opts.Depth <= 0 {
		opts.Depth = s.defaultDepth
	}
	if opts.TimePerMove <= 0 {
		opts.TimePerMove = s.defaultTimePerMove
	}

	// Per-game timeout, spec §5: sum(time_limit) * 1.5 across the game's
	// plies, evaluated twice each (before/after).
	plyCount := len(parsed.Moves())
	perGameTimeout := time.Duration(float64(plyCount*2) * float64(opts.TimePerMove) * 1.5)
	if perGameTimeout <= 0 {
		perGameTimeout = opts.TimePerMove
	}
	gameCtx, cancel := context.WithTimeout(ctx, perGameTimeout)
	defer cancel()

	moves, aggregate, err := analysis.AnalyzeGame(gameCtx, s.engines, parsed, g.Color, job.Spec.AnalysisType, opts)
	if err != nil {
		// A cancelled or timed-out ctx surfaces here as a real error (see
		// internal/engine.Pool.Evaluate); the per-game aggregate is never
		// persisted for it (spec §4.3).
		log.WithError(err).Error("analysis failed")
		tag, ok := apperr.AsTag(err)
		if !ok {
			tag = apperr.TagEngineUnavailable
		}
		s.jobs.setError(job.ID, string(tag))
		return
	}

	s.jobs.updateProgress(job.ID, func(p *models.ProgressSnapshot) {
		p.MovesAnalyzed += len(moves)
		for _, m := range moves {
			if m.IsFallback {
				p.FallbackMoves++
			}
		}
	})

	var persistErr error
	for attempt := 0; attempt <= maxPersistRetries; attempt++ {
		persistErr = s.persistGame(ctx, job.Spec.UserID, job.Spec.Platform, g.ProviderGameID, job.Spec.AnalysisType, moves, aggregate, parsed)
		if persistErr == nil {
			return
		}
		log.WithError(persistErr).WithField("attempt", attempt+1).Warn("persistence attempt failed")
	}

	log.WithError(persistErr).Error("persistence exhausted retries")
	s.jobs.setError(job.ID, string(apperr.TagPersistenceFailed))
}

// persistGame implements spec §4.3's atomicity protocol: an FK preflight
// outside the transaction, then delete-then-insert move rows + upsert
// aggregate inside one pgx.Tx, then cache invalidation strictly after
// commit.
func (s *Scheduler) persistGame(ctx context.Context, userID string, platform models.Platform, providerGameID string, analysisType models.AnalysisType, moves []models.MoveAnalysis, aggregate models.GameAnalysis, parsed *chess.Game) error {
	if err := s.preflightGame(ctx, userID, platform, providerGameID, parsed); err != nil {
		return err
	}

	tx, err := s.store.MoveAnalyses.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.store.MoveAnalyses.ReplaceForGame(ctx, tx, userID, platform, providerGameID, analysisType, moves); err != nil {
		return err
	}
	if err := s.store.GameAnalyses.Upsert(ctx, tx, userID, platform, providerGameID, analysisType, aggregate); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.TagPersistenceFailed, "commit analysis transaction", err)
	}

	s.analytics.InvalidateTenant(userID, platform)

	if err := s.recomputePersonality(ctx, userID, platform, analysisType); err != nil {
		// The per-game rows are already committed; a stale player profile is
		// recoverable on the next successful game, so this never fails the job.
		s.logger("").WithError(err).WithFields(map[string]interface{}{
			"user_id":  userID,
			"platform": platform,
		}).Warn("personality rollup failed, player profile left stale")
	}
	return nil
}

// maxPersonalityRollupGames bounds how many of a tenant's games feed the
// opening-repertoire signal in recomputePersonality; beyond this, the
// oldest games stop influencing novelty/staleness.
const maxPersonalityRollupGames = 5000

// recomputePersonality re-derives a tenant's player-level PersonalityScores
// from every stored per-game aggregate plus its opening-repertoire signal
// (spec §4.5), and stores the result. Runs after every successful game
// persist rather than on a separate schedule, since GameAnalysesRepo already
// holds exactly the per-game trait contributions personality.Aggregate needs.
func (s *Scheduler) recomputePersonality(ctx context.Context, userID string, platform models.Platform, analysisType models.AnalysisType) error {
	gameAnalyses, err := s.store.GameAnalyses.ListForTenant(ctx, userID, platform, analysisType)
	if err != nil {
		return err
	}
	games, err := s.store.Games.GetOrdered(ctx, userID, platform, maxPersonalityRollupGames, 0)
	if err != nil {
		return err
	}

	traits := make([]personality.GameTraits, len(gameAnalyses))
	for i, ga := range gameAnalyses {
		traits[i] = personality.GameTraits{Subscores: ga.Subscores, MoveCount: ga.MoveCount}
	}

	var openingNames []string
	for _, g := range games {
		if g.Opening == "" || g.Color == "" {
			continue
		}
		classification := s.openings.Classify(g.Opening, g.OpeningFamily, nil)
		if classification.MatchesColor(g.Color) {
			openingNames = append(openingNames, classification.Name)
		}
	}
	rep := personality.ComputeRepertoire(openingNames)
	scores := personality.Aggregate(userID, platform, traits, rep)

	return s.store.PersonalityScores.Upsert(ctx, scores)
}

// preflightGame implements spec §4.3's foreign-key preflight: verify the
// referenced Game row exists before inserting Move Analysis rows, and
// auto-create a minimal one from the PGN's own headers if not — this avoids
// the FK-violation-after-analysis failure mode for single-game requests
// that target a game the importer never persisted.
func (s *Scheduler) preflightGame(ctx context.Context, userID string, platform models.Platform, providerGameID string, parsed *chess.Game) error {
	exists, err := s.store.Games.Exists(ctx, userID, platform, providerGameID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	headers := headersOf(parsed)
	san := opening.MovesFromParsedGame(parsed)
	classification := s.openings.Classify(headers["Opening"], headers["ECO"], san)
	color := importer.DetermineColor(headers, userID)
	if color == "" {
		color = models.ColorWhite
	}

	minimal := models.Game{
		UserID:            userID,
		Platform:          platform,
		ProviderGameID:    providerGameID,
		Color:             color,
		Result:            resultFromHeaders(headers, color),
		TimeControl:       headers["TimeControl"],
		Opening:           classification.Name,
		OpeningNormalized: classification.Name,
		OpeningFamily:     classification.Family,
	}

	s.logger("").WithFields(map[string]interface{}{
		"provider_game_id": providerGameID,
		"tag":              string(apperr.TagFKViolationPreempted),
	}).Info("auto-created minimal game row ahead of move analysis insert")

	_, err = s.store.Games.Upsert(ctx, []models.Game{minimal})
	return err
}

func resultFromHeaders(headers map[string]string, color models.Color) models.Result {
	switch headers["Result"] {
	case "1-0":
		if color == models.ColorWhite {
			return models.ResultWin
		}
		return models.ResultLoss
	case "0-1":
		if color == models.ColorBlack {
			return models.ResultWin
		}
		return models.ResultLoss
	default:
		return models.ResultDraw
	}
}
