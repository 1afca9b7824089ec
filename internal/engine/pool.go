// Package engine manages a bounded pool of chess-engine subprocesses and
// exposes position evaluation with crash recovery and heuristic fallback.
package engine

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/pkg/uci"
)

// Pool owns a bounded set of engine subprocesses (spec §4.1: "Stateless per
// request; recycles engines on crash").
type Pool struct {
	available  chan *uci.Engine
	binaryPath string
	config     models.EngineOptions
	poolCfg    models.EnginePoolConfig
	mutex      sync.RWMutex
	engines    []*uci.Engine
	engineInfo uci.EngineInfo
}

// NewPool builds a pool sized by cfg, but does not start engines yet; call
// Start to spawn the subprocesses (mirrors the teacher's
// NewStockfishService/Initialize split).
func NewPool(cfg models.EnginePoolConfig) *Pool {
	return &Pool{
		available:  make(chan *uci.Engine, cfg.MaxConcurrentEngines),
		binaryPath: cfg.ExecutablePath,
		poolCfg:    cfg,
		config: models.EngineOptions{
			Threads:          cfg.ThreadsPerEngine,
			Hash:             cfg.HashMB,
			Contempt:         0,
			AnalysisContempt: "off",
			SkillLevel:       cfg.SkillLevel,
		},
	}
}

// Start spawns and configures MaxConcurrentEngines subprocesses.
func (p *Pool) Start() error {
	for i := 0; i < p.poolCfg.MaxConcurrentEngines; i++ {
		eng, err := p.spawn()
		if err != nil {
			return fmt.Errorf("spawn engine %d: %w", i, err)
		}
		p.mutex.Lock()
		p.engines = append(p.engines, eng)
		p.mutex.Unlock()
		p.available <- eng
	}
	logrus.WithFields(logrus.Fields{
		"component": "engine_pool",
		"engines":   len(p.engines),
		"tier":      p.poolCfg.Tier,
	}).Info("engine pool started")
	return nil
}

func (p *Pool) spawn() (*uci.Engine, error) {
	eng, err := uci.NewEngine(p.binaryPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagEngineUnavailable, "engine spawn failed", err)
	}
	if err := eng.Initialize(); err != nil {
		return nil, apperr.Wrap(apperr.TagEngineUnavailable, "engine handshake failed", err)
	}
	if err := p.configure(eng); err != nil {
		return nil, apperr.Wrap(apperr.TagEngineUnavailable, "engine configuration failed", err)
	}
	p.mutex.Lock()
	p.engineInfo = eng.GetEngineInfo()
	p.mutex.Unlock()
	return eng, nil
}

func (p *Pool) configure(eng *uci.Engine) error {
	if err := eng.SetOption("Threads", fmt.Sprintf("%d", p.config.Threads)); err != nil {
		return err
	}
	if err := eng.SetOption("Hash", fmt.Sprintf("%d", p.config.Hash)); err != nil {
		return err
	}
	if p.config.SkillLevel > 0 {
		if err := eng.SetOption("Skill Level", fmt.Sprintf("%d", p.config.SkillLevel)); err != nil {
			return err
		}
	}
	return eng.SetOption("MultiPV", "1")
}

// acquire blocks until an engine is available or ctx is done.
func (p *Pool) acquire(ctx context.Context) (*uci.Engine, error) {
	select {
	case eng := <-p.available:
		return eng, nil
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.TagTimeout, "timed out waiting for an engine", ctx.Err())
	}
}

// release returns an engine to the pool after resetting it for a new game,
// swapping in a freshly spawned replacement if the engine died.
func (p *Pool) release(eng *uci.Engine) {
	if eng.Exited() {
		replacement, err := p.spawn()
		if err != nil {
			logrus.WithError(err).Error("failed to respawn engine after exit")
			return
		}
		p.mutex.Lock()
		for i, e := range p.engines {
			if e == eng {
				p.engines[i] = replacement
				break
			}
		}
		p.mutex.Unlock()
		p.available <- replacement
		return
	}

	if err := eng.NewGame(); err != nil {
		logrus.WithError(err).Warn("failed to reset engine for new game")
	}
	select {
	case p.available <- eng:
	default:
		logrus.Warn("engine pool buffer full on release, dropping reference")
	}
}

// Fingerprint computes the position fingerprint used as the evaluation
// cache key (spec §4.1): SHA-1(fen ‖ depth ‖ skill).
func Fingerprint(fen string, depth int, skill int) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d", fen, depth, skill)
	return hex.EncodeToString(h.Sum(nil))
}

// Evaluate analyzes a single position. Engine crashes during the search are
// retried at most twice on a fresh engine, then fall back to the heuristic
// evaluator, marked IsFallback (spec §4.1 OOM/crash recovery). A cancelled or
// timed-out ctx is not a crash: it is propagated immediately with no retry
// and no fallback, so a cancelled job aborts instead of quietly persisting a
// heuristic result (spec §4.3, §5).
func (p *Pool) Evaluate(ctx context.Context, fen string, depth int, skill int, timeLimit time.Duration, multiPV int) (*models.EngineEvaluation, error) {
	var result *models.EngineEvaluation

	boff := backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 2)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		eval, err := p.evaluateOnce(ctx, fen, depth, timeLimit, multiPV)
		if err != nil {
			if tag, ok := apperr.AsTag(err); ok && tag == apperr.TagTimeout {
				return backoff.Permanent(err)
			}
			logrus.WithError(err).WithField("attempt", attempt).Warn("engine evaluation failed, retrying")
			return err
		}
		result = eval
		return nil
	}, boff)

	if err != nil {
		// backoff.Retry unwraps a backoff.Permanent error back to its cause
		// before returning, so the TagTimeout check here sees the same
		// taggedError evaluateOnce produced.
		if tag, ok := apperr.AsTag(err); ok && tag == apperr.TagTimeout {
			return nil, err
		}
		logrus.WithError(err).Warn("engine evaluation exhausted retries, using heuristic fallback")
		return FallbackEvaluate(fen), nil
	}
	return result, nil
}

func (p *Pool) evaluateOnce(ctx context.Context, fen string, depth int, timeLimit time.Duration, multiPV int) (*models.EngineEvaluation, error) {
	eng, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(eng)

	if err := eng.SetPosition(fen, nil); err != nil {
		return nil, apperr.Wrap(apperr.TagEngineCrash, "failed to set position", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, timeLimit+100*time.Millisecond)
	defer cancel()

	result, err := eng.Search(searchCtx, depth, int(timeLimit.Milliseconds()), multiPV)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Wrap(apperr.TagTimeout, "engine search cancelled", err)
		}
		return nil, apperr.Wrap(apperr.TagEngineCrash, "engine search failed", err)
	}

	eval := &models.EngineEvaluation{
		Score:              result.Score,
		Depth:              result.Depth,
		BestMove:           result.BestMove,
		PrincipalVariation: result.PrincipalVariation,
		Nodes:              result.Nodes,
		Time:               result.Time,
	}
	if result.ScoreType == "mate" {
		mate := models.MateScoreSentinel
		if result.Score < 0 {
			mate = -mate
		}
		eval.Score = mate
		eval.Mate = &result.Score
	}
	return eval, nil
}

// EvaluateBatch evaluates positions sequentially per engine, parallel across
// up to MaxConcurrentEngines engines (spec §4.1 evaluate_batch contract).
func (p *Pool) EvaluateBatch(ctx context.Context, fens []string, depth int, skill int, timeLimit time.Duration) ([]*models.EngineEvaluation, error) {
	results := make([]*models.EngineEvaluation, len(fens))
	sem := make(chan struct{}, p.poolCfg.MaxConcurrentEngines)
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	for i, fen := range fens {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, fen string) {
			defer wg.Done()
			defer func() { <-sem }()
			eval, err := p.Evaluate(ctx, fen, depth, skill, timeLimit, 1)
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			results[i] = eval
		}(i, fen)
	}
	wg.Wait()
	return results, firstErr
}

// Config returns the pool's current engine option set.
func (p *Pool) Config() models.EngineOptions {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.config
}

// Info returns the identity reported by the underlying engine binary.
func (p *Pool) Info() uci.EngineInfo {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.engineInfo
}

// Limits returns the caller-facing bounds for the pool's tier.
func (p *Pool) Limits(maxDepth, maxTimeMs, maxMultiPV int) models.EngineLimits {
	return models.EngineLimits{MaxDepth: maxDepth, MaxTimeMs: maxTimeMs, MaxMultiPV: maxMultiPV}
}

// Shutdown force-closes every engine in the pool.
func (p *Pool) Shutdown() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, eng := range p.engines {
		if err := eng.Close(); err != nil {
			logrus.WithError(err).Warn("error closing engine during shutdown")
		}
	}
}
