// Package orchestrator is the thin dispatch layer the HTTP boundary calls
// into. It classifies a models.AnalyzeRequest by Kind and routes it one of
// two ways, per spec.md §4.3: the batch and single-game variants flow
// through internal/scheduler's quota-checked, persisted job queue; the
// position and move variants bypass it entirely as synchronous
// internal/engine.Pool calls with no job, no persistence, and no quota
// beyond the engine pool's own concurrency limit.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/notnil/chess"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/engine"
	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/internal/scheduler"
)

// Orchestrator wires the scheduler and the raw engine pool behind one
// surface so internal/handlers never imports either directly.
type Orchestrator struct {
	scheduler *scheduler.Scheduler
	engines   *engine.Pool
	display   *engine.Display
	tuner     *engine.Tuner
	limits    models.EngineLimits

	defaultDepth       int
	defaultTimePerMove time.Duration
	skillLevel         int
}

// New builds an Orchestrator. limits bounds what a caller may request for
// Position/Move analysis (spec §6: depth/time ceilings enforced at the
// boundary, not silently clamped deep in the engine pool).
func New(sched *scheduler.Scheduler, engines *engine.Pool, tuner *engine.Tuner, limits models.EngineLimits, defaultDepth int, defaultTimePerMove time.Duration, skillLevel int) *Orchestrator {
	return &Orchestrator{
		scheduler:          sched,
		engines:            engines,
		display:            engine.NewDisplay(),
		tuner:              tuner,
		limits:             limits,
		defaultDepth:       defaultDepth,
		defaultTimePerMove: defaultTimePerMove,
		skillLevel:         skillLevel,
	}
}

// PositionResult is the synchronous response shape for Position/Move
// requests: the raw engine evaluation plus the smoothed display overlay
// (spec.md §9 supplement), never persisted.
type PositionResult struct {
	FEN        string                    `json:"fen"`
	Evaluation models.EngineEvaluation   `json:"evaluation"`
	Display    *engine.DisplayEvaluation `json:"displayEvaluation"`
}

// Submit dispatches the schedulable request kinds (batch, single-game-by-id,
// single-game-by-pgn) into the scheduler's job queue.
func (o *Orchestrator) Submit(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisJob, error) {
	switch req.Kind {
	case models.RequestBatch, models.RequestSingleGameByID, models.RequestSingleGameByPGN:
		return o.scheduler.Submit(ctx, req)
	default:
		return nil, apperr.New(apperr.TagValidation, "request kind is not a schedulable job")
	}
}

// Progress polls a running job's snapshot.
func (o *Orchestrator) Progress(jobID string) (models.ProgressSnapshot, bool) {
	return o.scheduler.Progress(jobID)
}

// Cancel requests cancellation of a running job.
func (o *Orchestrator) Cancel(jobID string) bool {
	return o.scheduler.Cancel(jobID)
}

// AnalyzePosition evaluates a bare FEN, synchronously, with no job and no
// persistence (spec §6: position/move requests bypass the scheduler
// entirely).
func (o *Orchestrator) AnalyzePosition(ctx context.Context, req models.PositionRequest) (*PositionResult, error) {
	if strings.TrimSpace(req.FEN) == "" {
		return nil, apperr.New(apperr.TagValidation, "fen must not be empty")
	}
	depth := o.clampDepth(req.Depth)
	multiPV := req.MultiPV
	if multiPV < 1 {
		multiPV = 1
	}
	if multiPV > o.limits.MaxMultiPV {
		multiPV = o.limits.MaxMultiPV
	}

	pos, err := o.position(req.FEN)
	if err != nil {
		return nil, err
	}

	eval, err := o.engines.Evaluate(ctx, req.FEN, depth, o.skillLevel, o.defaultTimePerMove, multiPV)
	if err != nil {
		return nil, err
	}

	isWhiteToMove := pos.Turn() == chess.White
	return &PositionResult{
		FEN:        req.FEN,
		Evaluation: *eval,
		Display:    o.display.Normalize(eval.Score, isWhiteToMove, nil),
	}, nil
}

// AnalyzeMove applies one move to a FEN (accepted in either UCI or SAN form)
// and evaluates the resulting position.
func (o *Orchestrator) AnalyzeMove(ctx context.Context, req models.MoveRequest) (*PositionResult, error) {
	if strings.TrimSpace(req.FEN) == "" {
		return nil, apperr.New(apperr.TagValidation, "fen must not be empty")
	}
	if strings.TrimSpace(req.Move) == "" {
		return nil, apperr.New(apperr.TagValidation, "move must not be empty")
	}

	fenFn, err := chess.FEN(req.FEN)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagValidation, "invalid fen", err)
	}
	game := chess.NewGame(fenFn)

	mv, err := decodeMove(game.Position(), req.Move)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagValidation, "invalid move for this position", err)
	}
	if err := game.Move(mv); err != nil {
		return nil, apperr.Wrap(apperr.TagValidation, "illegal move", err)
	}

	afterFEN := game.Position().String()
	depth := o.clampDepth(req.Depth)

	eval, err := o.engines.Evaluate(ctx, afterFEN, depth, o.skillLevel, o.defaultTimePerMove, 1)
	if err != nil {
		return nil, err
	}

	isWhiteToMove := game.Position().Turn() == chess.White
	return &PositionResult{
		FEN:        afterFEN,
		Evaluation: *eval,
		Display:    o.display.Normalize(eval.Score, isWhiteToMove, nil),
	}, nil
}

// PerformanceMetrics surfaces the engine pool's auto-tuning diagnostics
// (spec.md §9 supplement).
func (o *Orchestrator) PerformanceMetrics() engine.PerformanceMetrics {
	return o.tuner.Report(40)
}

// Limits returns the caller-facing engine limits for a config endpoint.
func (o *Orchestrator) Limits() models.EngineLimits {
	return o.limits
}

func (o *Orchestrator) position(fen string) (*chess.Position, error) {
	fenFn, err := chess.FEN(fen)
	if err != nil {
		return nil, apperr.Wrap(apperr.TagValidation, "invalid fen", err)
	}
	return chess.NewGame(fenFn).Position(), nil
}

func (o *Orchestrator) clampDepth(depth int) int {
	if depth <= 0 {
		return o.defaultDepth
	}
	if depth > o.limits.MaxDepth {
		return o.limits.MaxDepth
	}
	return depth
}

// decodeMove accepts either UCI ("e2e4") or SAN ("Nf3") move text, trying
// UCI first. A UCI move is accepted only if it matches one of pos's legal
// moves; otherwise the text is tried as SAN.
func decodeMove(pos *chess.Position, moveText string) (*chess.Move, error) {
	uci := chess.UCINotation{}
	if mv, err := uci.Decode(pos, moveText); err == nil {
		for _, legal := range pos.ValidMoves() {
			if legal.S1() == mv.S1() && legal.S2() == mv.S2() && legal.Promo() == mv.Promo() {
				return legal, nil
			}
		}
	}
	san := chess.AlgebraicNotation{}
	mv, err := san.Decode(pos, moveText)
	if err != nil {
		return nil, fmt.Errorf("could not decode %q as UCI or SAN: %w", moveText, err)
	}
	return mv, nil
}
