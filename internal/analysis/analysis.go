// Package analysis runs the per-ply engine evaluation loop that turns a
// parsed game into move-level and game-level analysis records. Grounded on
// the teacher's StockfishService.AnalyzeGameEnhanced (internal/services/
// stockfish.go) — evaluate-before/apply-move/evaluate-after loop, phase
// detection, and accumulate-then-aggregate shape — generalized from a
// single Expected-Points accuracy score to spec.md §4.5's six-trait
// personality subscores and §3's fixed classification thresholds.
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/notnil/chess"
	"github.com/sirupsen/logrus"

	"github.com/chessanalytics/core/internal/engine"
	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/internal/personality"
)

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   1,
	chess.Knight: 3,
	chess.Bishop: 3,
	chess.Rook:   5,
	chess.Queen:  9,
	chess.King:   0,
}

// nonPawnMaterial sums both sides' non-pawn piece value on the board,
// used by detectPhase's endgame threshold (spec §4.5: "endgame when
// non-pawn material ≤ 10 pts").
func nonPawnMaterial(pos *chess.Position) int {
	total := 0
	board := pos.Board()
	for sq := chess.A1; sq <= chess.H8; sq++ {
		piece := board.Piece(sq)
		if piece.Type() == chess.NoPieceType || piece.Type() == chess.Pawn {
			continue
		}
		total += pieceValues[piece.Type()]
	}
	return total
}

// detectPhase implements spec §4.5's ply-based rule: opening through ply
// 20, middlegame 21-40 while non-pawn material remains above the endgame
// floor, else endgame (the "adaptive by piece count" clause — a long
// middlegame with heavy material still in play stays middlegame past ply
// 40 only if material is still above the floor; otherwise it has already
// become an endgame).
func detectPhase(plyIndex int, pos *chess.Position) models.GamePhase {
	if plyIndex <= 20 {
		return models.PhaseOpening
	}
	if nonPawnMaterial(pos) <= 10 {
		return models.PhaseEndgame
	}
	return models.PhaseMiddlegame
}

// Evaluator is the subset of engine.Pool's surface this package depends on,
// so tests can substitute a stub without spinning up real subprocesses.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string, depth int, skill int, timeLimit time.Duration, multiPV int) (*models.EngineEvaluation, error)
}

var _ Evaluator = (*engine.Pool)(nil)

// Options bounds a single analysis run.
type Options struct {
	Depth       int
	TimePerMove time.Duration
	SkillLevel  int

	// MaxConcurrentPositions caps how many of this game's plies are
	// evaluated at once (spec §4.3 concurrency model: sequential under
	// Hobby's max_concurrent_engines=1, up to max_concurrent_engines in
	// parallel otherwise). Each ply's before/after evaluation is an
	// independent function of the game's already-fully-replayed position
	// list, so there is no ordering dependency between plies to preserve.
	// Values below 1 are treated as 1 (sequential).
	MaxConcurrentPositions int
}

// bookPlyLimit mirrors the teacher's isBookMove cutoff (move_categorization.go):
// the first 15 full moves, i.e. 30 plies, are book-eligible.
const bookPlyLimit = 30

// AnalyzeGame runs the full per-ply evaluation loop for one side of a
// parsed game, returning per-move rows and the game-level aggregate
// (spec §4.3 step 1 of the persistence protocol: "compute all move
// analyses and the aggregate personality subscores").
func AnalyzeGame(ctx context.Context, eval Evaluator, g *chess.Game, color models.Color, analysisType models.AnalysisType, opts Options) ([]models.MoveAnalysis, models.GameAnalysis, error) {
	moves := g.Moves()
	positions := g.Positions()
	encoder := chess.AlgebraicNotation{}

	isPlayerPly := func(ply int) bool {
		// ply 0 = white's first move.
		if color == models.ColorWhite {
			return ply%2 == 0
		}
		return ply%2 == 1
	}

	type plyWork struct {
		ply           int
		san           string
		before, after *chess.Position
	}
	var work []plyWork
	for i, mv := range moves {
		if !isPlayerPly(i) {
			continue
		}
		work = append(work, plyWork{ply: i, san: encoder.Encode(positions[i], mv), before: positions[i], after: positions[i+1]})
	}

	concurrency := opts.MaxConcurrentPositions
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*models.MoveAnalysis, len(work))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex
	for idx, w := range work {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, w plyWork) {
			defer wg.Done()
			defer func() { <-sem }()
			ma, err := analyzeOnePly(ctx, eval, w.ply, w.san, w.before, w.after, color, analysisType, opts)
			if err != nil {
				logrus.WithError(err).WithField("ply", w.ply).Warn("analysis: ply evaluation aborted")
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			results[idx] = ma
		}(idx, w)
	}
	wg.Wait()

	// A ply evaluation only errors on a cancelled or timed-out context;
	// engine crashes are already absorbed into a heuristic fallback by
	// internal/engine.Pool and never reach here as an error. Abort the
	// whole game rather than persist an aggregate built from an
	// incomplete ply set (spec §4.3: on timeout the per-game aggregate
	// must not be written).
	if firstErr != nil {
		return nil, models.GameAnalysis{}, firstErr
	}

	analyses := make([]models.MoveAnalysis, 0, len(work))
	for _, r := range results {
		analyses = append(analyses, *r)
	}

	aggregate := aggregateGame(analyses)
	return analyses, aggregate, nil
}

// analyzeOnePly evaluates a single ply's before/after positions and
// classifies the resulting centipawn loss. Each ply's before position is
// evaluated fresh rather than carried over from a prior player ply: an
// opponent's intervening move changes the position even though it is never
// itself a row in the result.
func analyzeOnePly(ctx context.Context, eval Evaluator, ply int, san string, before, after *chess.Position, color models.Color, analysisType models.AnalysisType, opts Options) (*models.MoveAnalysis, error) {
	beforeEval, err := eval.Evaluate(ctx, before.String(), opts.Depth, opts.SkillLevel, opts.TimePerMove, 1)
	if err != nil {
		return nil, err
	}
	afterEval, err := eval.Evaluate(ctx, after.String(), opts.Depth, opts.SkillLevel, opts.TimePerMove, 1)
	if err != nil {
		return nil, err
	}

	cpl := centipawnLoss(beforeEval.Score, afterEval.Score, color)
	phase := detectPhase(ply, after)
	classification := models.ClassifyByCentipawnLoss(cpl)
	if ply < bookPlyLimit && classification == models.ClassBest {
		classification = models.ClassBook
	}

	return &models.MoveAnalysis{
		AnalysisType:     analysisType,
		PlyIndex:         ply,
		MoveSAN:          san,
		Phase:            phase,
		Classification:   classification,
		CentipawnLoss:    cpl,
		IsBest:           classification == models.ClassBest || classification == models.ClassBook,
		IsBlunder:        classification == models.ClassBlunder,
		IsMistake:        classification == models.ClassMistake,
		IsInaccuracy:     classification == models.ClassInaccuracy,
		EvaluationBefore: beforeEval.Score,
		EvaluationAfter:  afterEval.Score,
		IsFallback:       beforeEval.IsFallback || afterEval.IsFallback,
	}, nil
}

// centipawnLoss is always non-negative (spec §3): the drop in the mover's
// own evaluation, from that color's point of view.
func centipawnLoss(before, after int, color models.Color) float64 {
	var loss int
	if color == models.ColorWhite {
		loss = before - after
	} else {
		loss = after - before
	}
	if loss < 0 {
		return 0
	}
	return float64(loss)
}

func aggregateGame(moves []models.MoveAnalysis) models.GameAnalysis {
	traits := personality.PerGame(moves)

	var counts models.MoveCounts
	var openingTotal, middlegameTotal, endgameTotal float64
	var openingN, middlegameN, endgameN int
	var accuracyTotal float64

	for _, m := range moves {
		switch m.Classification {
		case models.ClassBest, models.ClassBook:
			counts.Best++
		case models.ClassGreat:
			counts.Great++
		case models.ClassExcellent:
			counts.Excellent++
		case models.ClassGood:
			counts.Good++
		case models.ClassInaccuracy:
			counts.Inaccuracy++
		case models.ClassMistake:
			counts.Mistake++
		case models.ClassBlunder:
			counts.Blunder++
		}

		points := personality.AccuracyPoints(m.Classification)
		accuracyTotal += points

		switch m.Phase {
		case models.PhaseOpening:
			openingTotal += points
			openingN++
		case models.PhaseMiddlegame:
			middlegameTotal += points
			middlegameN++
		case models.PhaseEndgame:
			endgameTotal += points
			endgameN++
		}
	}

	n := len(moves)
	accuracy := 0.0
	if n > 0 {
		accuracy = accuracyTotal / float64(n)
	}

	return models.GameAnalysis{
		Subscores: traits.Subscores,
		Accuracy:  accuracy,
		PhaseAccuracies: models.PhaseAccuracies{
			Opening:    safeAvg(openingTotal, openingN),
			Middlegame: safeAvg(middlegameTotal, middlegameN),
			Endgame:    safeAvg(endgameTotal, endgameN),
		},
		Counts:    counts,
		MoveCount: n,
	}
}

func safeAvg(total float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
