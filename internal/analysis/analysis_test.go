package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/notnil/chess"

	"github.com/chessanalytics/core/internal/models"
)

const samplePGN = `[Event "Test"]
[White "hero"]
[Black "villain"]
[Result "1-0"]

1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 Nf6 5. O-O Be7 1-0
`

func parseSampleGame(t *testing.T) *chess.Game {
	t.Helper()
	pgnFn, err := chess.PGN(strings.NewReader(samplePGN))
	if err != nil {
		t.Fatalf("parse sample pgn: %v", err)
	}
	return chess.NewGame(pgnFn)
}

// stubEvaluator returns a fixed score regardless of position, optionally
// stepping through a canned sequence to simulate a losing streak.
type stubEvaluator struct {
	scores []int
	call   int
}

func (s *stubEvaluator) Evaluate(ctx context.Context, fen string, depth, skill int, timeLimit time.Duration, multiPV int) (*models.EngineEvaluation, error) {
	score := 0
	if s.call < len(s.scores) {
		score = s.scores[s.call]
	}
	s.call++
	return &models.EngineEvaluation{Score: score, Depth: depth}, nil
}

func TestAnalyzeGameProducesOneRowPerPlayerPly(t *testing.T) {
	game := parseSampleGame(t)
	eval := &stubEvaluator{scores: []int{20, 25, 30, 28, 35, 40, 38, 45, 50, 48}}

	moves, agg, err := AnalyzeGame(context.Background(), eval, game, models.ColorWhite, models.AnalysisStockfish, Options{Depth: 10, TimePerMove: 10 * time.Millisecond, SkillLevel: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// White plies are 0, 2, 4, 6, 8 (5 of white's 5 moves in the sample game).
	if len(moves) != 5 {
		t.Fatalf("expected 5 white move analyses, got %d", len(moves))
	}
	if agg.MoveCount != len(moves) {
		t.Fatalf("aggregate MoveCount %d != len(moves) %d", agg.MoveCount, len(moves))
	}
}

func TestAnalyzeGameMarksEarlyBestMovesAsBook(t *testing.T) {
	game := parseSampleGame(t)
	eval := &stubEvaluator{scores: []int{20, 22, 24, 26, 28, 30, 32, 34, 36, 38}}

	moves, _, err := AnalyzeGame(context.Background(), eval, game, models.ColorWhite, models.AnalysisStockfish, Options{Depth: 10, TimePerMove: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, m := range moves {
		if m.PlyIndex < bookPlyLimit && m.CentipawnLoss <= 5 && m.Classification != models.ClassBook {
			t.Fatalf("expected ply %d (cpl=%.0f) to be classified as book, got %s", m.PlyIndex, m.CentipawnLoss, m.Classification)
		}
	}
}

// cancellingEvaluator simulates a context timeout partway through a game:
// it fails every call from failAfter onward with the same error shape
// engine.Pool.Evaluate now propagates for a cancelled or timed-out ctx.
type cancellingEvaluator struct {
	failAfter int
	call      int
}

var errEvaluateCancelled = errors.New("search cancelled: context deadline exceeded")

func (c *cancellingEvaluator) Evaluate(ctx context.Context, fen string, depth, skill int, timeLimit time.Duration, multiPV int) (*models.EngineEvaluation, error) {
	c.call++
	if c.call > c.failAfter {
		return nil, errEvaluateCancelled
	}
	return &models.EngineEvaluation{Score: 20, Depth: depth}, nil
}

func TestAnalyzeGameAbortsWholeGameOnEvaluationError(t *testing.T) {
	game := parseSampleGame(t)
	eval := &cancellingEvaluator{failAfter: 3}

	moves, agg, err := AnalyzeGame(context.Background(), eval, game, models.ColorWhite, models.AnalysisStockfish, Options{Depth: 10, TimePerMove: 10 * time.Millisecond, MaxConcurrentPositions: 1})
	if err == nil {
		t.Fatal("expected an error once a ply evaluation fails, got nil")
	}
	if moves != nil {
		t.Fatalf("expected no move rows on an aborted game, got %d", len(moves))
	}
	if agg.MoveCount != 0 {
		t.Fatalf("expected a zero-value aggregate on an aborted game, got MoveCount=%d", agg.MoveCount)
	}
}

func TestCentipawnLossIsNeverNegative(t *testing.T) {
	if got := centipawnLoss(100, 150, models.ColorWhite); got != 0 {
		t.Fatalf("expected 0 for an improving white position, got %f", got)
	}
	if got := centipawnLoss(100, 50, models.ColorWhite); got != 50 {
		t.Fatalf("expected 50 loss for white, got %f", got)
	}
	if got := centipawnLoss(-100, -50, models.ColorBlack); got != 50 {
		t.Fatalf("expected 50 loss for black, got %f", got)
	}
}

func TestDetectPhaseTransitionsByPlyAndMaterial(t *testing.T) {
	game := parseSampleGame(t)
	positions := game.Positions()

	if phase := detectPhase(0, positions[0]); phase != models.PhaseOpening {
		t.Fatalf("expected opening at ply 0, got %s", phase)
	}
	if phase := detectPhase(25, positions[len(positions)-1]); phase == models.PhaseOpening {
		t.Fatalf("expected non-opening phase well past ply 20, got %s", phase)
	}
}
