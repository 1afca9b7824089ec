package orchestrator

import (
	"testing"

	"github.com/notnil/chess"

	"github.com/chessanalytics/core/internal/models"
)

func limitsFor(maxDepth int) models.EngineLimits {
	return models.EngineLimits{MaxDepth: maxDepth, MaxTimeMs: 30000, MaxMultiPV: 5}
}

func startingPosition(t *testing.T) *chess.Position {
	t.Helper()
	return chess.NewGame().Position()
}

func TestDecodeMoveAcceptsUCI(t *testing.T) {
	mv, err := decodeMove(startingPosition(t), "e2e4")
	if err != nil {
		t.Fatalf("decodeMove(e2e4) failed: %v", err)
	}
	if mv == nil {
		t.Fatal("expected a non-nil move")
	}
}

func TestDecodeMoveAcceptsSAN(t *testing.T) {
	mv, err := decodeMove(startingPosition(t), "Nf3")
	if err != nil {
		t.Fatalf("decodeMove(Nf3) failed: %v", err)
	}
	if mv == nil {
		t.Fatal("expected a non-nil move")
	}
}

func TestDecodeMoveRejectsIllegalMove(t *testing.T) {
	if _, err := decodeMove(startingPosition(t), "e2e5"); err == nil {
		t.Fatal("expected an error for an illegal pawn push")
	}
}

func TestDecodeMoveRejectsGarbage(t *testing.T) {
	if _, err := decodeMove(startingPosition(t), "not-a-move"); err == nil {
		t.Fatal("expected an error for unparseable move text")
	}
}

func TestOrchestratorClampDepth(t *testing.T) {
	o := &Orchestrator{
		defaultDepth: 15,
		limits:       limitsFor(24),
	}
	if got := o.clampDepth(0); got != 15 {
		t.Errorf("clampDepth(0) = %d, want default 15", got)
	}
	if got := o.clampDepth(30); got != 24 {
		t.Errorf("clampDepth(30) = %d, want capped 24", got)
	}
	if got := o.clampDepth(10); got != 10 {
		t.Errorf("clampDepth(10) = %d, want 10", got)
	}
}
