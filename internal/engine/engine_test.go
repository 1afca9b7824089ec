package engine

import "testing"

func TestFingerprintStableAndDiscriminating(t *testing.T) {
	fen := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

	a := Fingerprint(fen, 15, 20)
	b := Fingerprint(fen, 15, 20)
	if a != b {
		t.Fatalf("fingerprint not stable: %q != %q", a, b)
	}

	c := Fingerprint(fen, 16, 20)
	if a == c {
		t.Fatalf("fingerprint did not change with depth")
	}
}

func TestFallbackEvaluateStartingPositionIsRoughlyEqual(t *testing.T) {
	fen := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	eval := FallbackEvaluate(fen)

	if !eval.IsFallback {
		t.Fatalf("expected IsFallback=true")
	}
	if eval.Score < -100 || eval.Score > 100 {
		t.Fatalf("expected roughly balanced material in starting position, got %d", eval.Score)
	}
}

func TestDisplayNormalizeClampsExtremeEvaluations(t *testing.T) {
	d := NewDisplay()
	eval := d.Normalize(100000, true, nil)

	if eval.DisplayScore != d.maxDisplayEval {
		t.Fatalf("expected display score capped at %d, got %d", d.maxDisplayEval, eval.DisplayScore)
	}
	if eval.PositionAssessment != "winning" {
		t.Fatalf("expected winning assessment for a maximal score, got %q", eval.PositionAssessment)
	}
}

func TestDisplayNormalizeSmoothsSmallSwings(t *testing.T) {
	d := NewDisplay()
	first := d.Normalize(50, true, nil)
	second := d.Normalize(55, true, first)

	if second.WinProbability == first.WinProbability {
		t.Fatalf("expected some movement in win probability")
	}
}
