package opening

import (
	"testing"

	"github.com/chessanalytics/core/internal/models"
)

func TestClassifyByECOCode(t *testing.T) {
	tbl := NewTable()
	c := tbl.Classify("", "B10", nil)
	if c.Name != "Caro-Kann Defense" || c.Owner != OwnerBlack {
		t.Fatalf("expected Caro-Kann Defense (black), got %+v", c)
	}
}

func TestClassifyByNameFallsBackFromBadECO(t *testing.T) {
	tbl := NewTable()
	c := tbl.Classify("Italian Game", "", nil)
	if c.Owner != OwnerWhite {
		t.Fatalf("expected Italian Game to be white-owned, got %+v", c)
	}
}

func TestClassifyByMoveSequence(t *testing.T) {
	tbl := NewTable()
	c := tbl.Classify("", "", []string{"e4", "c6"})
	if c.Name != "Caro-Kann Defense" {
		t.Fatalf("expected move-sequence match to resolve Caro-Kann Defense, got %+v", c)
	}
}

func TestCaroKannNeverCountsAsWhiteOpening(t *testing.T) {
	tbl := NewTable()
	c := tbl.Classify("", "B10", nil)
	if c.MatchesColor(models.ColorWhite) {
		t.Fatalf("Caro-Kann Defense must not match white (regression for the color-filter defect)")
	}
	if !c.MatchesColor(models.ColorBlack) {
		t.Fatalf("Caro-Kann Defense must match black")
	}
}

func TestNeutralOpeningMatchesEitherColor(t *testing.T) {
	tbl := NewTable()
	c := tbl.Classify("", "C20", nil)
	if !c.MatchesColor(models.ColorWhite) || !c.MatchesColor(models.ColorBlack) {
		t.Fatalf("neutral opening should match both colors, got %+v", c)
	}
}
