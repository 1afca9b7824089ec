package scheduler

import (
	"strings"
	"testing"

	"github.com/chessanalytics/core/internal/models"
)

func TestAdhocGameIDPrefersSiteHeader(t *testing.T) {
	headers := map[string]string{"Site": "https://lichess.org/abcdEFGH"}
	id := adhocGameID(headers, "1. e4 e5")
	if id != "abcdEFGH" {
		t.Fatalf("expected site-derived id, got %q", id)
	}
}

func TestAdhocGameIDPrefersLinkHeaderWhenNoSite(t *testing.T) {
	headers := map[string]string{"Link": "https://www.chess.com/game/live/123456"}
	id := adhocGameID(headers, "1. e4 e5")
	if id != "123456" {
		t.Fatalf("expected link-derived id, got %q", id)
	}
}

func TestAdhocGameIDFallsBackToMovetextHash(t *testing.T) {
	id := adhocGameID(map[string]string{}, "1. e4 e5 2. Nf3 Nc6")
	if !strings.HasPrefix(id, "adhoc:") {
		t.Fatalf("expected adhoc: prefix, got %q", id)
	}
	if len(id) != len("adhoc:")+40 {
		t.Fatalf("expected a sha1 hex digest, got %q", id)
	}
}

func TestAdhocGameIDIsDeterministic(t *testing.T) {
	movetext := "1. e4 e5 2. Nf3 Nc6"
	first := adhocGameID(map[string]string{}, movetext)
	second := adhocGameID(map[string]string{}, movetext)
	if first != second {
		t.Fatalf("expected identical movetext to hash to the same id: %q != %q", first, second)
	}
}

func TestResultFromHeadersWinLossDraw(t *testing.T) {
	cases := []struct {
		result string
		color  models.Color
		want   models.Result
	}{
		{"1-0", models.ColorWhite, models.ResultWin},
		{"1-0", models.ColorBlack, models.ResultLoss},
		{"0-1", models.ColorBlack, models.ResultWin},
		{"0-1", models.ColorWhite, models.ResultLoss},
		{"1/2-1/2", models.ColorWhite, models.ResultDraw},
		{"*", models.ColorBlack, models.ResultDraw},
	}
	for _, c := range cases {
		got := resultFromHeaders(map[string]string{"Result": c.result}, c.color)
		if got != c.want {
			t.Errorf("resultFromHeaders(%q, %q) = %q, want %q", c.result, c.color, got, c.want)
		}
	}
}
