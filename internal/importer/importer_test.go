package importer

import (
	"testing"
	"time"

	"github.com/chessanalytics/core/internal/models"
)

func TestBatchSizeShrinksAsImportProgresses(t *testing.T) {
	cases := []struct {
		importedSoFar int
		want          int
	}{
		{0, 50},
		{499, 50},
		{500, 35},
		{799, 35},
		{800, 25},
		{5000, 25},
	}
	for _, c := range cases {
		if got := batchSize(c.importedSoFar); got != c.want {
			t.Errorf("batchSize(%d) = %d, want %d", c.importedSoFar, got, c.want)
		}
	}
}

func TestBatchDelayWidensPastFiveHundred(t *testing.T) {
	if got := batchDelay(499); got != 100*time.Millisecond {
		t.Errorf("batchDelay(499) = %v, want 100ms", got)
	}
	if got := batchDelay(500); got != 200*time.Millisecond {
		t.Errorf("batchDelay(500) = %v, want 200ms", got)
	}
}

func TestResultForMapsScoreAndColorToOutcome(t *testing.T) {
	whiteWin := map[string]string{"Result": "1-0"}
	if resultFor(whiteWin, models.ColorWhite) != models.ResultWin {
		t.Error("expected white win for 1-0 as white")
	}
	if resultFor(whiteWin, models.ColorBlack) != models.ResultLoss {
		t.Error("expected black loss for 1-0 as black")
	}

	blackWin := map[string]string{"Result": "0-1"}
	if resultFor(blackWin, models.ColorBlack) != models.ResultWin {
		t.Error("expected black win for 0-1 as black")
	}
	if resultFor(blackWin, models.ColorWhite) != models.ResultLoss {
		t.Error("expected white loss for 0-1 as white")
	}

	draw := map[string]string{"Result": "1/2-1/2"}
	if resultFor(draw, models.ColorWhite) != models.ResultDraw {
		t.Error("expected draw for 1/2-1/2")
	}
}

func TestArchiveYearMonthParsesTrailingPathSegments(t *testing.T) {
	year, month, ok := ArchiveYearMonth("https://api.chess.com/pub/player/bob/games/2026/03")
	if !ok || year != 2026 || month != 3 {
		t.Fatalf("got year=%d month=%d ok=%v, want 2026/3/true", year, month, ok)
	}

	_, _, ok = ArchiveYearMonth("not-a-url")
	if ok {
		t.Fatal("expected ok=false for a malformed archive URL")
	}
}

func TestReverseMonthsReversesInPlace(t *testing.T) {
	archives := []string{"a/2026/01", "a/2026/02", "a/2026/03"}
	reversed := ReverseMonths(archives)
	want := []string{"a/2026/03", "a/2026/02", "a/2026/01"}
	for i := range want {
		if reversed[i] != want[i] {
			t.Fatalf("ReverseMonths(%v) = %v, want %v", archives, reversed, want)
		}
	}
}

func TestFilterNewerAndOlderThanBoundCursor(t *testing.T) {
	games := []ParsedPGN{
		{Headers: map[string]string{"UTCDate": "2026.01.01", "UTCTime": "00:00:00"}},
		{Headers: map[string]string{"UTCDate": "2026.01.10", "UTCTime": "00:00:00"}},
		{Headers: map[string]string{"UTCDate": "2026.01.20", "UTCTime": "00:00:00"}},
	}
	midMs := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC).UnixMilli()

	newer := filterNewerThan(games, midMs)
	if len(newer) != 2 {
		t.Fatalf("expected 2 games newer-or-equal to cursor, got %d", len(newer))
	}

	older := filterOlderThan(games, midMs)
	if len(older) != 2 {
		t.Fatalf("expected 2 games older-or-equal to cursor, got %d", len(older))
	}

	if len(filterNewerThan(games, 0)) != 3 {
		t.Fatal("expected zero sinceMs to pass through all games unfiltered")
	}
	if len(filterOlderThan(games, 0)) != 3 {
		t.Fatal("expected zero untilMs to pass through all games unfiltered")
	}
}
