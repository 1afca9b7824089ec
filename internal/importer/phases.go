package importer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/chessanalytics/core/internal/models"
)

// fetchProbeNewBatch implements spec §4.2 phase 1: fetch games strictly
// after the tenant's newest known played_at. The cursor advances
// implicitly across calls because NewestPlayedAt is re-queried from the
// store after every persisted batch.
func (im *Importer) fetchProbeNewBatch(ctx context.Context, userID string, platform models.Platform) ([]ParsedPGN, error) {
	newest, ok, err := im.store.Games.NewestPlayedAt(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	var sinceMs int64
	if ok {
		sinceMs = newest.PlayedAt.UnixMilli() + 1
	}

	switch platform {
	case models.PlatformLichess:
		pgn, err := im.lichess.FetchWindow(ctx, userID, sinceMs, 0, batchSize(0))
		if err != nil {
			return nil, err
		}
		return filterNewerThan(ParseGames(pgn), sinceMs), nil
	case models.PlatformChessCom:
		return im.fetchChessComMostRecentMonth(ctx, userID, sinceMs)
	default:
		return nil, nil
	}
}

// fetchBackfillBatch implements spec §4.2 phase 2: fetch games strictly
// before the tenant's oldest known played_at, moving the cursor backward.
func (im *Importer) fetchBackfillBatch(ctx context.Context, userID string, platform models.Platform) ([]ParsedPGN, error) {
	oldest, ok, err := im.store.Games.OldestPlayedAt(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	var untilMs int64
	if ok {
		untilMs = oldest.PlayedAt.UnixMilli() - 1 // avoid overlap with the already-seen oldest game
	}

	switch platform {
	case models.PlatformLichess:
		pgn, err := im.lichess.FetchWindow(ctx, userID, 0, untilMs, batchSize(0))
		if err != nil {
			return nil, err
		}
		return filterOlderThan(ParseGames(pgn), untilMs), nil
	case models.PlatformChessCom:
		return im.fetchChessComOlderMonth(ctx, userID, untilMs)
	default:
		return nil, nil
	}
}

func filterNewerThan(games []ParsedPGN, sinceMs int64) []ParsedPGN {
	if sinceMs == 0 {
		return games
	}
	var out []ParsedPGN
	for _, g := range games {
		if parsePlayedAt(g.Headers).UnixMilli() >= sinceMs {
			out = append(out, g)
		}
	}
	return out
}

func filterOlderThan(games []ParsedPGN, untilMs int64) []ParsedPGN {
	if untilMs == 0 {
		return games
	}
	var out []ParsedPGN
	for _, g := range games {
		if parsePlayedAt(g.Headers).UnixMilli() <= untilMs {
			out = append(out, g)
		}
	}
	return out
}

// fetchChessComMostRecentMonth covers the probe-new phase for Chess.com:
// the current month's archive, filtered to games newer than sinceMs.
func (im *Importer) fetchChessComMostRecentMonth(ctx context.Context, username string, sinceMs int64) ([]ParsedPGN, error) {
	archives, err := im.chesscom.Archives(ctx, username)
	if err != nil || len(archives) == 0 {
		return nil, err
	}
	latest := archives[len(archives)-1]
	monthPGN, err := im.chesscom.FetchMonthPGN(ctx, latest)
	if err != nil {
		return nil, err
	}
	return filterNewerThan(ParseGames(monthPGN), sinceMs), nil
}

// fetchChessComOlderMonth covers the backfill phase for Chess.com: walks
// the archive list backward from the month preceding untilMs, newest
// eligible month first (spec §4.2: "traverse newest month first").
func (im *Importer) fetchChessComOlderMonth(ctx context.Context, username string, untilMs int64) ([]ParsedPGN, error) {
	archives, err := im.chesscom.Archives(ctx, username)
	if err != nil || len(archives) == 0 {
		return nil, err
	}

	cutoff := time.UnixMilli(untilMs)
	for i := len(archives) - 1; i >= 0; i-- {
		year, month, ok := ArchiveYearMonth(archives[i])
		if !ok {
			continue
		}
		archiveStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		if untilMs > 0 && !archiveStart.Before(cutoff) {
			continue // this month is not strictly before the cursor yet
		}
		monthPGN, err := im.chesscom.FetchMonthPGN(ctx, archives[i])
		if err != nil {
			continue
		}
		games := filterOlderThan(ParseGames(monthPGN), untilMs)
		if len(games) > 0 {
			// Within a month, reverse so the newest month-internal game is
			// considered first (spec §4.2).
			reverseParsed(games)
			return games, nil
		}
	}
	return nil, nil
}

func reverseParsed(games []ParsedPGN) {
	for i, j := 0, len(games)-1; i < j; i, j = i+1, j-1 {
		games[i], games[j] = games[j], games[i]
	}
}

// parsePlayedAt resolves played_at from PGN UTCDate+UTCTime headers, both
// of which must be present on separate lines (spec §4.2's fix for the
// legacy single-line-two-prefixes bug — ExtractHeaders/TagPairs already
// parse each header independently, so this never conflates them).
func parsePlayedAt(headers map[string]string) time.Time {
	date, hasDate := headers["UTCDate"]
	clock, hasTime := headers["UTCTime"]
	if hasDate && hasTime {
		t, err := time.Parse("2006.01.02 15:04:05", date+" "+clock)
		if err == nil {
			return t
		}
	}
	if end, ok := headers["EndTime"]; ok {
		if sec, err := strconv.ParseInt(end, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC()
		}
	}
	return time.Time{}
}

// ProviderGameIDFromHeaders extracts a platform-native game id from PGN
// headers when the platform is known (Site for Lichess, Link for
// Chess.com). ProviderGameIDFromAnyHeader is the platform-agnostic variant
// used when the caller (an ad hoc PGN submission) has no platform to
// disambiguate against.
func ProviderGameIDFromHeaders(headers map[string]string, platform models.Platform) string {
	return providerGameIDFromHeaders(headers, platform)
}

// ProviderGameIDFromAnyHeader tries both the Lichess Site and Chess.com Link
// header shapes, for callers with no platform context of their own.
func ProviderGameIDFromAnyHeader(headers map[string]string) string {
	if id := providerGameIDFromHeaders(headers, models.PlatformLichess); id != "" {
		return id
	}
	return providerGameIDFromHeaders(headers, models.PlatformChessCom)
}

func providerGameIDFromHeaders(headers map[string]string, platform models.Platform) string {
	switch platform {
	case models.PlatformLichess:
		if site, ok := headers["Site"]; ok {
			parts := strings.Split(strings.TrimRight(site, "/"), "/")
			return parts[len(parts)-1]
		}
	case models.PlatformChessCom:
		if link, ok := headers["Link"]; ok {
			parts := strings.Split(strings.TrimRight(link, "/"), "/")
			return parts[len(parts)-1]
		}
	}
	return ""
}

func resultFor(headers map[string]string, color models.Color) models.Result {
	result := headers["Result"]
	switch {
	case result == "1-0":
		if color == models.ColorWhite {
			return models.ResultWin
		}
		return models.ResultLoss
	case result == "0-1":
		if color == models.ColorBlack {
			return models.ResultWin
		}
		return models.ResultLoss
	default:
		return models.ResultDraw
	}
}
