package importer

import (
	"strings"

	"github.com/notnil/chess"

	"github.com/chessanalytics/core/internal/models"
)

// splitRawPGNGames splits a multi-game PGN blob into individual game
// strings before handing each to notnil/chess, working around the
// both-headers-on-separate-lines ambiguity that trips up whole-blob
// parsing (grounded on Piemme99-TreeChess's import_service.go
// splitRawPGNGames/splitPGNGames, the same fix spec §4.2 requires for the
// UTCDate/UTCTime legacy bug).
func splitRawPGNGames(pgn string) []string {
	var games []string
	var current strings.Builder
	seenMoves := false

	for _, line := range strings.Split(pgn, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && seenMoves {
			if game := strings.TrimSpace(current.String()); game != "" {
				games = append(games, game)
			}
			current.Reset()
			seenMoves = false
		}

		if trimmed != "" && !strings.HasPrefix(trimmed, "[") {
			seenMoves = true
		}

		current.WriteString(line)
		current.WriteString("\n")
	}

	if game := strings.TrimSpace(current.String()); game != "" {
		games = append(games, game)
	}
	return games
}

// ParsedPGN is one game parsed out of a (possibly multi-game) PGN blob,
// with its headers kept as a plain map for played_at extraction and its
// original movetext preserved verbatim for storage (re-serializing via
// the parsed chess.Game is unnecessary and risks reformatting the source).
type ParsedPGN struct {
	Game     *chess.Game
	Headers  map[string]string
	Movetext string
}

// ParseGames splits and parses every game in a PGN blob, skipping any
// individual game that fails to parse rather than failing the whole batch.
func ParseGames(pgn string) []ParsedPGN {
	var parsed []ParsedPGN
	for _, raw := range splitRawPGNGames(pgn) {
		reader := strings.NewReader(raw)
		games, err := chess.GamesFromPGN(reader)
		if err != nil {
			continue
		}
		for _, g := range games {
			if len(g.Moves()) == 0 {
				continue
			}
			headers := make(map[string]string)
			for _, tp := range g.TagPairs() {
				headers[tp.Key] = tp.Value
			}
			parsed = append(parsed, ParsedPGN{Game: g, Headers: headers, Movetext: raw})
		}
	}
	return parsed
}

// PlayedAtFromHeaders returns the raw UTCDate and UTCTime header values, in
// that order, as two separate strings (empty where a header is absent). It
// does not parse them and does not consult any platform-supplied timestamp.
func PlayedAtFromHeaders(headers map[string]string) (string, string) {
	return headers["UTCDate"], headers["UTCTime"]
}

// ExtractHeaders reads the core identity/display fields off a parsed game,
// defaulting anything the source PGN omitted.
func ExtractHeaders(g *chess.Game) map[string]string {
	headers := make(map[string]string)
	for _, tp := range g.TagPairs() {
		headers[tp.Key] = tp.Value
	}
	if _, ok := headers["White"]; !ok {
		headers["White"] = "Unknown"
	}
	if _, ok := headers["Black"]; !ok {
		headers["Black"] = "Unknown"
	}
	if _, ok := headers["Result"]; !ok {
		headers["Result"] = "*"
	}
	return headers
}

// DetermineColor reports which color the named player held, matching
// case-insensitively against the White/Black headers. Empty if neither.
func DetermineColor(headers map[string]string, username string) models.Color {
	lower := strings.ToLower(username)
	if strings.ToLower(headers["White"]) == lower {
		return models.ColorWhite
	}
	if strings.ToLower(headers["Black"]) == lower {
		return models.ColorBlack
	}
	return ""
}
