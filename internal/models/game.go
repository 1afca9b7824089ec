package models

import "time"

// Platform is an external chess server the importer knows how to speak to.
type Platform string

const (
	PlatformLichess  Platform = "lichess"
	PlatformChessCom Platform = "chess.com"
)

// Color is the side a player held in a given game.
type Color string

const (
	ColorWhite Color = "white"
	ColorBlack Color = "black"
)

// Result is the outcome of a game from the tracked player's perspective.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

// Game is the canonical per-player game record. Identity is
// (UserID, Platform, ProviderGameID); UserID is always the canonicalized
// form (see persistence.CanonicalUserID) — never the display-cased input.
type Game struct {
	UserID            string
	Platform          Platform
	ProviderGameID    string
	PlayedAt          time.Time
	Color             Color
	Result            Result
	MyRating          int
	OpponentRating    int
	TimeControl       string
	Opening           string
	OpeningNormalized string
	OpeningFamily     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PGNRecord holds the raw movetext for a Game, stored separately because it
// is large and independently cacheable.
type PGNRecord struct {
	UserID         string
	Platform       Platform
	ProviderGameID string
	Movetext       string
	FetchedAt      time.Time
}

// ParsedMove is a single ply extracted from a PGN, with the resulting FEN.
type ParsedMove struct {
	PlyIndex   int
	MoveNumber int
	SAN        string
	UCI        string
	FEN        string
	IsWhite    bool
}

// ParsedGame is the result of parsing a PGN movetext into plies plus headers.
type ParsedGame struct {
	StartingFEN string
	Moves       []ParsedMove
	Headers     map[string]string
}
