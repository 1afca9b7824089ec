package models

// AccountTier names an authenticated caller's subscription level, used by
// admission control to pick which quota bucket applies (spec §4.3 step 1).
type AccountTier string

const (
	TierAnonymous AccountTier = "anonymous"
	TierFree      AccountTier = "free"
	TierPaid      AccountTier = "paid"
)

// AnalyzeRequestKind is the discriminator for the tagged-variant request
// the orchestrator accepts at the HTTP boundary. The source system accepted
// one duck-typed body whose meaning depended on which fields were
// populated; here the boundary layer classifies the body into exactly one
// of these kinds before any domain code sees it (see REDESIGN FLAGS).
type AnalyzeRequestKind string

const (
	RequestBatch           AnalyzeRequestKind = "batch"
	RequestSingleGameByID  AnalyzeRequestKind = "single_game_by_id"
	RequestSingleGameByPGN AnalyzeRequestKind = "single_game_by_pgn"
	RequestPosition        AnalyzeRequestKind = "position"
	RequestMove            AnalyzeRequestKind = "move"
)

// BatchRequest asks for the N most recent unanalyzed games to be analyzed.
type BatchRequest struct {
	Limit int
}

// SingleGameByIDRequest targets one already-imported game by its provider id.
type SingleGameByIDRequest struct {
	ProviderGameID string
}

// SingleGameByPGNRequest analyzes an ad hoc PGN not necessarily imported.
type SingleGameByPGNRequest struct {
	PGN string
}

// PositionRequest analyzes a single FEN position, no game identity involved.
type PositionRequest struct {
	FEN     string
	Depth   int
	MultiPV int
}

// MoveRequest analyzes a position reached by applying one move to a FEN.
type MoveRequest struct {
	FEN   string
	Move  string
	Depth int
}

// AnalyzeRequest is the tagged variant the orchestrator dispatches on.
// Exactly one of the pointer fields matching Kind is populated; the
// boundary layer (internal/handlers) is responsible for classifying the
// raw body into this shape and rejecting ambiguous or empty bodies with
// an apperr.TagValidation error before it ever reaches the orchestrator.
type AnalyzeRequest struct {
	Kind         AnalyzeRequestKind
	UserID       string
	Platform     Platform
	AnalysisType AnalysisType
	IsAnonymous  bool
	ClientIP     string
	AccountTier  AccountTier

	Batch           *BatchRequest
	SingleGameByID  *SingleGameByIDRequest
	SingleGameByPGN *SingleGameByPGNRequest
	Position        *PositionRequest
	Move            *MoveRequest
}
