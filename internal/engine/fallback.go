package engine

import (
	"strings"

	"github.com/notnil/chess"

	"github.com/chessanalytics/core/internal/models"
)

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 320,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
	chess.King:   0,
}

// FallbackEvaluate produces a coarse material+mobility evaluation when the
// engine has exhausted its crash-recovery retries (spec §4.1: "heuristic
// evaluator ... is_best=false, phase-appropriate defaults"). The result is
// always marked IsFallback so aggregates can weight it down.
func FallbackEvaluate(fen string) *models.EngineEvaluation {
	fenFn, err := chess.FEN(fen)
	if err != nil {
		return &models.EngineEvaluation{Score: 0, IsFallback: true}
	}
	game := chess.NewGame(fenFn)
	position := game.Position()
	board := position.Board()

	score := 0
	for sq := 0; sq < 64; sq++ {
		piece := board.Piece(chess.Square(sq))
		if piece == chess.NoPiece {
			continue
		}
		value := pieceValues[piece.Type()]
		if piece.Color() == chess.White {
			score += value
		} else {
			score -= value
		}
	}

	mobility := len(game.ValidMoves())
	mobilityBonus := mobility
	if position.Turn() == chess.Black {
		mobilityBonus = -mobilityBonus
	}
	score += mobilityBonus

	var bestMove string
	if moves := game.ValidMoves(); len(moves) > 0 {
		bestMove = strings.ToLower(moves[0].String())
	}

	return &models.EngineEvaluation{
		Score:      score,
		Depth:      0,
		BestMove:   bestMove,
		IsFallback: true,
	}
}
