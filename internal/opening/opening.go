// Package opening classifies a game's opening and which side "owns" it,
// generalized from the teacher's OpeningService (internal/services/opening.go)
// with the color-ownership and priority-resolution rules spec §4.6 adds —
// the teacher's table had no ownership concept at all.
package opening

import (
	"regexp"
	"strings"

	"github.com/notnil/chess"

	"github.com/chessanalytics/core/internal/models"
)

// Ownership is which side a canonical opening is considered to "belong" to
// for repertoire statistics.
type Ownership string

const (
	OwnerWhite   Ownership = "white"
	OwnerBlack   Ownership = "black"
	OwnerNeutral Ownership = "neutral"
)

// Entry is one curated opening-table row.
type Entry struct {
	ECO   string
	Name  string
	Moves []string // half-moves in algebraic form, e.g. ["e4", "c6"]
	Owner Ownership
}

var ecoPattern = regexp.MustCompile(`^[A-E]\d\d$`)

// Table is the curated opening database, keyed by ECO code, plus a
// move-sequence index for fallback resolution.
type Table struct {
	byECO       map[string]Entry
	byName      map[string]Entry
	byMoveSeq   []Entry // longest move sequences first, for prefix matching
}

// NewTable builds the curated opening table (spec §4.6). A production
// deployment would load a larger table from data; the in-code set here
// mirrors the scope of the teacher's loadOpeningDatabase, with ownership
// added.
func NewTable() *Table {
	entries := []Entry{
		{ECO: "B00", Name: "King's Pawn Game", Moves: []string{"e4"}, Owner: OwnerNeutral},
		{ECO: "B01", Name: "Scandinavian Defense", Moves: []string{"e4", "d5"}, Owner: OwnerBlack},
		{ECO: "B02", Name: "Alekhine's Defense", Moves: []string{"e4", "Nf6"}, Owner: OwnerBlack},
		{ECO: "B10", Name: "Caro-Kann Defense", Moves: []string{"e4", "c6"}, Owner: OwnerBlack},
		{ECO: "B20", Name: "Sicilian Defense", Moves: []string{"e4", "c5"}, Owner: OwnerBlack},
		{ECO: "C00", Name: "French Defense", Moves: []string{"e4", "e6"}, Owner: OwnerBlack},
		{ECO: "C20", Name: "King's Pawn Opening", Moves: []string{"e4", "e5"}, Owner: OwnerNeutral},
		{ECO: "C23", Name: "Bishop's Opening", Moves: []string{"e4", "e5", "Bc4"}, Owner: OwnerWhite},
		{ECO: "C25", Name: "Vienna Game", Moves: []string{"e4", "e5", "Nc3"}, Owner: OwnerWhite},
		{ECO: "C40", Name: "King's Knight Opening", Moves: []string{"e4", "e5", "Nf3"}, Owner: OwnerNeutral},
		{ECO: "C50", Name: "Italian Game", Moves: []string{"e4", "e5", "Nf3", "Nc6", "Bc4"}, Owner: OwnerWhite},
		{ECO: "C60", Name: "Ruy Lopez", Moves: []string{"e4", "e5", "Nf3", "Nc6", "Bb5"}, Owner: OwnerWhite},
		{ECO: "D00", Name: "Queen's Pawn Game", Moves: []string{"d4"}, Owner: OwnerNeutral},
		{ECO: "D06", Name: "Queen's Gambit", Moves: []string{"d4", "d5", "c4"}, Owner: OwnerWhite},
		{ECO: "D30", Name: "Queen's Gambit Declined", Moves: []string{"d4", "d5", "c4", "e6"}, Owner: OwnerBlack},
		{ECO: "D70", Name: "Gruenfeld Defense", Moves: []string{"d4", "Nf6", "c4", "g6", "Nc3", "d5"}, Owner: OwnerBlack},
		{ECO: "E00", Name: "Catalan Opening", Moves: []string{"d4", "Nf6", "c4", "e6", "g3"}, Owner: OwnerWhite},
		{ECO: "E60", Name: "King's Indian Defense", Moves: []string{"d4", "Nf6", "c4", "g6"}, Owner: OwnerBlack},
		{ECO: "A00", Name: "Irregular Opening", Moves: []string{}, Owner: OwnerNeutral},
		{ECO: "A10", Name: "English Opening", Moves: []string{"c4"}, Owner: OwnerWhite},
	}

	t := &Table{
		byECO:  make(map[string]Entry, len(entries)),
		byName: make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		t.byECO[e.ECO] = e
		t.byName[normalizeName(e.Name)] = e
		t.byMoveSeq = append(t.byMoveSeq, e)
	}
	// Longest move sequences matched first so specific lines (e.g. Italian
	// Game's 5-ply sequence) win over their shorter ECO-family parent.
	for i := 0; i < len(t.byMoveSeq); i++ {
		for j := i + 1; j < len(t.byMoveSeq); j++ {
			if len(t.byMoveSeq[j].Moves) > len(t.byMoveSeq[i].Moves) {
				t.byMoveSeq[i], t.byMoveSeq[j] = t.byMoveSeq[j], t.byMoveSeq[i]
			}
		}
	}
	return t
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Classification is the resolved opening for one game.
type Classification struct {
	Name   string
	ECO    string
	Family string
	Owner  Ownership
}

// Classify resolves a canonical opening per the priority order of spec
// §4.6: ECO code, then opening-name field, then move-sequence match, then
// a first-half-move fallback.
func (t *Table) Classify(openingField, openingFamilyField string, sanMoves []string) Classification {
	if ecoPattern.MatchString(strings.ToUpper(openingFamilyField)) {
		if e, ok := t.byECO[strings.ToUpper(openingFamilyField)]; ok {
			return classificationOf(e)
		}
	}

	if e, ok := t.byName[normalizeName(openingField)]; ok {
		return classificationOf(e)
	}

	if e, ok := t.matchMoveSequence(sanMoves); ok {
		return classificationOf(e)
	}

	return t.firstMoveFallback(sanMoves)
}

func classificationOf(e Entry) Classification {
	return Classification{Name: e.Name, ECO: e.ECO, Family: e.ECO, Owner: e.Owner}
}

func (t *Table) matchMoveSequence(sanMoves []string) (Entry, bool) {
	limit := 6
	if len(sanMoves) < limit {
		limit = len(sanMoves)
	}
	prefix := sanMoves[:limit]

	for _, e := range t.byMoveSeq {
		if len(e.Moves) == 0 || len(e.Moves) > len(prefix) {
			continue
		}
		if movesEqual(e.Moves, prefix[:len(e.Moves)]) {
			return e, true
		}
	}
	return Entry{}, false
}

func movesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *Table) firstMoveFallback(sanMoves []string) Classification {
	if len(sanMoves) == 0 {
		return Classification{Name: "Irregular Opening", ECO: "A00", Family: "A00", Owner: OwnerNeutral}
	}
	switch sanMoves[0] {
	case "e4":
		return Classification{Name: "King's Pawn Opening", ECO: "B00", Family: "B00", Owner: OwnerNeutral}
	case "d4":
		return Classification{Name: "Queen's Pawn Opening", ECO: "D00", Family: "D00", Owner: OwnerNeutral}
	case "c4":
		return Classification{Name: "English Opening", ECO: "A10", Family: "A10", Owner: OwnerWhite}
	default:
		return Classification{Name: "Irregular Opening", ECO: "A00", Family: "A00", Owner: OwnerNeutral}
	}
}

// Get looks up a curated entry by its ECO code, for the read-only opening
// browse endpoint.
func (t *Table) Get(eco string) (Entry, bool) {
	e, ok := t.byECO[strings.ToUpper(eco)]
	return e, ok
}

// All returns every curated entry, ECO-code order undefined.
func (t *Table) All() []Entry {
	entries := make([]Entry, 0, len(t.byECO))
	for _, e := range t.byECO {
		entries = append(entries, e)
	}
	return entries
}

// MatchesColor reports whether c's opening counts toward the given player
// color for repertoire statistics (spec §4.6 filter rule: neutral openings
// count for either color).
func (c Classification) MatchesColor(playerColor models.Color) bool {
	switch c.Owner {
	case OwnerNeutral:
		return true
	case OwnerWhite:
		return playerColor == models.ColorWhite
	case OwnerBlack:
		return playerColor == models.ColorBlack
	default:
		return false
	}
}

// MovesFromParsedGame extracts every move of a parsed game as SAN,
// used as Classify's move-sequence input (notnil/chess-backed replay).
func MovesFromParsedGame(g *chess.Game) []string {
	moves := g.Moves()
	san := make([]string, 0, len(moves))
	encoder := chess.AlgebraicNotation{}
	pos := g.Positions()[0]
	for i, m := range moves {
		san = append(san, encoder.Encode(pos, m))
		if i+1 < len(g.Positions()) {
			pos = g.Positions()[i+1]
		}
	}
	return san
}
