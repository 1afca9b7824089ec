// Package personality maps per-move evaluations and opening-repertoire
// signals into the six player traits of spec §4.5: tactical, positional,
// aggressive, patient, novelty, staleness. Grounded on the teacher's
// calculatePlayerStats/calculateEnhancedPlayerStats and calculatePhaseAnalysis
// (internal/services/stockfish.go) — same accumulate-then-safeDiv shape,
// generalized from a fixed accuracy-points table to the trait formulas.
package personality

import (
	"math"

	"github.com/chessanalytics/core/internal/models"
)

// forcingThreshold is the swing-magnitude (centipawn) cutoff above which a
// move is treated as "forcing" rather than "quiet" (spec §4.5's forcing/
// quiet proxy). Set at the good/inaccuracy boundary of the 50 CP
// classification threshold, so a position-altering swing and a swing large
// enough to be classified as an error coincide.
const forcingThreshold = 50.0

// GameTraits are the move-level trait contributions for a single game,
// plus the total ply count used to weight cross-game aggregation.
type GameTraits struct {
	Subscores models.PersonalitySubscores
	MoveCount int
}

// safeDiv mirrors the teacher's stockfish.go helper: division that yields
// zero instead of NaN/Inf on an empty denominator.
func safeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// rates bundles the per-move frequency ratios every trait formula draws on.
type rates struct {
	total         int
	forcingRatio  float64
	quietRatio    float64
	blunderRate   float64
	mistakeRate   float64
	inaccuracyRate float64
	bestRate      float64
	overallError  float64
	bestInForcing float64 // is_best frequency among forcing-phase moves
	quietAccuracy float64 // mean accuracy-weight among quiet-phase moves
	quietDrift    float64 // cumulative centipawn loss among quiet-phase moves
	consistency   float64 // 0-100, higher = less move-to-move variance
	endgameGood   float64 // fraction of endgame moves at best/great/excellent
}

func computeRates(moves []models.MoveAnalysis) rates {
	var r rates
	r.total = len(moves)
	if r.total == 0 {
		return r
	}

	var forcing, quiet, blunders, mistakes, inaccuracies, best int
	var forcingMoves, bestInForcingCount int
	var quietMoves int
	var quietAccuracySum, quietDriftSum float64
	var endgameMoves, endgameGoodMoves int
	var cplValues []float64

	for _, m := range moves {
		swing := math.Abs(float64(m.EvaluationAfter - m.EvaluationBefore))
		isForcing := swing >= forcingThreshold

		if isForcing {
			forcing++
			forcingMoves++
			if m.IsBest {
				bestInForcingCount++
			}
		} else {
			quiet++
			quietMoves++
			quietAccuracySum += accuracyWeight(m.Classification)
			quietDriftSum += m.CentipawnLoss
		}

		if m.IsBlunder {
			blunders++
		}
		if m.IsMistake {
			mistakes++
		}
		if m.IsInaccuracy {
			inaccuracies++
		}
		if m.IsBest {
			best++
		}
		if m.Phase == models.PhaseEndgame {
			endgameMoves++
			switch m.Classification {
			case models.ClassBest, models.ClassGreat, models.ClassExcellent:
				endgameGoodMoves++
			}
		}
		cplValues = append(cplValues, m.CentipawnLoss)
	}

	n := float64(r.total)
	r.forcingRatio = float64(forcing) / n
	r.quietRatio = float64(quiet) / n
	r.blunderRate = float64(blunders) / n
	r.mistakeRate = float64(mistakes) / n
	r.inaccuracyRate = float64(inaccuracies) / n
	r.bestRate = float64(best) / n
	r.overallError = float64(blunders+mistakes+inaccuracies) / n
	r.bestInForcing = safeDiv(float64(bestInForcingCount), float64(forcingMoves))
	r.quietAccuracy = safeDiv(quietAccuracySum, float64(quietMoves)) / 100
	r.quietDrift = quietDriftSum
	r.endgameGood = safeDiv(float64(endgameGoodMoves), float64(endgameMoves))
	r.consistency = consistencyScore(cplValues)
	return r
}

// AccuracyPoints exposes accuracyWeight to other packages (internal/analysis
// uses it to compute the per-game Accuracy and PhaseAccuracies fields from
// the same classification-to-points table the trait formulas draw on).
func AccuracyPoints(c models.MoveClassification) float64 {
	return accuracyWeight(c)
}

// accuracyWeight mirrors the teacher's classification-to-accuracy-points
// table (stockfish.go calculatePlayerStats), collapsed onto this package's
// MoveClassification enum.
func accuracyWeight(c models.MoveClassification) float64 {
	switch c {
	case models.ClassBest:
		return 95
	case models.ClassGreat:
		return 90
	case models.ClassExcellent:
		return 85
	case models.ClassGood, models.ClassBook:
		return 80
	case models.ClassInaccuracy:
		return 70
	case models.ClassMistake:
		return 50
	case models.ClassBlunder:
		return 30
	default:
		return 0
	}
}

// consistencyScore turns the spread of centipawn losses into a 0-100
// steadiness score: a player whose losses cluster tightly around their
// mean plays more "consistently" than one alternating brilliancies and
// blunders at the same average loss.
func consistencyScore(cpl []float64) float64 {
	if len(cpl) == 0 {
		return 50
	}
	var sum float64
	for _, v := range cpl {
		sum += v
	}
	mean := sum / float64(len(cpl))

	var variance float64
	for _, v := range cpl {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(cpl))
	stddev := math.Sqrt(variance)

	// A stddev of 0 is perfectly consistent (100); a stddev at or beyond
	// 150 CP (roughly a blunder's worth of spread) bottoms out at 0.
	return models.Clamp01to100(100 - (stddev/150)*100)
}

// localPatternVariety is the move-level 10% contribution to novelty and
// its staleness mirror: how varied this single game's move classifications
// were, independent of opening choice.
func localPatternVariety(moves []models.MoveAnalysis) (novelty, staleness float64) {
	if len(moves) == 0 {
		return 50, 50
	}
	seen := make(map[models.MoveClassification]int)
	for _, m := range moves {
		seen[m.Classification]++
	}
	distinct := float64(len(seen))
	const maxClassifications = 8
	variety := (distinct / maxClassifications) * 100
	return models.Clamp01to100(variety), models.Clamp01to100(100 - variety)
}

// TimeManagementScore derives the spec §4.5 time-management proxy used as
// patient's time_bonus input when platform clock data is unavailable.
func TimeManagementScore(r rates) float64 {
	score := 50 -
		(r.blunderRate*80 + r.mistakeRate*40 + r.overallError*20) +
		(r.bestRate*30 + r.consistency*0.2)
	return models.Clamp01to100(score)
}

// PerGame computes the move-level trait contributions for one game's
// analyzed moves (spec §4.5 per-move trait contributions).
func PerGame(moves []models.MoveAnalysis) GameTraits {
	r := computeRates(moves)
	if r.total == 0 {
		return GameTraits{Subscores: models.PersonalitySubscores{
			Tactical: 50, Positional: 50, Aggressive: 50, Patient: 50,
			Novelty: 50, Staleness: 50,
		}}
	}

	tactical := models.Clamp01to100(50 +
		r.bestInForcing*50 -
		(r.blunderRate*30 + r.mistakeRate*20))

	positional := models.Clamp01to100(50 +
		r.quietAccuracy*50 -
		math.Min(r.quietDrift*0.5, 40))

	aggressive := models.Clamp01to100(50 +
		r.forcingRatio*45 -
		r.quietRatio*38 -
		(r.blunderRate*15 + r.mistakeRate*10))

	timeScore := TimeManagementScore(r)
	stabilityBonus := math.Min(r.consistency*0.1, 10)
	endgameBonus := math.Min(r.endgameGood*8, 8)
	timeBonus := math.Min(math.Max(timeScore-50, 0)/50*15, 15)
	streakBonus := math.Min(r.quietRatio*7, 7)

	patient := models.Clamp01to100(50 +
		r.quietRatio*24 -
		r.forcingRatio*44 +
		stabilityBonus + endgameBonus + timeBonus + streakBonus -
		(r.blunderRate*28 + r.mistakeRate*16 + r.inaccuracyRate*10))

	novelty, staleness := localPatternVariety(moves)

	return GameTraits{
		Subscores: models.PersonalitySubscores{
			Tactical:   tactical,
			Positional: positional,
			Aggressive: aggressive,
			Patient:    patient,
			Novelty:    novelty,
			Staleness:  staleness,
		},
		MoveCount: r.total,
	}
}

// Repertoire summarizes opening-choice diversity across a player's games,
// feeding the game-level 90% of novelty/staleness (spec §4.5).
type Repertoire struct {
	// DiversityPercent is the share of distinct canonical openings among
	// all games played, 0-100.
	DiversityPercent float64
	// TopShare is the fraction (0-1) of games played in the single most
	// common canonical opening.
	TopShare float64
}

// ComputeRepertoire derives Repertoire from the canonical opening name
// played in each game (already color-filtered by the caller per §4.6).
func ComputeRepertoire(openingNames []string) Repertoire {
	if len(openingNames) == 0 {
		return Repertoire{}
	}
	counts := make(map[string]int)
	for _, name := range openingNames {
		counts[name]++
	}
	total := float64(len(openingNames))
	var top int
	for _, c := range counts {
		if c > top {
			top = c
		}
	}
	return Repertoire{
		DiversityPercent: (float64(len(counts)) / total) * 100,
		TopShare:         float64(top) / total,
	}
}

// GameLevelNoveltyStaleness applies spec §4.5's exact repertoire formulas.
func GameLevelNoveltyStaleness(rep Repertoire) (novelty, staleness float64) {
	novelty = models.Clamp01to100(25 + rep.DiversityPercent*0.6 - rep.TopShare*80)
	staleness = models.Clamp01to100(35 + rep.TopShare*150 - rep.DiversityPercent*0.25)
	return novelty, staleness
}

// Aggregate blends per-game trait contributions into the player-level
// PersonalityScores (spec §4.5 aggregation): a weighted mean by total
// moves for every trait, then novelty/staleness re-blended 10/90 against
// the game-level repertoire signal.
func Aggregate(userID string, platform models.Platform, games []GameTraits, rep Repertoire) models.PersonalityScores {
	var totalMoves int
	var tactical, positional, aggressive, patient, moveNovelty, moveStaleness float64

	for _, g := range games {
		w := float64(g.MoveCount)
		totalMoves += g.MoveCount
		tactical += g.Subscores.Tactical * w
		positional += g.Subscores.Positional * w
		aggressive += g.Subscores.Aggressive * w
		patient += g.Subscores.Patient * w
		moveNovelty += g.Subscores.Novelty * w
		moveStaleness += g.Subscores.Staleness * w
	}

	w := float64(totalMoves)
	scores := models.PersonalityScores{
		UserID:    userID,
		Platform:  platform,
		GamesUsed: len(games),
	}
	if w == 0 {
		scores.Tactical, scores.Positional, scores.Aggressive, scores.Patient = 50, 50, 50, 50
		scores.Novelty, scores.Staleness = 50, 50
		return scores
	}

	scores.Tactical = models.Clamp01to100(tactical / w)
	scores.Positional = models.Clamp01to100(positional / w)
	scores.Aggressive = models.Clamp01to100(aggressive / w)
	scores.Patient = models.Clamp01to100(patient / w)

	gameNovelty, gameStaleness := GameLevelNoveltyStaleness(rep)
	scores.Novelty = models.Clamp01to100((moveNovelty/w)*0.10 + gameNovelty*0.90)
	scores.Staleness = models.Clamp01to100((moveStaleness/w)*0.10 + gameStaleness*0.90)

	return scores
}
