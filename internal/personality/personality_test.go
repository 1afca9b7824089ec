package personality

import (
	"testing"

	"github.com/chessanalytics/core/internal/models"
)

func moveAt(phase models.GamePhase, class models.MoveClassification, cpl float64, before, after int) models.MoveAnalysis {
	return models.MoveAnalysis{
		Phase:            phase,
		Classification:   class,
		CentipawnLoss:    cpl,
		IsBest:           class == models.ClassBest,
		IsBlunder:        class == models.ClassBlunder,
		IsMistake:        class == models.ClassMistake,
		IsInaccuracy:     class == models.ClassInaccuracy,
		EvaluationBefore: before,
		EvaluationAfter:  after,
	}
}

func TestPerGameEmptyMovesReturnsNeutralScores(t *testing.T) {
	g := PerGame(nil)
	if g.Subscores.Tactical != 50 || g.Subscores.Patient != 50 {
		t.Fatalf("expected neutral 50 baseline for no moves, got %+v", g.Subscores)
	}
	if g.MoveCount != 0 {
		t.Fatalf("expected zero move count, got %d", g.MoveCount)
	}
}

func TestAggressivePlayerScoresAboveFiftyOnForcingGame(t *testing.T) {
	var moves []models.MoveAnalysis
	for i := 0; i < 20; i++ {
		moves = append(moves, moveAt(models.PhaseMiddlegame, models.ClassBest, 2, 0, 300))
	}
	g := PerGame(moves)
	if g.Subscores.Aggressive <= 50 {
		t.Fatalf("expected forcing-heavy game to score aggressive above baseline, got %f", g.Subscores.Aggressive)
	}
}

func TestPatientPlayerScoresAboveFiftyOnQuietGame(t *testing.T) {
	var moves []models.MoveAnalysis
	for i := 0; i < 20; i++ {
		moves = append(moves, moveAt(models.PhaseMiddlegame, models.ClassBest, 2, 0, 5))
	}
	g := PerGame(moves)
	if g.Subscores.Patient <= 50 {
		t.Fatalf("expected quiet game to score patient above baseline, got %f", g.Subscores.Patient)
	}
}

func TestBlundersDepressAggressiveAndPatient(t *testing.T) {
	var clean, blundery []models.MoveAnalysis
	for i := 0; i < 20; i++ {
		clean = append(clean, moveAt(models.PhaseMiddlegame, models.ClassBest, 2, 0, 300))
		if i < 5 {
			blundery = append(blundery, moveAt(models.PhaseMiddlegame, models.ClassBlunder, 250, 0, 300))
		} else {
			blundery = append(blundery, moveAt(models.PhaseMiddlegame, models.ClassBest, 2, 0, 300))
		}
	}
	cleanG := PerGame(clean)
	blunderyG := PerGame(blundery)
	if blunderyG.Subscores.Aggressive >= cleanG.Subscores.Aggressive {
		t.Fatalf("expected blunders to depress aggressive score: clean=%f blundery=%f",
			cleanG.Subscores.Aggressive, blunderyG.Subscores.Aggressive)
	}
	if blunderyG.Subscores.Patient >= cleanG.Subscores.Patient {
		t.Fatalf("expected blunders to depress patient score: clean=%f blundery=%f",
			cleanG.Subscores.Patient, blunderyG.Subscores.Patient)
	}
}

func TestComputeRepertoireSingleOpeningMaximizesTopShare(t *testing.T) {
	rep := ComputeRepertoire([]string{"Sicilian Defense", "Sicilian Defense", "Sicilian Defense"})
	if rep.TopShare != 1.0 {
		t.Fatalf("expected top share 1.0 for a single repeated opening, got %f", rep.TopShare)
	}
	if rep.DiversityPercent >= 50 {
		t.Fatalf("expected low diversity for a single repeated opening, got %f", rep.DiversityPercent)
	}
}

func TestGameLevelNoveltyStalenessAreSoftOpposites(t *testing.T) {
	diverse := ComputeRepertoire([]string{"Sicilian Defense", "Caro-Kann Defense", "French Defense", "Italian Game"})
	repetitive := ComputeRepertoire([]string{"Sicilian Defense", "Sicilian Defense", "Sicilian Defense", "Sicilian Defense"})

	diverseNovelty, diverseStaleness := GameLevelNoveltyStaleness(diverse)
	repetitiveNovelty, repetitiveStaleness := GameLevelNoveltyStaleness(repetitive)

	if diverseNovelty <= repetitiveNovelty {
		t.Fatalf("expected diverse repertoire to score higher novelty: diverse=%f repetitive=%f",
			diverseNovelty, repetitiveNovelty)
	}
	if diverseStaleness >= repetitiveStaleness {
		t.Fatalf("expected repetitive repertoire to score higher staleness: diverse=%f repetitive=%f",
			diverseStaleness, repetitiveStaleness)
	}
}

func TestAggregateWeightsByMoveCount(t *testing.T) {
	big := GameTraits{Subscores: models.PersonalitySubscores{Tactical: 90, Positional: 50, Aggressive: 50, Patient: 50, Novelty: 50, Staleness: 50}, MoveCount: 100}
	small := GameTraits{Subscores: models.PersonalitySubscores{Tactical: 10, Positional: 50, Aggressive: 50, Patient: 50, Novelty: 50, Staleness: 50}, MoveCount: 5}

	scores := Aggregate("user1", models.PlatformLichess, []GameTraits{big, small}, Repertoire{})
	if scores.Tactical <= 70 {
		t.Fatalf("expected weighted mean to favor the higher-move-count game, got %f", scores.Tactical)
	}
	if scores.GamesUsed != 2 {
		t.Fatalf("expected GamesUsed to count games, got %d", scores.GamesUsed)
	}
}

func TestAggregateNoGamesReturnsNeutralBaseline(t *testing.T) {
	scores := Aggregate("user1", models.PlatformLichess, nil, Repertoire{})
	if scores.Tactical != 50 || scores.Novelty != 50 {
		t.Fatalf("expected neutral baseline with no games, got %+v", scores)
	}
}
