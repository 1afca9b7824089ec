package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chessanalytics/core/internal/analysis"
	"github.com/chessanalytics/core/internal/engine"
	"github.com/chessanalytics/core/internal/importer"
	"github.com/chessanalytics/core/internal/models"
)

// bucketStats accumulates per-rating-bucket trait sums for the calibration
// report; divide by count for the bucket mean.
type bucketStats struct {
	count                                      int
	tactical, positional, aggressive, patient float64
	novelty, staleness, accuracy               float64
}

func main() {
	var (
		pgnPath    = flag.String("pgn", "", "Path to a PGN file to calibrate personality trait weights against")
		binaryPath = flag.String("engine", "stockfish", "Path to the UCI engine binary")
		depth      = flag.Int("depth", 12, "Search depth per position")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *pgnPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -pgn <path_to_pgn_file> [-engine <binary>] [-depth <n>] [-v]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if _, err := os.Stat(*pgnPath); os.IsNotExist(err) {
		logger.Fatalf("PGN file does not exist: %s", *pgnPath)
	}
	data, err := os.ReadFile(*pgnPath)
	if err != nil {
		logger.Fatalf("failed to read pgn file: %v", err)
	}

	pool := engine.NewPool(models.EnginePoolConfig{
		ExecutablePath:       *binaryPath,
		MaxConcurrentEngines: 2,
		ThreadsPerEngine:     1,
		HashMB:               64,
		SkillLevel:           20,
		Tier:                 models.TierHobby,
	})
	if err := pool.Start(); err != nil {
		logger.Fatalf("failed to start engine pool: %v", err)
	}
	defer pool.Shutdown()

	parsed := importer.ParseGames(string(data))
	if len(parsed) == 0 {
		logger.Fatal("pgn file contained no playable games")
	}
	logger.Infof("calibrating personality trait weights against %d games", len(parsed))

	opts := analysis.Options{Depth: *depth, TimePerMove: 200 * time.Millisecond, SkillLevel: 20, MaxConcurrentPositions: 1}
	buckets := make(map[string]*bucketStats)

	for i, p := range parsed {
		for _, color := range []models.Color{models.ColorWhite, models.ColorBlack} {
			ratingHeader := "WhiteElo"
			if color == models.ColorBlack {
				ratingHeader = "BlackElo"
			}
			bucket := ratingBucket(p.Headers[ratingHeader])

			_, aggregate, err := analysis.AnalyzeGame(context.Background(), pool, p.Game, color, models.AnalysisStockfish, opts)
			if err != nil {
				logger.WithError(err).Warnf("game %d (%s) failed, skipping", i, color)
				continue
			}

			b, ok := buckets[bucket]
			if !ok {
				b = &bucketStats{}
				buckets[bucket] = b
			}
			b.count++
			b.tactical += aggregate.Subscores.Tactical
			b.positional += aggregate.Subscores.Positional
			b.aggressive += aggregate.Subscores.Aggressive
			b.patient += aggregate.Subscores.Patient
			b.novelty += aggregate.Subscores.Novelty
			b.staleness += aggregate.Subscores.Staleness
			b.accuracy += aggregate.Accuracy
		}
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\n=== Personality Trait Calibration ===")
	for _, name := range names {
		b := buckets[name]
		n := float64(b.count)
		fmt.Printf("\nRating Bucket: %s (%d games)\n", name, b.count)
		fmt.Printf("  Tactical:   %.2f\n", b.tactical/n)
		fmt.Printf("  Positional: %.2f\n", b.positional/n)
		fmt.Printf("  Aggressive: %.2f\n", b.aggressive/n)
		fmt.Printf("  Patient:    %.2f\n", b.patient/n)
		fmt.Printf("  Novelty:    %.2f\n", b.novelty/n)
		fmt.Printf("  Staleness:  %.2f\n", b.staleness/n)
		fmt.Printf("  Accuracy:   %.2f\n", b.accuracy/n)
	}

	logger.Info("calibration complete, compare bucket means against internal/personality's constants for drift")
}

// ratingBucket groups a player's Elo header into the bands the calibration
// report is broken out by; an unparseable or absent header falls into its
// own "unrated" bucket rather than skewing a rated one.
func ratingBucket(elo string) string {
	v, err := strconv.Atoi(elo)
	if err != nil {
		return "unrated"
	}
	switch {
	case v < 1200:
		return "under_1200"
	case v < 1600:
		return "1200_1600"
	case v < 2000:
		return "1600_2000"
	case v < 2400:
		return "2000_2400"
	default:
		return "2400_plus"
	}
}
