// Package importer ingests a player's game history from Lichess or
// Chess.com into the Game and PGN stores (spec §4.2). No teacher analogue
// exists for cross-platform import; the two adapters are grounded on
// Piemme99-TreeChess's LichessService/ChesscomService, the two-phase
// probe-new/backfill-old state machine and adaptive batching are built
// fresh from spec.md, in the teacher's service-struct-plus-logrus idiom.
package importer

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chessanalytics/core/internal/apperr"
	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/internal/opening"
	"github.com/chessanalytics/core/internal/persistence"
)

// consecutiveEmptyBatchesBeforeBackfill is the probe-new → backfill-old
// transition threshold (spec §4.2: "three consecutive fetch batches yield
// zero new games").
const consecutiveEmptyBatchesBeforeBackfill = 3

// gcEvery is how often the adaptive batch loop nudges the GC (spec §4.2:
// "a gc() equivalent runs every 100 games").
const gcEvery = 100

// Importer orchestrates the two-phase import state machine across both
// platform adapters, bounded by a global concurrency semaphore.
type Importer struct {
	store    *persistence.Store
	lichess  *LichessClient
	chesscom *ChessComClient
	openings *opening.Table

	semaphore chan struct{}

	sessionCap int
	stuckAfter time.Duration
}

// New builds an Importer. concurrencyLimit is the global semaphore size
// (2 Hobby / 5 Pro, spec §5); sessionCap bounds games per invocation
// (1000 Hobby, spec §4.2).
func New(store *persistence.Store, lichess *LichessClient, chesscom *ChessComClient, concurrencyLimit, sessionCap int, stuckAfter time.Duration) *Importer {
	return &Importer{
		store:      store,
		lichess:    lichess,
		chesscom:   chesscom,
		openings:   opening.NewTable(),
		semaphore:  make(chan struct{}, concurrencyLimit),
		sessionCap: sessionCap,
		stuckAfter: stuckAfter,
	}
}

// batchSize implements spec §4.2's adaptive batch-size schedule.
func batchSize(importedSoFar int) int {
	switch {
	case importedSoFar < 500:
		return 50
	case importedSoFar < 800:
		return 35
	default:
		return 25
	}
}

// batchDelay implements spec §4.2's adaptive inter-batch delay.
func batchDelay(importedSoFar int) time.Duration {
	if importedSoFar < 500 {
		return 100 * time.Millisecond
	}
	return 200 * time.Millisecond
}

// StartImport admits a new import session for (userID, platform) and runs
// it on a detached background goroutine, returning the session
// immediately for polling (spec §4.2: "Runs as a background task").
func (im *Importer) StartImport(userID string, platform models.Platform, maxGames int) (*models.ImportSession, error) {
	canonical := persistence.CanonicalUserID(userID, platform)
	session, started := im.store.ImportSessions.Start(canonical, platform)
	if !started {
		return session, apperr.New(apperr.TagImportInProgress, "import already running for this user")
	}

	select {
	case im.semaphore <- struct{}{}:
	default:
		im.store.ImportSessions.Finish(canonical, platform, models.PhaseError, string(apperr.TagImportInProgress))
		return session, apperr.New(apperr.TagImportInProgress, "import concurrency limit reached, retry shortly")
	}

	if maxGames <= 0 || maxGames > im.sessionCap {
		maxGames = im.sessionCap
	}

	go func() {
		defer func() { <-im.semaphore }()
		im.run(context.Background(), canonical, platform, maxGames)
	}()

	return session, nil
}

func (im *Importer) run(ctx context.Context, userID string, platform models.Platform, maxGames int) {
	log := logrus.WithFields(logrus.Fields{"component": "importer", "user_id": userID, "platform": platform})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("import session panicked: %v", r)
			im.store.ImportSessions.Finish(userID, platform, models.PhaseError, string(apperr.TagPersistenceFailed))
		}
	}()

	imported := 0
	consecutiveEmpty := 0
	phase := models.PhaseProbeNew

	for imported < maxGames {
		session, ok := im.store.ImportSessions.Get(userID, platform)
		if !ok {
			return
		}
		session.Phase = phase

		var rawGames []ParsedPGN
		var err error

		switch phase {
		case models.PhaseProbeNew:
			rawGames, err = im.fetchProbeNewBatch(ctx, userID, platform)
		case models.PhaseBackfillOld:
			rawGames, err = im.fetchBackfillBatch(ctx, userID, platform)
		default:
			im.store.ImportSessions.Finish(userID, platform, models.PhaseDone, "")
			return
		}

		if err != nil {
			tag, _ := apperr.AsTag(err)
			log.WithError(err).Warn("batch fetch failed")
			session.StatusMessage = err.Error()
			session.FailureTag = string(tag)
			im.store.ImportSessions.Update(session)
			if tag == apperr.TagNotFound {
				im.store.ImportSessions.Finish(userID, platform, models.PhaseError, string(tag))
				return
			}
			consecutiveEmpty++
			if consecutiveEmpty >= consecutiveEmptyBatchesBeforeBackfill && phase == models.PhaseProbeNew {
				phase = models.PhaseBackfillOld
				consecutiveEmpty = 0
			}
			continue
		}

		if len(rawGames) == 0 {
			consecutiveEmpty++
			if phase == models.PhaseProbeNew && consecutiveEmpty >= consecutiveEmptyBatchesBeforeBackfill {
				phase = models.PhaseBackfillOld
				consecutiveEmpty = 0
				continue
			}
			if phase == models.PhaseBackfillOld {
				im.store.ImportSessions.Finish(userID, platform, models.PhaseDone, "")
				return
			}
			continue
		}
		consecutiveEmpty = 0

		size := batchSize(imported)
		for start := 0; start < len(rawGames); start += size {
			end := start + size
			if end > len(rawGames) {
				end = len(rawGames)
			}
			chunk := rawGames[start:end]

			n, skipped, err := im.persistBatch(ctx, userID, platform, chunk)
			if err != nil {
				log.WithError(err).Error("batch persist failed")
				session.FailureTag = string(apperr.TagPersistenceFailed)
				im.store.ImportSessions.Update(session)
				im.store.ImportSessions.Finish(userID, platform, models.PhaseError, string(apperr.TagPersistenceFailed))
				return
			}

			imported += n
			session.ImportedCount += n
			session.CheckedCount += len(chunk)
			session.SkippedDuplicates += skipped
			im.store.ImportSessions.Update(session)

			if imported%gcEvery < size {
				runtime.GC()
			}

			select {
			case <-ctx.Done():
				im.store.ImportSessions.Finish(userID, platform, models.PhaseError, string(apperr.TagTimeout))
				return
			case <-time.After(batchDelay(imported)):
			}

			if imported >= maxGames {
				break
			}
		}
	}

	im.store.ImportSessions.Finish(userID, platform, models.PhaseDone, "")
}

func (im *Importer) persistBatch(ctx context.Context, userID string, platform models.Platform, chunk []ParsedPGN) (imported int, skipped int, err error) {
	games := make([]models.Game, 0, len(chunk))
	pgns := make([]models.PGNRecord, 0, len(chunk))

	for _, pp := range chunk {
		headers := pp.Headers
		providerGameID := providerGameIDFromHeaders(headers, platform)
		if providerGameID == "" {
			continue
		}

		san := opening.MovesFromParsedGame(pp.Game)
		classification := im.openings.Classify(headers["Opening"], headers["ECO"], san)
		color := DetermineColor(headers, userID)

		games = append(games, models.Game{
			UserID:            userID,
			Platform:          platform,
			ProviderGameID:    providerGameID,
			PlayedAt:          parsePlayedAt(headers),
			Color:             color,
			Result:            resultFor(headers, color),
			TimeControl:       headers["TimeControl"],
			Opening:           classification.Name,
			OpeningNormalized: classification.Name,
			OpeningFamily:     classification.Family,
		})
		pgns = append(pgns, models.PGNRecord{
			UserID:         userID,
			Platform:       platform,
			ProviderGameID: providerGameID,
			Movetext:       pp.Movetext,
		})
	}

	if len(games) == 0 {
		return 0, 0, nil
	}

	result, err := im.store.Games.Upsert(ctx, games)
	if err != nil {
		return 0, 0, err
	}
	for _, rec := range pgns {
		if err := im.store.PGNs.Upsert(ctx, rec); err != nil {
			return 0, 0, err
		}
	}

	skipped = len(games) - result.Inserted
	return result.Inserted, skipped, nil
}

// BuildGameRecord constructs the display-field Game row for one parsed PGN,
// the same construction persistBatch uses per-chunk, exposed so the
// scheduler's FK preflight (spec §4.3: "auto-create a minimal Game row from
// PGN headers") can reuse the identical header parsing instead of
// duplicating it.
func (im *Importer) BuildGameRecord(userID string, platform models.Platform, pp ParsedPGN) (models.Game, bool) {
	providerGameID := providerGameIDFromHeaders(pp.Headers, platform)
	if providerGameID == "" {
		return models.Game{}, false
	}
	san := opening.MovesFromParsedGame(pp.Game)
	classification := im.openings.Classify(pp.Headers["Opening"], pp.Headers["ECO"], san)
	color := DetermineColor(pp.Headers, userID)

	return models.Game{
		UserID:            userID,
		Platform:          platform,
		ProviderGameID:    providerGameID,
		PlayedAt:          parsePlayedAt(pp.Headers),
		Color:             color,
		Result:            resultFor(pp.Headers, color),
		TimeControl:       pp.Headers["TimeControl"],
		Opening:           classification.Name,
		OpeningNormalized: classification.Name,
		OpeningFamily:     classification.Family,
	}, true
}

// FetchMissingPGN implements spec §4.2's fallback single-game fetch: if
// analysis needs a game whose PGN was never imported, fetch and persist
// it directly rather than failing the analysis job.
func (im *Importer) FetchMissingPGN(ctx context.Context, userID string, platform models.Platform, providerGameID string) (string, error) {
	canonical := persistence.CanonicalUserID(userID, platform)
	if existing, ok, err := im.store.PGNs.Get(ctx, canonical, platform, providerGameID); err == nil && ok {
		return existing.Movetext, nil
	}

	var pgn string
	var err error
	switch platform {
	case models.PlatformLichess:
		pgn, err = im.lichess.FetchSingleGame(ctx, providerGameID)
	case models.PlatformChessCom:
		pgn, err = im.fetchChessComSingleGame(ctx, userID, providerGameID)
	default:
		return "", apperr.New(apperr.TagValidation, "unknown platform")
	}
	if err != nil {
		return "", err
	}

	if err := im.store.PGNs.Upsert(ctx, models.PGNRecord{
		UserID: canonical, Platform: platform, ProviderGameID: providerGameID, Movetext: pgn,
	}); err != nil {
		return "", err
	}
	return pgn, nil
}

// fetchChessComSingleGame scans the last three months of archives for a
// matching game, since Chess.com has no direct single-game endpoint.
func (im *Importer) fetchChessComSingleGame(ctx context.Context, username, providerGameID string) (string, error) {
	archives, err := im.chesscom.Archives(ctx, username)
	if err != nil {
		return "", err
	}
	if len(archives) > 3 {
		archives = archives[len(archives)-3:]
	}
	for i := len(archives) - 1; i >= 0; i-- {
		monthPGN, err := im.chesscom.FetchMonthPGN(ctx, archives[i])
		if err != nil {
			continue
		}
		for _, pp := range ParseGames(monthPGN) {
			if providerGameIDFromHeaders(pp.Headers, models.PlatformChessCom) == providerGameID {
				return pp.Movetext, nil
			}
		}
	}
	return "", apperr.New(apperr.TagNotFound, "game not found in recent chess.com archives")
}
