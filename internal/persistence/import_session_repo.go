package persistence

import (
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chessanalytics/core/internal/models"
)

// ImportSessionRepo tracks the ephemeral, per-(UserID, Platform) import
// session state. Sessions are short-lived and polled frequently, so they
// live in an in-process map guarded by a single mutex (teacher idiom, spec
// §5: "per-tenant import session ... guarded by a sync.Mutex") rather than
// round-tripping to Postgres on every progress tick; the pool field is kept
// for parity with the other repos and future durability if sessions need
// to survive a process restart.
type ImportSessionRepo struct {
	pool *pgxpool.Pool

	mu       sync.Mutex
	sessions map[string]*models.ImportSession
}

func sessionKey(userID string, platform models.Platform) string {
	return string(platform) + "\x00" + userID
}

// Start creates a new session, failing if one is already active for the
// tenant (spec §4.2: "exactly one active per (user_id, platform)").
func (r *ImportSessionRepo) Start(userID string, platform models.Platform) (*models.ImportSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[string]*models.ImportSession)
	}

	key := sessionKey(userID, platform)
	if existing, ok := r.sessions[key]; ok && existing.Phase != models.PhaseDone && existing.Phase != models.PhaseError {
		return existing, false
	}

	session := &models.ImportSession{
		UserID:         userID,
		Platform:       platform,
		Phase:          models.PhaseProbeNew,
		StartedAt:      time.Now(),
		LastProgressAt: time.Now(),
	}
	r.sessions[key] = session
	return session, true
}

// Get returns the current session for a tenant, if any.
func (r *ImportSessionRepo) Get(userID string, platform models.Platform) (*models.ImportSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey(userID, platform)]
	return s, ok
}

// Update replaces the stored session value, bumping LastProgressAt.
func (r *ImportSessionRepo) Update(session *models.ImportSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.LastProgressAt = time.Now()
	if r.sessions == nil {
		r.sessions = make(map[string]*models.ImportSession)
	}
	r.sessions[sessionKey(session.UserID, session.Platform)] = session
}

// Finish marks a session done or error and leaves it in the map so late
// pollers still observe the terminal state. Finished sessions are not
// removed after any period; a later Start for the tenant replaces it.
func (r *ImportSessionRepo) Finish(userID string, platform models.Platform, phase models.ImportPhase, failureTag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey(userID, platform)
	s, ok := r.sessions[key]
	if !ok {
		return
	}
	s.Phase = phase
	s.FailureTag = failureTag
	s.LastProgressAt = time.Now()
}

// ActiveCount returns how many sessions are neither done nor errored,
// used by the importer's global semaphore diagnostics.
func (r *ImportSessionRepo) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.sessions {
		if s.Phase != models.PhaseDone && s.Phase != models.PhaseError {
			count++
		}
	}
	return count
}
