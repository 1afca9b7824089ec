package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chessanalytics/core/internal/models"
)

// EvaluationCache is the bounded LRU layer keyed by position fingerprint
// (engine.Fingerprint). internal/engine.Pool.Evaluate neither reads from nor
// writes to it; every Evaluate call goes to an engine.
type EvaluationCache struct {
	lru *lru.Cache[string, models.EngineEvaluation]
}

// NewEvaluationCache builds an LRU cache holding at most size entries.
func NewEvaluationCache(size int) (*EvaluationCache, error) {
	l, err := lru.New[string, models.EngineEvaluation](size)
	if err != nil {
		return nil, err
	}
	return &EvaluationCache{lru: l}, nil
}

// Get returns a cached evaluation for a position fingerprint.
func (c *EvaluationCache) Get(fingerprint string) (models.EngineEvaluation, bool) {
	return c.lru.Get(fingerprint)
}

// Set stores an evaluation under its position fingerprint. Fallback
// evaluations are still cached — they are cheap to recompute and re-caching
// them avoids hammering a wedged engine on every repeated request.
func (c *EvaluationCache) Set(fingerprint string, eval models.EngineEvaluation) {
	c.lru.Add(fingerprint, eval)
}

// Len reports the current number of cached entries.
func (c *EvaluationCache) Len() int {
	return c.lru.Len()
}
