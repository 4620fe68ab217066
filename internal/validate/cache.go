package validate

import (
	"context"
	"sync"
)

// Cached memoizes verdicts per unordered header pair for the lifetime of
// one run. The merger pass re-examines the same chain pairs across
// iterations, so without this every fixed-point iteration would re-bill
// identical questions. Degraded results are not cached: a later attempt
// may find the service healthy again.
type Cached struct {
	inner Validator

	mu      sync.Mutex
	results map[pairKey]Result
}

type pairKey struct{ a, b string }

func newPairKey(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// NewCached wraps inner with a per-run response cache.
func NewCached(inner Validator) *Cached {
	return &Cached{inner: inner, results: make(map[pairKey]Result)}
}

func (c *Cached) SameSeries(ctx context.Context, headerA, headerB, decisionType string) (Result, error) {
	key := newPairKey(headerA, headerB)

	c.mu.Lock()
	if res, ok := c.results[key]; ok {
		c.mu.Unlock()
		return res, nil
	}
	c.mu.Unlock()

	res, err := c.inner.SameSeries(ctx, headerA, headerB, decisionType)
	if err != nil {
		return res, err
	}
	if !res.Degraded() {
		c.mu.Lock()
		c.results[key] = res
		c.mu.Unlock()
	}
	return res, nil
}
