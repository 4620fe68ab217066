package embedding

import (
	"context"

	"tablechain/internal/logging"
	"tablechain/internal/normalize"
)

// Provider is the embedding front door used by the matcher and merger.
// It normalizes header text, consults the cache, calls the configured
// backend, and falls back to deterministic vectors when the backend is
// unavailable. The degraded flag is carried through so every consumer can
// distinguish real similarity from degraded similarity.
type Provider struct {
	engine   Engine
	fallback *FallbackEngine
	cache    *Cache
	log      *logging.Logger
}

// NewProvider wires an engine to a cache. The fallback dimension follows
// the engine so vectors from both sources remain comparable within a run.
func NewProvider(engine Engine, cache *Cache) *Provider {
	if cache == nil {
		cache = NewCache()
	}
	return &Provider{
		engine:   engine,
		fallback: NewFallbackEngine(engine.Dimensions()),
		cache:    cache,
		log:      logging.Get(logging.CategoryEmbedding),
	}
}

// EmbedHeader returns the vector for a raw header string. The cache key is
// the normalized text, so headers differing only in year tokens or
// whitespace share one entry. degraded reports whether the vector came
// from the fallback engine.
func (p *Provider) EmbedHeader(ctx context.Context, rawHeader string) (vec []float32, degraded bool, err error) {
	key := normalize.Header(rawHeader)
	return p.embedNormalized(ctx, key)
}

// EmbedText embeds already-normalized text. Used by the merger, whose
// representative headers are normalized once up front.
func (p *Provider) EmbedText(ctx context.Context, text string) (vec []float32, degraded bool, err error) {
	return p.embedNormalized(ctx, text)
}

func (p *Provider) embedNormalized(ctx context.Context, key string) ([]float32, bool, error) {
	if vec, deg, ok := p.cache.Get(key); ok {
		return vec, deg, nil
	}

	// A blank header is a legitimate low-information case: embed the empty
	// string through the fallback so it gets a stable sentinel vector.
	if key == "" {
		vec, _ := p.fallback.Embed(ctx, key)
		p.cache.Put(key, vec, true)
		return vec, true, nil
	}

	vec, err := p.engine.Embed(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		p.log.Warn("backend %s unavailable, using fallback vector: %v", p.engine.Name(), err)
		fvec, _ := p.fallback.Embed(ctx, key)
		p.cache.Put(key, fvec, true)
		return fvec, true, nil
	}

	p.cache.Put(key, vec, false)
	return vec, false, nil
}

// Dimensions returns the provider's vector dimension.
func (p *Provider) Dimensions() int {
	return p.engine.Dimensions()
}
