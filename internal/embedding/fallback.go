package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
)

// FallbackEngine produces reproducible pseudo-random unit vectors seeded
// from a hash of the text. It exists so the pipeline keeps running, at
// degraded matching quality, when no real embedding backend is reachable.
// Results from this engine are flagged as degraded by the Provider.
type FallbackEngine struct {
	dim int
}

// NewFallbackEngine creates a fallback engine of the given dimension.
func NewFallbackEngine(dim int) *FallbackEngine {
	if dim <= 0 {
		dim = 768
	}
	return &FallbackEngine{dim: dim}
}

// Embed returns the deterministic vector for text. Identical texts always
// map to identical vectors, so cache semantics are preserved.
func (e *FallbackEngine) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.LittleEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, e.dim)
	var mag float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		mag += v * v
	}

	// Unit length, so cosine similarity stays well-conditioned.
	if mag > 0 {
		inv := float32(1 / math.Sqrt(mag))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch generates deterministic vectors for multiple texts.
func (e *FallbackEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured vector dimension.
func (e *FallbackEngine) Dimensions() int {
	return e.dim
}

// Name returns the engine name.
func (e *FallbackEngine) Name() string {
	return fmt.Sprintf("fallback:%d", e.dim)
}
