package vectorstore

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// EmbeddingProvider turns text into a vector for similarity search.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DefaultHashDimensions is the vector width of the hashing embedder.
const DefaultHashDimensions = 256

// HashEmbedder is a deterministic feature-hashing embedder: terms are
// hashed into a fixed number of buckets and the result is L2-normalised.
// It captures term overlap, not meaning, which is enough for development
// and tests; production deployments wire a real embedding backend.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a hashing embedder with the given vector width.
// Non-positive dims fall back to DefaultHashDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Embed hashes the lower-cased terms of text into buckets. Empty text
// yields a zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return vec, nil
	}

	for _, term := range terms {
		h := fnv.New64a()
		h.Write([]byte(term))
		bucket := int(h.Sum64() % uint64(e.dims))
		vec[bucket]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
