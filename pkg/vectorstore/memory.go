package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store using exact cosine similarity. It backs
// development, tests, and the default configuration; pgvector serves
// persistent deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
	dims        int
}

// NewMemoryStore creates an empty store. When dims > 0 every upserted
// embedding must have exactly that many dimensions.
func NewMemoryStore(dims int) *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Point),
		dims:        dims,
	}
}

// Search returns up to limit points of the collection visible to the
// filter's tenant, scored by cosine similarity, best first. Points scoring
// below scoreThreshold are dropped.
func (s *MemoryStore) Search(ctx context.Context, collection string, embedding []float32, filter Filter, limit int, scoreThreshold float64) ([]SearchResult, error) {
	if filter.TenantID == "" {
		return nil, ErrTenantRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, p := range s.collections[collection] {
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		score := cosineSimilarity(embedding, p.Embedding)
		if score < scoreThreshold {
			continue
		}
		results = append(results, SearchResult{ID: p.ID, Score: score, Payload: p.Payload})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Upsert inserts or replaces points by ID. Every point must carry a tenant.
func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	for _, p := range points {
		if p.Payload.TenantID == "" {
			return fmt.Errorf("point %q: %w", p.ID, ErrTenantRequired)
		}
		if s.dims > 0 && len(p.Embedding) != s.dims {
			return fmt.Errorf("point %q has %d dimensions, store expects %d: %w",
				p.ID, len(p.Embedding), s.dims, ErrDimensionMismatch)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Point)
		s.collections[collection] = coll
	}
	for _, p := range points {
		if p.Payload.CreatedAt.IsZero() {
			p.Payload.CreatedAt = time.Now()
		}
		coll[p.ID] = p
	}
	return nil
}

// Delete removes every point of the collection matching the filter.
func (s *MemoryStore) Delete(ctx context.Context, collection string, filter Filter) error {
	if filter.TenantID == "" {
		return ErrTenantRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[collection]
	for id, p := range coll {
		if matchesFilter(p.Payload, filter) {
			delete(coll, id)
		}
	}
	return nil
}

// Len reports the number of points in a collection. Test helper.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func matchesFilter(p Payload, f Filter) bool {
	if p.TenantID != f.TenantID {
		return false
	}
	if f.ProjectID != "" && p.ProjectID != f.ProjectID {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, p.Category) {
		return false
	}
	if len(f.Tags) > 0 && !overlaps(f.Tags, p.Tags) {
		return false
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is zero or lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
