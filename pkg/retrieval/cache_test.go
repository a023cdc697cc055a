package retrieval

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBundle(content string) *Bundle {
	return &Bundle{
		Items: []models.ContextItem{{
			Type:      models.ContextLesson,
			Content:   content,
			Relevance: 0.9,
			Tokens:    models.EstimateTokens(content),
		}},
		TotalTokens: models.EstimateTokens(content),
		Sources:     []string{"lessons"},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCache(time.Minute, 10, 1<<20, nil, testLogger())

	_, ok := cache.Get("tenant-a|missing")
	assert.False(t, ok)

	cache.Put("tenant-a|k1", testBundle("lesson one"))

	got, ok := cache.Get("tenant-a|k1")
	require.True(t, ok)
	assert.True(t, got.CacheHit)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "lesson one", got.Items[0].Content)
	assert.Equal(t, []string{"lessons"}, got.Sources)
}

func TestCacheExpiry(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	cache := NewCache(time.Second, 10, 1<<20, clk, testLogger())

	cache.Put("tenant-a|k1", testBundle("short lived"))
	clk.Step(2 * time.Second)

	_, ok := cache.Get("tenant-a|k1")
	assert.False(t, ok)

	entries, bytes := cache.Stats()
	assert.Zero(t, entries)
	assert.Zero(t, bytes)
}

func TestCacheLRUEvictsOldest(t *testing.T) {
	cache := NewCache(time.Minute, 2, 1<<20, nil, testLogger())

	cache.Put("tenant-a|a", testBundle("a"))
	cache.Put("tenant-a|b", testBundle("b"))

	_, ok := cache.Get("tenant-a|a")
	require.True(t, ok)

	cache.Put("tenant-a|c", testBundle("c"))

	_, ok = cache.Get("tenant-a|b")
	assert.False(t, ok, "least recently used entry should be gone")
	_, ok = cache.Get("tenant-a|a")
	assert.True(t, ok)
	_, ok = cache.Get("tenant-a|c")
	assert.True(t, ok)
}

func TestCacheByteBoundEviction(t *testing.T) {
	cache := NewCache(time.Minute, 10, 300, nil, testLogger())

	cache.Put("tenant-a|k1", testBundle(strings.Repeat("x", 150)))
	cache.Put("tenant-a|k2", testBundle(strings.Repeat("y", 150)))

	entries, bytes := cache.Stats()
	assert.Equal(t, 1, entries)
	assert.LessOrEqual(t, bytes, 300)

	_, ok := cache.Get("tenant-a|k1")
	assert.False(t, ok)
	_, ok = cache.Get("tenant-a|k2")
	assert.True(t, ok)
}

func TestCacheInvalidateTenant(t *testing.T) {
	cache := NewCache(time.Minute, 10, 1<<20, nil, testLogger())

	cache.Put("tenant-a|k1", testBundle("a1"))
	cache.Put("tenant-a|k2", testBundle("a2"))
	cache.Put("tenant-b|k1", testBundle("b1"))

	removed := cache.InvalidateTenant("tenant-a")
	assert.Equal(t, 2, removed)

	_, ok := cache.Get("tenant-a|k1")
	assert.False(t, ok)
	_, ok = cache.Get("tenant-a|k2")
	assert.False(t, ok)
	_, ok = cache.Get("tenant-b|k1")
	assert.True(t, ok)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	cache := NewCache(time.Minute, 10, 1<<20, nil, testLogger())
	cache.Put("tenant-a|k1", testBundle("original"))

	first, ok := cache.Get("tenant-a|k1")
	require.True(t, ok)
	first.Items[0].Content = "mutated"

	second, ok := cache.Get("tenant-a|k1")
	require.True(t, ok)
	assert.Equal(t, "original", second.Items[0].Content)
}

func TestCacheSweepRemovesExpired(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	cache := NewCache(time.Second, 10, 1<<20, clk, testLogger())

	cache.Put("tenant-a|k1", testBundle("a"))
	cache.Put("tenant-a|k2", testBundle("b"))
	clk.Step(2 * time.Second)

	assert.Equal(t, 2, cache.removeExpired())
	entries, _ := cache.Stats()
	assert.Zero(t, entries)
}

func TestCacheStartStop(t *testing.T) {
	cache := NewCache(time.Minute, 10, 1<<20, nil, testLogger())

	cache.Start(context.Background())
	cache.Start(context.Background())
	cache.Stop()
	cache.Stop()
}
