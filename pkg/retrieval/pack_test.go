package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

func mkItem(content string, relevance float64) models.ContextItem {
	return models.ContextItem{
		Type:      models.ContextLesson,
		Content:   content,
		Relevance: relevance,
		Tokens:    models.EstimateTokens(content),
	}
}

func TestPackAllItemsFit(t *testing.T) {
	items := []models.ContextItem{
		mkItem(strings.Repeat("a", 40), 0.9),
		mkItem(strings.Repeat("b", 40), 0.8),
	}

	packed, used := packItems(items, 100)

	require.Len(t, packed, 2)
	assert.Equal(t, 20, used)
	assert.Equal(t, items[0].Content, packed[0].Content)
	assert.Equal(t, items[1].Content, packed[1].Content)
}

func TestPackStopsWhenLeftoverTooSmall(t *testing.T) {
	items := []models.ContextItem{
		mkItem(strings.Repeat("a", 320), 0.9), // 80 tokens
		mkItem(strings.Repeat("b", 120), 0.8), // 30 tokens
	}

	packed, used := packItems(items, 100)

	require.Len(t, packed, 1)
	assert.Equal(t, 80, used)
	assert.False(t, packed[0].Truncated)
}

func TestPackTruncatesOverflowItemAtSentenceBoundary(t *testing.T) {
	overflow := strings.Repeat("a", 200) + "." + strings.Repeat("b", 99)
	items := []models.ContextItem{
		mkItem(strings.Repeat("x", 160), 0.9), // 40 tokens
		mkItem(overflow, 0.8),                 // 75 tokens, does not fit in 60
		mkItem("tiny", 0.7),
	}

	packed, used := packItems(items, 100)

	require.Len(t, packed, 2, "packing stops after the truncated item")
	cut := packed[1]
	assert.True(t, cut.Truncated)
	assert.Equal(t, strings.Repeat("a", 200)+"."+truncationMarker, cut.Content)
	assert.LessOrEqual(t, cut.Tokens, 60)
	assert.Equal(t, 40+cut.Tokens, used)
}

func TestPackTruncatesWithRawCutWhenNoBoundary(t *testing.T) {
	items := []models.ContextItem{
		mkItem(strings.Repeat("x", 300), 0.9), // 75 tokens
	}

	packed, used := packItems(items, 60)

	require.Len(t, packed, 1)
	assert.True(t, packed[0].Truncated)
	assert.True(t, strings.HasSuffix(packed[0].Content, truncationMarker))
	assert.LessOrEqual(t, packed[0].Tokens, 60)
	assert.Equal(t, packed[0].Tokens, used)
}

func TestPackSkipsTruncationWhenCutIsBlank(t *testing.T) {
	items := []models.ContextItem{
		mkItem(strings.Repeat(" ", 250)+"end", 0.9),
	}

	packed, used := packItems(items, 60)

	assert.Empty(t, packed)
	assert.Zero(t, used)
}

func TestPackZeroBudget(t *testing.T) {
	packed, used := packItems([]models.ContextItem{mkItem("anything", 0.9)}, 0)

	assert.Empty(t, packed)
	assert.Zero(t, used)
}
