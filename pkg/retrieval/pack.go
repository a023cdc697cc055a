package retrieval

import (
	"strings"
	"unicode/utf8"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

const (
	// truncationMinTokens is the smallest leftover budget worth filling
	// with a truncated item.
	truncationMinTokens = 50

	truncationMarker = "\n[truncated]"
)

// packItems takes ranked items in order while their token sum fits the
// budget. When the next item overflows and at least truncationMinTokens
// remain, a truncated variant is emitted; packing stops either way.
func packItems(items []models.ContextItem, budget int) ([]models.ContextItem, int) {
	var packed []models.ContextItem
	used := 0
	for _, item := range items {
		remaining := budget - used
		if remaining <= 0 {
			break
		}
		if item.Tokens <= remaining {
			packed = append(packed, item)
			used += item.Tokens
			continue
		}
		if remaining >= truncationMinTokens {
			if cut, ok := truncateItem(item, remaining); ok {
				packed = append(packed, cut)
				used += cut.Tokens
			}
		}
		break
	}
	return packed, used
}

// truncateItem cuts the item's content at the last newline or period before
// the budget cutoff and appends the truncation marker. Falls back to a raw
// cut when no sentence boundary exists in range.
func truncateItem(item models.ContextItem, remaining int) (models.ContextItem, bool) {
	maxChars := remaining*4 - len(truncationMarker)
	if maxChars <= 0 || maxChars >= len(item.Content) {
		return models.ContextItem{}, false
	}

	cutAt := maxChars
	for cutAt > 0 && !utf8.RuneStart(item.Content[cutAt]) {
		cutAt--
	}
	cut := item.Content[:cutAt]
	if idx := strings.LastIndexAny(cut, "\n."); idx > 0 {
		cut = cut[:idx+1]
	}
	if strings.TrimSpace(cut) == "" {
		return models.ContextItem{}, false
	}

	item.Content = cut + truncationMarker
	item.Tokens = models.EstimateTokens(item.Content)
	item.Truncated = true
	return item, true
}
