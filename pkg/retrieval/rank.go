package retrieval

import (
	"sort"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// affinityBoosts weight sources by how useful they are to each agent role.
// Boosts shift ranking only; the raw similarity stays on the item.
var affinityBoosts = map[models.AgentType]map[models.ContextType]float64{
	models.AgentAnalyst:        {models.ContextLesson: 0.15, models.ContextHistory: 0.05},
	models.AgentArchitect:      {models.ContextLesson: 0.10, models.ContextCode: 0.10},
	models.AgentUIDesigner:     {models.ContextLesson: 0.15},
	models.AgentProjectManager: {models.ContextHistory: 0.15},
	models.AgentReviewer:       {models.ContextCode: 0.15},
	models.AgentFrontendDev:    {models.ContextCode: 0.15},
	models.AgentBackendDev:     {models.ContextCode: 0.15},
	models.AgentTester:         {models.ContextCode: 0.15},
}

// rankItems orders items by boosted relevance, best first. Ties break on
// type then content so the order is deterministic.
func rankItems(items []models.ContextItem, agentType models.AgentType) []models.ContextItem {
	boosts := affinityBoosts[agentType]
	ranked := make([]models.ContextItem, len(items))
	copy(ranked, items)

	score := func(item models.ContextItem) float64 {
		return item.Relevance + boosts[item.Type]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si > sj
		}
		if ranked[i].Type != ranked[j].Type {
			return ranked[i].Type < ranked[j].Type
		}
		return ranked[i].Content < ranked[j].Content
	})
	return ranked
}
