// Package retrieval assembles token-bounded context bundles for agents.
// Lessons, code snippets, and prior-session history are gathered
// concurrently within per-source sub-budgets, ranked with agent-affinity
// boosts, and packed into the requesting agent's token budget. Results are
// cached per tenant with a TTL.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/vectorstore"
)

const (
	lessonScoreThreshold = 0.6
	codeScoreThreshold   = 0.5

	// gatherLimit caps raw hits per source before budget capping.
	gatherLimit = 20

	searchMaxRetries    = 2
	defaultRetryInitial = 200 * time.Millisecond
)

// ErrEmptyQuery is returned when a retrieval request carries no query text.
var ErrEmptyQuery = errors.New("retrieval: query is empty")

// Request describes one context retrieval.
type Request struct {
	Query       string
	TaskID      string
	ProjectID   string
	AgentType   models.AgentType
	TenantID    string
	TokenBudget int
	Include     Include
	Filters     Filters
}

// Include toggles candidate sources for a request. A source is used only
// when the request, the agent's budget row, and feasibility all allow it.
type Include struct {
	Lessons bool
	Code    bool
	History bool
}

func (in Include) any() bool {
	return in.Lessons || in.Code || in.History
}

func (in Include) count() int {
	n := 0
	if in.Lessons {
		n++
	}
	if in.Code {
		n++
	}
	if in.History {
		n++
	}
	return n
}

func (in Include) names() []string {
	names := make([]string, 0, 3)
	if in.Lessons {
		names = append(names, "lessons")
	}
	if in.Code {
		names = append(names, "code")
	}
	if in.History {
		names = append(names, "history")
	}
	return names
}

// Filters narrow the search space.
type Filters struct {
	Categories []string
	Tags       []string
	TimeRange  TimeRange
}

// TimeRange bounds history retrieval. Zero values leave the bound open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Bundle is a packed retrieval result.
type Bundle struct {
	Items       []models.ContextItem `json:"items"`
	TotalTokens int                  `json:"total_tokens"`
	CacheHit    bool                 `json:"cache_hit"`
	Sources     []string             `json:"sources,omitempty"`
}

func (b *Bundle) clone() *Bundle {
	out := &Bundle{TotalTokens: b.TotalTokens, CacheHit: b.CacheHit}
	if len(b.Items) > 0 {
		out.Items = make([]models.ContextItem, len(b.Items))
		copy(out.Items, b.Items)
	}
	if len(b.Sources) > 0 {
		out.Sources = make([]string, len(b.Sources))
		copy(out.Sources, b.Sources)
	}
	return out
}

func (b *Bundle) sizeBytes() int {
	size := 64
	for _, item := range b.Items {
		size += len(item.Content) + len(item.Source) + 48
	}
	return size
}

// Manager is the context retrieval service.
type Manager struct {
	cfg      *config.ContextConfig
	store    vectorstore.Store
	embedder vectorstore.EmbeddingProvider
	history  vectorstore.HistoryProvider
	cache    *Cache
	logger   *slog.Logger

	retryInitial time.Duration
}

// NewManager builds a retrieval manager. history may be nil, which disables
// the history source. clk drives cache expiry; nil means the real clock.
func NewManager(cfg *config.ContextConfig, store vectorstore.Store, embedder vectorstore.EmbeddingProvider, history vectorstore.HistoryProvider, clk clock.PassiveClock, logger *slog.Logger) *Manager {
	if cfg == nil {
		builtin := config.GetBuiltinConfig().Context
		cfg = &builtin
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache := NewCache(
		time.Duration(cfg.CacheTTLSeconds)*time.Second,
		cfg.CacheMaxEntries,
		cfg.CacheMaxBytes,
		clk,
		logger,
	)
	return &Manager{
		cfg:          cfg,
		store:        store,
		embedder:     embedder,
		history:      history,
		cache:        cache,
		logger:       logger,
		retryInitial: defaultRetryInitial,
	}
}

// Start launches the cache expiry sweep.
func (m *Manager) Start(ctx context.Context) {
	m.cache.Start(ctx)
}

// Stop halts the cache expiry sweep.
func (m *Manager) Stop() {
	m.cache.Stop()
}

// InvalidateTenant drops every cached bundle belonging to the tenant.
func (m *Manager) InvalidateTenant(tenantID string) int {
	return m.cache.InvalidateTenant(tenantID)
}

// Retrieve assembles a context bundle for the request. Identical requests
// within the cache TTL return the cached bundle with CacheHit set.
func (m *Manager) Retrieve(ctx context.Context, req Request) (*Bundle, error) {
	if req.TenantID == "" {
		return nil, vectorstore.ErrTenantRequired
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	key := cacheKey(req)
	if bundle, ok := m.cache.Get(key); ok {
		m.logger.Debug("context cache hit",
			"tenant_id", req.TenantID, "agent_type", req.AgentType)
		return bundle, nil
	}

	available := m.availableBudget(req)
	include := m.effectiveSources(req)
	if available <= 0 || !include.any() {
		bundle := &Bundle{Sources: include.names()}
		m.cache.Put(key, bundle)
		return bundle, nil
	}

	budget := m.budgetFor(req.AgentType)
	shares := renormalise(budget.Allocation, include)

	var embedding []float32
	if include.Lessons || include.Code {
		var err error
		embedding, err = m.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("retrieval: embed query: %w", err)
		}
	}

	var lessonItems, codeItems, historyItems []models.ContextItem
	g, gctx := errgroup.WithContext(ctx)
	if include.Lessons {
		sub := int(float64(available) * shares.Lessons)
		g.Go(func() error {
			items, err := m.gatherLessons(gctx, req, embedding, sub)
			if err != nil {
				return err
			}
			lessonItems = items
			return nil
		})
	}
	if include.Code {
		sub := int(float64(available) * shares.Code)
		g.Go(func() error {
			items, err := m.gatherCode(gctx, req, embedding, sub)
			if err != nil {
				return err
			}
			codeItems = items
			return nil
		})
	}
	if include.History {
		sub := int(float64(available) * shares.History)
		g.Go(func() error {
			items, err := m.gatherHistory(gctx, req, sub)
			if err != nil {
				return err
			}
			historyItems = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	union := make([]models.ContextItem, 0, len(lessonItems)+len(codeItems)+len(historyItems))
	union = append(union, lessonItems...)
	union = append(union, codeItems...)
	union = append(union, historyItems...)

	ranked := rankItems(union, req.AgentType)
	items, used := packItems(ranked, available)

	bundle := &Bundle{Items: items, TotalTokens: used, Sources: include.names()}
	m.cache.Put(key, bundle)

	m.logger.Debug("context bundle assembled",
		"tenant_id", req.TenantID,
		"agent_type", req.AgentType,
		"items", len(items),
		"tokens", used,
		"sources", bundle.Sources)
	return bundle, nil
}

// availableBudget is the agent's total budget (or the request override)
// minus the reserved system-prompt tokens.
func (m *Manager) availableBudget(req Request) int {
	total := m.budgetFor(req.AgentType).TotalTokens
	if req.TokenBudget > 0 {
		total = req.TokenBudget
	}
	reserved := m.cfg.ReservedSystemTokens
	if reserved <= 0 {
		reserved = config.DefaultReservedSystemTokens
	}
	return total - reserved
}

func (m *Manager) budgetFor(agentType models.AgentType) config.AgentBudgetConfig {
	if row, ok := m.cfg.Budgets[string(agentType)]; ok {
		return row
	}
	if row, ok := m.cfg.Budgets[config.DefaultBudgetKey]; ok {
		return row
	}
	return config.AgentBudgetConfig{
		TotalTokens: 6000,
		Sources:     config.SourceToggles{Lessons: true, Code: true, History: true},
		Allocation:  config.SourceAllocation{Lessons: 0.4, Code: 0.3, History: 0.3},
	}
}

// effectiveSources intersects the request's include flags with the agent's
// budget row. Code needs a project id; history needs a wired provider.
func (m *Manager) effectiveSources(req Request) Include {
	row := m.budgetFor(req.AgentType)
	vector := m.store != nil && m.embedder != nil
	return Include{
		Lessons: req.Include.Lessons && row.Sources.Lessons && vector,
		Code:    req.Include.Code && row.Sources.Code && req.ProjectID != "" && vector,
		History: req.Include.History && row.Sources.History && m.history != nil,
	}
}

// renormalise rescales allocation shares over the active sources so they
// sum to 1. When every active share is zero the budget is split evenly.
func renormalise(alloc config.SourceAllocation, include Include) config.SourceAllocation {
	var out config.SourceAllocation
	if include.Lessons {
		out.Lessons = alloc.Lessons
	}
	if include.Code {
		out.Code = alloc.Code
	}
	if include.History {
		out.History = alloc.History
	}
	sum := out.Lessons + out.Code + out.History
	if sum <= 0 {
		n := float64(include.count())
		if n == 0 {
			return out
		}
		if include.Lessons {
			out.Lessons = 1 / n
		}
		if include.Code {
			out.Code = 1 / n
		}
		if include.History {
			out.History = 1 / n
		}
		return out
	}
	out.Lessons /= sum
	out.Code /= sum
	out.History /= sum
	return out
}

func (m *Manager) gatherLessons(ctx context.Context, req Request, embedding []float32, budget int) ([]models.ContextItem, error) {
	if budget <= 0 {
		return nil, nil
	}
	filter := vectorstore.Filter{
		TenantID:   req.TenantID,
		Categories: req.Filters.Categories,
		Tags:       req.Filters.Tags,
	}
	results, err := m.searchWithRetry(ctx, vectorstore.CollectionLessons, embedding, filter, lessonScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("retrieval: lessons: %w", err)
	}

	items := make([]models.ContextItem, 0, len(results))
	for _, r := range results {
		items = append(items, models.ContextItem{
			Type:      models.ContextLesson,
			Content:   r.Payload.Content,
			Relevance: r.Score,
			Tokens:    models.EstimateTokens(r.Payload.Content),
			Source:    r.Payload.Source,
		})
	}
	return capToBudget(items, budget), nil
}

// gatherCode searches the project's code collection and deduplicates by
// file path, keeping the best-scoring chunk per file.
func (m *Manager) gatherCode(ctx context.Context, req Request, embedding []float32, budget int) ([]models.ContextItem, error) {
	if budget <= 0 {
		return nil, nil
	}
	filter := vectorstore.Filter{
		TenantID:  req.TenantID,
		ProjectID: req.ProjectID,
	}
	results, err := m.searchWithRetry(ctx, vectorstore.CollectionCode, embedding, filter, codeScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("retrieval: code: %w", err)
	}

	seen := make(map[string]bool, len(results))
	items := make([]models.ContextItem, 0, len(results))
	for _, r := range results {
		path := r.Payload.Source
		if path != "" {
			if seen[path] {
				continue
			}
			seen[path] = true
		}
		items = append(items, models.ContextItem{
			Type:      models.ContextCode,
			Content:   r.Payload.Content,
			Relevance: r.Score,
			Tokens:    models.EstimateTokens(r.Payload.Content),
			Source:    path,
		})
	}
	return capToBudget(items, budget), nil
}

func (m *Manager) gatherHistory(ctx context.Context, req Request, budget int) ([]models.ContextItem, error) {
	if budget <= 0 {
		return nil, nil
	}
	entries, err := m.history.Retrieve(ctx, vectorstore.HistoryQuery{
		TenantID:  req.TenantID,
		ProjectID: req.ProjectID,
		TaskID:    req.TaskID,
		AgentType: req.AgentType,
		From:      req.Filters.TimeRange.From,
		To:        req.Filters.TimeRange.To,
		Limit:     gatherLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: history: %w", err)
	}

	items := make([]models.ContextItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.ContextItem{
			Type:      models.ContextHistory,
			Content:   e.Content,
			Relevance: e.Relevance,
			Tokens:    models.EstimateTokens(e.Content),
			Source:    e.Source,
		})
	}
	return capToBudget(items, budget), nil
}

// searchWithRetry retries transient store failures with exponential
// backoff. Validation errors are permanent and surface immediately.
func (m *Manager) searchWithRetry(ctx context.Context, collection string, embedding []float32, filter vectorstore.Filter, threshold float64) ([]vectorstore.SearchResult, error) {
	var results []vectorstore.SearchResult
	op := func() error {
		r, err := m.store.Search(ctx, collection, embedding, filter, gatherLimit, threshold)
		if err != nil {
			if errors.Is(err, vectorstore.ErrTenantRequired) || errors.Is(err, vectorstore.ErrDimensionMismatch) {
				return backoff.Permanent(err)
			}
			return err
		}
		results = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.retryInitial
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, searchMaxRetries), ctx)); err != nil {
		return nil, err
	}
	return results, nil
}

// capToBudget keeps leading items while their token sum stays within budget.
func capToBudget(items []models.ContextItem, budget int) []models.ContextItem {
	var kept []models.ContextItem
	used := 0
	for _, item := range items {
		if used+item.Tokens > budget {
			break
		}
		kept = append(kept, item)
		used += item.Tokens
	}
	return kept
}

// cacheKey hashes the identity fields of a request. Keys are prefixed with
// the tenant id so tenant invalidation can sweep by prefix and keys of
// different tenants can never collide.
func cacheKey(req Request) string {
	h := fnv.New64a()
	for _, part := range []string{
		req.TenantID,
		req.Query,
		string(req.AgentType),
		includeBits(req.Include),
		req.ProjectID,
		req.TaskID,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return req.TenantID + "|" + strconv.FormatUint(h.Sum64(), 16)
}

func includeBits(in Include) string {
	bits := []byte{'-', '-', '-'}
	if in.Lessons {
		bits[0] = 'l'
	}
	if in.Code {
		bits[1] = 'c'
	}
	if in.History {
		bits[2] = 'h'
	}
	return string(bits)
}
