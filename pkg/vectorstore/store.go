// Package vectorstore defines the similarity-search contracts used by
// context retrieval, plus an in-memory implementation. Every operation is
// tenant-scoped: calls without a tenant fail before touching any data.
package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// Collection names used by the retrieval manager.
const (
	CollectionLessons = "lessons"
	CollectionCode    = "code_snippets"
)

var (
	// ErrTenantRequired is returned when a filter or point carries no
	// tenant id.
	ErrTenantRequired = errors.New("vectorstore: tenant id required")

	// ErrDimensionMismatch is returned when an embedding's length does not
	// match the store's configured dimensions.
	ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")
)

// Payload is the document stored alongside an embedding.
type Payload struct {
	TenantID  string    `json:"tenant_id"`
	ProjectID string    `json:"project_id,omitempty"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	Category  string    `json:"category,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Point is one embedded document.
type Point struct {
	ID        string
	Embedding []float32
	Payload   Payload
}

// Filter narrows a search or delete. TenantID is mandatory; the remaining
// fields apply only when set (Tags matches on any overlap).
type Filter struct {
	TenantID   string
	ProjectID  string
	Categories []string
	Tags       []string
}

// SearchResult is one similarity hit, scored in [0, 1].
type SearchResult struct {
	ID      string
	Score   float64
	Payload Payload
}

// Store is the similarity-search contract. Implementations must reject
// calls whose filter or points lack a tenant id.
type Store interface {
	Search(ctx context.Context, collection string, embedding []float32, filter Filter, limit int, scoreThreshold float64) ([]SearchResult, error)
	Upsert(ctx context.Context, collection string, points []Point) error
	Delete(ctx context.Context, collection string, filter Filter) error
}

// HistoryQuery selects prior-session context for a tenant.
type HistoryQuery struct {
	TenantID  string
	ProjectID string
	TaskID    string
	AgentType models.AgentType
	From      time.Time
	To        time.Time
	Limit     int
}

// HistoryItem is one entry of prior-session context.
type HistoryItem struct {
	Content   string
	Source    string
	Timestamp time.Time
	Relevance float64
}

// HistoryProvider supplies prior-session context. Optional: retrieval skips
// the history source when no provider is wired.
type HistoryProvider interface {
	Retrieve(ctx context.Context, q HistoryQuery) ([]HistoryItem, error)
}
