// Package pgvector implements vectorstore.Store on PostgreSQL with the
// pgvector extension. Schema migrations are embedded in the binary and
// applied on startup.
package pgvector

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql, used by migrations

	"github.com/dpmorgan-gotribe/agentflow/pkg/vectorstore"
)

//go:embed migrations
var migrationsFS embed.FS

// Store is a vectorstore.Store over a pgvector-enabled PostgreSQL database.
// Search uses exact cosine distance; scores are 1 - distance.
type Store struct {
	pool   *pgxpool.Pool
	dims   int
	logger *slog.Logger
}

// New connects to databaseURL, applies pending migrations, and returns a
// ready store. When dims > 0 every upserted embedding must have exactly
// that many dimensions.
func New(ctx context.Context, databaseURL string, dims int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("pgvector: database url is empty")
	}

	if err := runMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}

	logger.Info("pgvector store ready", "dimensions", dims)
	return &Store{pool: pool, dims: dims, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// runMigrations applies embedded migrations over a short-lived database/sql
// connection. Only the source driver is closed explicitly; closing the
// migrate instance would also close the shared database handle.
func runMigrations(databaseURL string) error {
	db, err := stdsql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "context_points", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}

// Search returns up to limit points visible to the filter's tenant, best
// cosine score first.
func (s *Store) Search(ctx context.Context, collection string, embedding []float32, filter vectorstore.Filter, limit int, scoreThreshold float64) ([]vectorstore.SearchResult, error) {
	if filter.TenantID == "" {
		return nil, vectorstore.ErrTenantRequired
	}
	if s.dims > 0 && len(embedding) != s.dims {
		return nil, fmt.Errorf("query has %d dimensions, store expects %d: %w",
			len(embedding), s.dims, vectorstore.ErrDimensionMismatch)
	}
	if limit <= 0 {
		limit = 10
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, tenant_id, project_id, category, tags, content, source, created_at,
       1 - (embedding <=> $1::vector) AS score
  FROM context_points
 WHERE collection = $2 AND tenant_id = $3`)
	args := []any{vectorLiteral(embedding), collection, filter.TenantID}

	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		fmt.Fprintf(&sb, " AND project_id = $%d", len(args))
	}
	if len(filter.Categories) > 0 {
		args = append(args, filter.Categories)
		fmt.Fprintf(&sb, " AND category = ANY($%d)", len(args))
	}
	if len(filter.Tags) > 0 {
		args = append(args, filter.Tags)
		fmt.Fprintf(&sb, " AND tags && $%d", len(args))
	}
	if scoreThreshold > 0 {
		args = append(args, scoreThreshold)
		fmt.Fprintf(&sb, " AND 1 - (embedding <=> $1::vector) >= $%d", len(args))
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1::vector LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []vectorstore.SearchResult
	for rows.Next() {
		var (
			r         vectorstore.SearchResult
			createdAt time.Time
		)
		if err := rows.Scan(&r.ID, &r.Payload.TenantID, &r.Payload.ProjectID,
			&r.Payload.Category, &r.Payload.Tags, &r.Payload.Content,
			&r.Payload.Source, &createdAt, &r.Score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		r.Payload.CreatedAt = createdAt
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	return results, nil
}

// Upsert inserts or replaces points by (collection, id) in one batch.
func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	for _, p := range points {
		if p.Payload.TenantID == "" {
			return fmt.Errorf("point %q: %w", p.ID, vectorstore.ErrTenantRequired)
		}
		if s.dims > 0 && len(p.Embedding) != s.dims {
			return fmt.Errorf("point %q has %d dimensions, store expects %d: %w",
				p.ID, len(p.Embedding), s.dims, vectorstore.ErrDimensionMismatch)
		}
	}
	if len(points) == 0 {
		return nil
	}

	const upsertSQL = `INSERT INTO context_points
    (collection, id, tenant_id, project_id, category, tags, content, source, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector, $10)
ON CONFLICT (collection, id) DO UPDATE SET
    tenant_id = EXCLUDED.tenant_id,
    project_id = EXCLUDED.project_id,
    category = EXCLUDED.category,
    tags = EXCLUDED.tags,
    content = EXCLUDED.content,
    source = EXCLUDED.source,
    embedding = EXCLUDED.embedding,
    created_at = EXCLUDED.created_at`

	batch := &pgx.Batch{}
	for _, p := range points {
		createdAt := p.Payload.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		tags := p.Payload.Tags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(upsertSQL, collection, p.ID, p.Payload.TenantID, p.Payload.ProjectID,
			p.Payload.Category, tags, p.Payload.Content, p.Payload.Source,
			vectorLiteral(p.Embedding), createdAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pgvector upsert: %w", err)
		}
	}
	return nil
}

// Delete removes every point of the collection matching the filter.
func (s *Store) Delete(ctx context.Context, collection string, filter vectorstore.Filter) error {
	if filter.TenantID == "" {
		return vectorstore.ErrTenantRequired
	}

	var sb strings.Builder
	sb.WriteString(`DELETE FROM context_points WHERE collection = $1 AND tenant_id = $2`)
	args := []any{collection, filter.TenantID}

	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		fmt.Fprintf(&sb, " AND project_id = $%d", len(args))
	}
	if len(filter.Categories) > 0 {
		args = append(args, filter.Categories)
		fmt.Fprintf(&sb, " AND category = ANY($%d)", len(args))
	}
	if len(filter.Tags) > 0 {
		args = append(args, filter.Tags)
		fmt.Fprintf(&sb, " AND tags && $%d", len(args))
	}

	if _, err := s.pool.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("pgvector delete: %w", err)
	}
	return nil
}

// vectorLiteral renders an embedding as a pgvector input literal.
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
