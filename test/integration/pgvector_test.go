// Package integration exercises the pgvector store against a real
// PostgreSQL instance. Locally a shared testcontainer is started once per
// package; CI points the tests at an external database via
// INTEGRATION_DATABASE_URL. Tests are skipped in -short mode.
package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dpmorgan-gotribe/agentflow/pkg/vectorstore"
	"github.com/dpmorgan-gotribe/agentflow/pkg/vectorstore/pgvector"
)

const storeDims = 3

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// getConnectionString returns a connection string to the shared database.
// In CI, uses INTEGRATION_DATABASE_URL. In local dev, starts a shared
// pgvector-enabled container once per package.
func getConnectionString(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("INTEGRATION_DATABASE_URL"); url != "" {
		t.Log("Using external PostgreSQL from INTEGRATION_DATABASE_URL")
		return url
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared pgvector testcontainer")

		// The migration runs CREATE EXTENSION vector, so the image must
		// ship pgvector.
		pgContainer, err := postgres.Run(ctx,
			"pgvector/pgvector:pg17",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})

	require.NoError(t, containerErr, "failed to set up shared test container")
	return sharedConnStr
}

// newStore opens a store against the shared database. Migrations are
// idempotent, so every test can open its own store. Isolation between
// tests comes from unique tenant ids.
func newStore(t *testing.T) *pgvector.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, err := pgvector.New(ctx, getConnectionString(t), storeDims, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

// tenantID derives a unique tenant per test so tests sharing the database
// never see each other's points.
func tenantID(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("tenant-%s-%d", t.Name(), time.Now().UnixNano())
}

func point(id, tenant, project, content string, embedding []float32) vectorstore.Point {
	return vectorstore.Point{
		ID:        id,
		Embedding: embedding,
		Payload: vectorstore.Payload{
			TenantID:  tenant,
			ProjectID: project,
			Content:   content,
		},
	}
}

func TestUpsertAndSearch(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tenant := tenantID(t)

	err := store.Upsert(ctx, vectorstore.CollectionLessons, []vectorstore.Point{
		point("p1", tenant, "", "exact match", []float32{1, 0, 0}),
		point("p2", tenant, "", "orthogonal", []float32{0, 1, 0}),
		point("p3", tenant, "", "close match", []float32{0.9, 0.1, 0}),
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, vectorstore.CollectionLessons,
		[]float32{1, 0, 0}, vectorstore.Filter{TenantID: tenant}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Best cosine score first.
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, "p3", results[1].ID)
	assert.Equal(t, "p2", results[2].ID)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
	assert.Greater(t, results[1].Score, results[2].Score)
	assert.Equal(t, "exact match", results[0].Payload.Content)
}

func TestSearchScoreThreshold(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tenant := tenantID(t)

	err := store.Upsert(ctx, vectorstore.CollectionLessons, []vectorstore.Point{
		point("near", tenant, "", "near", []float32{1, 0, 0}),
		point("far", tenant, "", "far", []float32{0, 1, 0}),
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, vectorstore.CollectionLessons,
		[]float32{1, 0, 0}, vectorstore.Filter{TenantID: tenant}, 10, 0.6)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].ID)
}

func TestTenantIsolation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tenantA := tenantID(t) + "-a"
	tenantB := tenantID(t) + "-b"

	err := store.Upsert(ctx, vectorstore.CollectionCode, []vectorstore.Point{
		point("a1", tenantA, "proj", "tenant a code", []float32{1, 0, 0}),
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, vectorstore.CollectionCode,
		[]float32{1, 0, 0}, vectorstore.Filter{TenantID: tenantB}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results, "tenant b must not see tenant a's points")

	results, err = store.Search(ctx, vectorstore.CollectionCode,
		[]float32{1, 0, 0}, vectorstore.Filter{TenantID: tenantA}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchFilters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tenant := tenantID(t)

	points := []vectorstore.Point{
		point("f1", tenant, "proj-1", "project one", []float32{1, 0, 0}),
		point("f2", tenant, "proj-2", "project two", []float32{1, 0, 0}),
	}
	points[0].Payload.Category = "security"
	points[0].Payload.Tags = []string{"auth", "jwt"}
	points[1].Payload.Category = "testing"
	points[1].Payload.Tags = []string{"mocks"}
	require.NoError(t, store.Upsert(ctx, vectorstore.CollectionLessons, points))

	results, err := store.Search(ctx, vectorstore.CollectionLessons,
		[]float32{1, 0, 0}, vectorstore.Filter{TenantID: tenant, ProjectID: "proj-1"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "f1", results[0].ID)

	results, err = store.Search(ctx, vectorstore.CollectionLessons,
		[]float32{1, 0, 0}, vectorstore.Filter{TenantID: tenant, Categories: []string{"testing"}}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "f2", results[0].ID)

	// Tags match on any overlap.
	results, err = store.Search(ctx, vectorstore.CollectionLessons,
		[]float32{1, 0, 0}, vectorstore.Filter{TenantID: tenant, Tags: []string{"jwt", "unused"}}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "f1", results[0].ID)
}

func TestUpsertReplacesByID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tenant := tenantID(t)

	require.NoError(t, store.Upsert(ctx, vectorstore.CollectionLessons, []vectorstore.Point{
		point("r1", tenant, "", "first version", []float32{1, 0, 0}),
	}))
	require.NoError(t, store.Upsert(ctx, vectorstore.CollectionLessons, []vectorstore.Point{
		point("r1", tenant, "", "second version", []float32{0, 1, 0}),
	}))

	results, err := store.Search(ctx, vectorstore.CollectionLessons,
		[]float32{0, 1, 0}, vectorstore.Filter{TenantID: tenant}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second version", results[0].Payload.Content)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
}

func TestDeleteByFilter(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tenant := tenantID(t)

	require.NoError(t, store.Upsert(ctx, vectorstore.CollectionCode, []vectorstore.Point{
		point("d1", tenant, "proj-1", "keep", []float32{1, 0, 0}),
		point("d2", tenant, "proj-2", "remove", []float32{0, 1, 0}),
	}))

	require.NoError(t, store.Delete(ctx, vectorstore.CollectionCode,
		vectorstore.Filter{TenantID: tenant, ProjectID: "proj-2"}))

	results, err := store.Search(ctx, vectorstore.CollectionCode,
		[]float32{1, 0, 0}, vectorstore.Filter{TenantID: tenant}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)

	// Delete without a tenant is rejected outright.
	err = store.Delete(ctx, vectorstore.CollectionCode, vectorstore.Filter{ProjectID: "proj-1"})
	require.ErrorIs(t, err, vectorstore.ErrTenantRequired)
}
