package pgvector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/vectorstore"
)

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[]", vectorLiteral(nil))
	assert.Equal(t, "[1]", vectorLiteral([]float32{1}))
	assert.Equal(t, "[1,0,0.5]", vectorLiteral([]float32{1, 0, 0.5}))
	assert.Equal(t, "[-0.25,2,-3]", vectorLiteral([]float32{-0.25, 2, -3}))
}

func TestSearchRequiresTenant(t *testing.T) {
	store := &Store{dims: 3}

	_, err := store.Search(context.Background(), vectorstore.CollectionLessons,
		[]float32{1, 0, 0}, vectorstore.Filter{}, 10, 0)
	require.ErrorIs(t, err, vectorstore.ErrTenantRequired)
}

func TestSearchRejectsWrongDimensions(t *testing.T) {
	store := &Store{dims: 3}

	_, err := store.Search(context.Background(), vectorstore.CollectionLessons,
		[]float32{1, 0}, vectorstore.Filter{TenantID: "tenant-a"}, 10, 0)
	require.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestUpsertValidatesBeforeWriting(t *testing.T) {
	store := &Store{dims: 3}

	err := store.Upsert(context.Background(), vectorstore.CollectionLessons, []vectorstore.Point{
		{ID: "p1", Embedding: []float32{1, 0, 0}, Payload: vectorstore.Payload{TenantID: ""}},
	})
	require.ErrorIs(t, err, vectorstore.ErrTenantRequired)

	err = store.Upsert(context.Background(), vectorstore.CollectionLessons, []vectorstore.Point{
		{ID: "p2", Embedding: []float32{1, 0}, Payload: vectorstore.Payload{TenantID: "tenant-a"}},
	})
	require.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "p2")
}

func TestUpsertEmptyBatchIsNoop(t *testing.T) {
	store := &Store{dims: 3}

	require.NoError(t, store.Upsert(context.Background(), vectorstore.CollectionLessons, nil))
}

func TestDeleteRequiresTenant(t *testing.T) {
	store := &Store{dims: 3}

	err := store.Delete(context.Background(), vectorstore.CollectionLessons, vectorstore.Filter{})
	require.ErrorIs(t, err, vectorstore.ErrTenantRequired)
}
