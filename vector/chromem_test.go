package vector

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
)

func newTestStore(t *testing.T) *Chromem {
	t.Helper()
	store, err := NewChromem("")
	require.NoError(t, err)
	return store
}

func TestChromemCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.CreateCollection(ctx, "test_collection", 3)
	require.NoError(t, err)

	collection, err := store.GetCollection(ctx, "test_collection")
	require.NoError(t, err)
	assert.Equal(t, "test_collection", collection.Name)
	assert.Equal(t, 3, collection.Size)

	err = store.CreateCollection(ctx, "test_collection", 3)
	assert.True(t, errs.Is(err, errs.AlreadyExists))

	collections, err := store.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, "test_collection", collections[0].Name)

	err = store.DeleteCollection(ctx, "test_collection")
	require.NoError(t, err)

	_, err = store.GetCollection(ctx, "test_collection")
	assert.True(t, errs.Is(err, errs.DoesNotExist))

	err = store.DeleteCollection(ctx, "test_collection")
	assert.True(t, errs.Is(err, errs.DoesNotExist))
}

func TestChromemDefaultCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateDefaultCollection(ctx, model.DefaultCollectionSize))
	require.NoError(t, store.CreateDefaultCollection(ctx, model.DefaultCollectionSize))

	collection, err := store.GetCollection(ctx, model.DefaultCollectionName)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCollectionSize, collection.Size)
}

func TestChromemInsertAndQuery(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CreateCollection(ctx, "search", 3))

	documentID := uuid.New()
	content := []string{"alpha", "beta", "gamma"}
	vectors := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	require.NoError(t, store.InsertEmbeddings(ctx, documentID, "search", content, vectors))

	results, err := store.Query(ctx, []float64{0.9, 0.1, 0}, "search", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0])

	// Limits above the stored count are clamped.
	results, err = store.Query(ctx, []float64{0, 1, 0}, "search", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "beta", results[0])
}

func TestChromemQueryEmptyCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CreateCollection(ctx, "empty", 3))

	results, err := store.Query(ctx, []float64{1, 0, 0}, "empty", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = store.Query(ctx, []float64{1, 0, 0}, "missing", 5)
	assert.True(t, errs.Is(err, errs.DoesNotExist))
}

func TestChromemInsertLengthMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CreateCollection(ctx, "mismatch", 3))

	err := store.InsertEmbeddings(ctx, uuid.New(), "mismatch", []string{"a", "b"}, [][]float64{{1, 0, 0}})
	assert.True(t, errs.Is(err, errs.Embedding))
}

func TestChromemDeleteEmbeddings(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CreateCollection(ctx, "docs", 2))

	first := uuid.New()
	second := uuid.New()
	require.NoError(t, store.InsertEmbeddings(ctx, first, "docs", []string{"one", "two"}, [][]float64{{1, 0}, {0, 1}}))
	require.NoError(t, store.InsertEmbeddings(ctx, second, "docs", []string{"three"}, [][]float64{{1, 1}}))

	count, err := store.CountVectors(ctx, "docs", first)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.DeleteEmbeddings(ctx, "docs", first))

	count, err = store.CountVectors(ctx, "docs", first)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = store.CountVectors(ctx, "docs", second)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := store.Query(ctx, []float64{1, 1}, "docs", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"three"}, results)
}

func TestChromemCountAccumulates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CreateCollection(ctx, "acc", 2))

	documentID := uuid.New()
	require.NoError(t, store.InsertEmbeddings(ctx, documentID, "acc", []string{"one"}, [][]float64{{1, 0}}))
	require.NoError(t, store.InsertEmbeddings(ctx, documentID, "acc", []string{"two"}, [][]float64{{0, 1}}))

	count, err := store.CountVectors(ctx, "acc", documentID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRegistry(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)

	got, err := registry.Get("chromem")
	require.NoError(t, err)
	assert.Equal(t, "chromem", got.ID())

	_, err = registry.Get("qdrant")
	assert.True(t, errs.Is(err, errs.InvalidProvider))

	assert.Equal(t, []string{"chromem"}, registry.IDs())
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "My_collection", className("my_collection"))
	assert.Equal(t, "Already_upper", className("Already_upper"))
	assert.Equal(t, "", className(""))
}
