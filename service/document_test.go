package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaoapp/duan/cache"
	"github.com/yaoapp/duan/chunk"
	"github.com/yaoapp/duan/docstore"
	"github.com/yaoapp/duan/embed"
	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
	"github.com/yaoapp/duan/parse"
	"github.com/yaoapp/duan/repo"
	"github.com/yaoapp/duan/vector"
)

// fakeEmbedder produces deterministic vectors from character sums so
// tests run without a provider. It serves a 3-dimensional model and a
// 5-dimensional one whose vectors it never actually produces.
type fakeEmbedder struct {
	calls int
	fail  bool
}

func (f *fakeEmbedder) ID() string { return "fake" }

func (f *fakeEmbedder) DefaultModel() embed.Model {
	return embed.Model{Name: "fake-small", Size: 3}
}

func (f *fakeEmbedder) ListModels(ctx context.Context) ([]embed.Model, error) {
	return []embed.Model{{Name: "fake-small", Size: 3}, {Name: "fake-large", Size: 5}}, nil
}

func (f *fakeEmbedder) Embed(ctx context.Context, content []string, model string) ([][]float64, error) {
	if f.fail {
		return nil, errs.New(errs.Embedding, "fake embedder is down")
	}
	f.calls++
	out := make([][]float64, len(content))
	for i, text := range content {
		v := []float64{1, 1, 1}
		for j, r := range text {
			v[j%3] += float64(r % 13)
		}
		out[i] = v
	}
	return out, nil
}

type testEnv struct {
	repo     *repo.Repo
	docs     *DocumentService
	vectors  *VectorService
	store    *docstore.FS
	chromem  *vector.Chromem
	embedder *fakeEmbedder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	r, err := repo.Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	fs, err := docstore.NewFS(t.TempDir())
	require.NoError(t, err)

	chromemStore, err := vector.NewChromem("")
	require.NoError(t, err)

	embedder := &fakeEmbedder{}
	embedders := embed.NewRegistry(embedder)
	stores := vector.NewRegistry(chromemStore)

	docs := NewDocumentService(r, docstore.NewRegistry(fs), embedders, stores)

	lru, err := cache.NewLRU(64)
	require.NoError(t, err)
	vectors := NewVectorService(r, docs, embedders, stores, lru)

	return &testEnv{repo: r, docs: docs, vectors: vectors, store: fs, chromem: chromemStore, embedder: embedder}
}

func uploadTestFile(t *testing.T, env *testEnv, name, content string) *model.DocumentWithConfig {
	t.Helper()
	doc, err := env.docs.Upload(context.Background(), Upload{Name: name, Content: []byte(content), Src: "fs"})
	require.NoError(t, err)
	return doc
}

func createTestCollection(t *testing.T, env *testEnv, name string) *model.Collection {
	t.Helper()
	collection, err := env.vectors.CreateCollection(context.Background(), CollectionCreate{
		Name:     name,
		Model:    "fake-small",
		Embedder: "fake",
		Provider: "chromem",
	})
	require.NoError(t, err)
	return collection
}

func TestUploadAndGetContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "hello.txt", "Hello world")
	assert.Equal(t, "hello.txt", doc.Name)
	assert.Equal(t, "txt", doc.Ext)
	assert.Equal(t, "fs", doc.Src)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte("Hello world"))), doc.Hash)
	require.NotNil(t, doc.ChunkConfig)
	assert.NotNil(t, doc.ChunkConfig.Snapping)
	require.NotNil(t, doc.ParseConfig)

	content, err := env.docs.GetContent(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", content)

	got, err := env.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	files, err := env.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, doc.Path, files[0].Path)
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		kind errs.Kind
	}{
		{"", errs.InvalidFileName},
		{"noextension", errs.InvalidFileName},
		{".txt", errs.InvalidFileName},
		{"dir/escape.txt", errs.InvalidFileName},
		{`dir\escape.txt`, errs.InvalidFileName},
		{"data.xyz", errs.UnsupportedFileType},
	}
	for _, c := range cases {
		_, err := env.docs.Upload(ctx, Upload{Name: c.name, Content: []byte("content"), Src: "fs"})
		assert.True(t, errs.Is(err, c.kind), "%q: got %v", c.name, err)
	}

	// A text payload claiming to be a pdf fails the probe.
	_, err := env.docs.Upload(ctx, Upload{Name: "fake.pdf", Content: []byte("not a pdf"), Src: "fs"})
	assert.True(t, errs.Is(err, errs.UnsupportedFileType))

	_, err = env.docs.Upload(ctx, Upload{Name: "hello.txt", Content: []byte("hi"), Src: "nope"})
	assert.True(t, errs.Is(err, errs.InvalidProvider))
}

func TestUploadDuplicateHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := uploadTestFile(t, env, "hello.txt", "Hello world")

	_, err := env.docs.Upload(ctx, Upload{Name: "other.txt", Content: []byte("Hello world"), Src: "fs"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.AlreadyExists))
	assert.Contains(t, err.Error(), "hello.txt")

	forced, err := env.docs.Upload(ctx, Upload{Name: "other.txt", Content: []byte("Hello world"), Src: "fs", Force: true})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, forced.ID)

	list, err := env.docs.List(ctx, model.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
}

func TestGetChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "story.txt", "First sentence. Second sentence. Third sentence.")

	chunks, err := env.docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0], "First sentence")

	_, err = env.docs.GetChunks(ctx, uuid.New())
	assert.True(t, errs.Is(err, errs.DoesNotExist))
}

func TestPreviewLeavesConfigAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "log.txt", "keep this line\nDEBUG drop this\nkeep this too")

	content, err := env.docs.PreviewParse(ctx, doc.ID, parse.Config{Filters: []string{"^DEBUG"}})
	require.NoError(t, err)
	assert.NotContains(t, content, "drop this")
	assert.Contains(t, content, "keep this line")

	chunks, err := env.docs.PreviewChunk(ctx, doc.ID, ChunkPreview{
		Chunker: chunk.Config{Sliding: &chunk.SlidingConfig{Size: 10, Overlap: 2}},
		Parser:  &parse.Config{Filters: []string{"^DEBUG"}},
	})
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)

	// Previews never persist anything.
	got, err := env.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ChunkConfig)
	assert.NotNil(t, got.ChunkConfig.Snapping)
}

func TestUpdateConfigs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "doc.txt", "Some document. With sentences.")

	_, err := env.docs.UpdateParseConfig(ctx, doc.ID, parse.Config{Filters: []string{"(unclosed"}})
	assert.True(t, errs.Is(err, errs.Regex))

	_, err = env.docs.UpdateParseConfig(ctx, doc.ID, parse.Config{Filters: []string{"^#"}})
	require.NoError(t, err)

	_, err = env.docs.UpdateChunkConfig(ctx, doc.ID, chunk.Config{})
	assert.True(t, errs.Is(err, errs.Validation))

	semantic := chunk.DefaultSemantic("nope", "fake-small")
	_, err = env.docs.UpdateChunkConfig(ctx, doc.ID, semantic)
	assert.True(t, errs.Is(err, errs.InvalidProvider))

	semantic = chunk.DefaultSemantic("fake", "missing-model")
	_, err = env.docs.UpdateChunkConfig(ctx, doc.ID, semantic)
	assert.True(t, errs.Is(err, errs.InvalidEmbeddingModel))

	sliding := chunk.Config{Sliding: &chunk.SlidingConfig{Size: 500, Overlap: 50}}
	_, err = env.docs.UpdateChunkConfig(ctx, doc.ID, sliding)
	require.NoError(t, err)

	got, err := env.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ChunkConfig)
	require.NotNil(t, got.ChunkConfig.Sliding)
	assert.Equal(t, 500, got.ChunkConfig.Sliding.Size)

	_, err = env.docs.UpdateChunkConfig(ctx, uuid.New(), sliding)
	assert.True(t, errs.Is(err, errs.DoesNotExist))
}

func TestDeleteDocumentCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "hello.txt", "Hello world")
	collection := createTestCollection(t, env, "test_collection")

	_, err := env.vectors.Embed(ctx, doc.ID, collection.ID)
	require.NoError(t, err)

	count, err := env.vectors.CountEmbeddings(ctx, doc.ID, collection.ID)
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	require.NoError(t, env.docs.Delete(ctx, doc.ID))

	_, err = env.docs.Get(ctx, doc.ID)
	assert.True(t, errs.Is(err, errs.DoesNotExist))

	files, err := env.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)

	count, err = env.chromem.CountVectors(ctx, collection.Name, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	embeddings, err := env.vectors.ListEmbeddings(ctx, model.Pagination{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, embeddings.Total)

	err = env.docs.Delete(ctx, doc.ID)
	assert.True(t, errs.Is(err, errs.DoesNotExist))
}

func TestSync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "hello.txt", "Hello world")

	require.NoError(t, os.WriteFile(filepath.Join(env.store.Root(), "new.txt"), []byte("fresh content"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.store.Root(), "skip.xyz"), []byte("binary"), 0644))
	require.NoError(t, os.Remove(doc.Path))

	report, err := env.docs.Sync(ctx, "fs")
	require.NoError(t, err)
	assert.Equal(t, []string{"new.txt"}, report.Added)
	assert.Equal(t, []string{"hello.txt"}, report.Removed)

	list, err := env.docs.List(ctx, model.Pagination{})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "new.txt", list.Items[0].Name)

	content, err := env.docs.GetContent(ctx, list.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh content", content)

	// A second pass changes nothing.
	report, err = env.docs.Sync(ctx, "fs")
	require.NoError(t, err)
	assert.Empty(t, report.Added)
	assert.Empty(t, report.Removed)
}

func TestUpdateDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "hello.txt", "Hello world")

	blank := ""
	_, err := env.docs.Update(ctx, doc.ID, model.DocumentUpdate{Name: &blank})
	assert.True(t, errs.Is(err, errs.Validation))

	name, label := "renamed.txt", "notes"
	updated, err := env.docs.Update(ctx, doc.ID, model.DocumentUpdate{
		Name:  &name,
		Label: &label,
		Tags:  model.Tags{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed.txt", updated.Name)
	require.NotNil(t, updated.Label)
	assert.Equal(t, "notes", *updated.Label)
	assert.Equal(t, model.Tags{"a", "b"}, updated.Tags)

	_, err = env.docs.Update(ctx, uuid.New(), model.DocumentUpdate{Name: &name})
	assert.True(t, errs.Is(err, errs.DoesNotExist))
}

func TestListInCollection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "hello.txt", "Hello world")
	collection := createTestCollection(t, env, "test_collection")

	_, err := env.vectors.Embed(ctx, doc.ID, collection.ID)
	require.NoError(t, err)

	docs, err := env.docs.ListInCollection(ctx, collection.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.Equal(t, "hello.txt", docs[0].Name)

	_, err = env.docs.ListInCollection(ctx, uuid.New())
	assert.True(t, errs.Is(err, errs.DoesNotExist))
}
