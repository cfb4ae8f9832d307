package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
)

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Xenova/bge-base-en-v1.5": 768, "Qdrant/all-MiniLM-L6-v2-onnx": 384}`))
	})

	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		var req fastembedRequest
		require.NoError(t, jsoniter.NewDecoder(r.Body).Decode(&req))
		if req.Model == "broken" {
			http.Error(w, `"model not supported"`, http.StatusInternalServerError)
			return
		}

		embeddings := make([][]float64, len(req.Content))
		for i := range req.Content {
			embeddings[i] = []float64{float64(i), float64(len(req.Content[i]))}
		}
		w.Header().Set("Content-Type", "application/json")
		jsoniter.NewEncoder(w).Encode(fastembedResponse{Embeddings: embeddings})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFastembedListModels(t *testing.T) {
	server := newFakeServer(t)
	embedder := NewFastembed(server.URL)

	models, err := embedder.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	// Sorted by name.
	assert.Equal(t, Model{Name: "Qdrant/all-MiniLM-L6-v2-onnx", Size: 384}, models[0])
	assert.Equal(t, Model{Name: "Xenova/bge-base-en-v1.5", Size: 768}, models[1])

	size, err := ModelSize(context.Background(), embedder, "Xenova/bge-base-en-v1.5")
	require.NoError(t, err)
	assert.Equal(t, 768, size)

	_, err = ModelSize(context.Background(), embedder, "nope")
	require.Error(t, err)
	assert.Equal(t, errs.InvalidEmbeddingModel, errs.KindOf(err))
}

func TestFastembedEmbed(t *testing.T) {
	server := newFakeServer(t)
	embedder := NewFastembed(server.URL)

	embeddings, err := embedder.Embed(context.Background(), []string{"first", "second!"}, model.DefaultCollectionModel)
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float64{0, 5}, embeddings[0])
	assert.Equal(t, []float64{1, 7}, embeddings[1])
}

func TestFastembedEmbedServerError(t *testing.T) {
	server := newFakeServer(t)
	embedder := NewFastembed(server.URL)

	_, err := embedder.Embed(context.Background(), []string{"text"}, "broken")
	require.Error(t, err)
	assert.Equal(t, errs.Embedding, errs.KindOf(err))
}

func TestFastembedUnreachable(t *testing.T) {
	embedder := NewFastembed("http://127.0.0.1:1")

	_, err := embedder.Embed(context.Background(), []string{"text"}, model.DefaultCollectionModel)
	require.Error(t, err)
	assert.Equal(t, errs.Http, errs.KindOf(err))
}

func TestRegistry(t *testing.T) {
	server := newFakeServer(t)
	fembed := NewFastembed(server.URL)
	registry := NewRegistry(fembed, NewOpenAI("sk-test"))

	assert.Equal(t, []string{"fembed", "openai"}, registry.IDs())

	got, err := registry.Get("fembed")
	require.NoError(t, err)
	assert.Equal(t, "fembed", got.ID())

	_, err = registry.Get("cohere")
	require.Error(t, err)
	assert.Equal(t, errs.InvalidProvider, errs.KindOf(err))
}

func TestOpenAIModels(t *testing.T) {
	embedder := NewOpenAI("sk-test")

	models, err := embedder.ListModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 3)

	size, err := ModelSize(context.Background(), embedder, TextEmbedding3Large)
	require.NoError(t, err)
	assert.Equal(t, 3072, size)

	assert.Equal(t, TextEmbeddingAda002, embedder.DefaultModel().Name)

	_, err = embedder.Embed(context.Background(), []string{"x"}, "gpt-4")
	require.Error(t, err)
	assert.Equal(t, errs.InvalidEmbeddingModel, errs.KindOf(err))
}
