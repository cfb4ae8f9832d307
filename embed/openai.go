package embed

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
)

// OpenAI model names and their vector sizes.
const (
	TextEmbedding3Large  = "text-embedding-3-large"
	TextEmbedding3Small  = "text-embedding-3-small"
	TextEmbeddingAda002  = "text-embedding-ada-002"
	textEmbeddingAdaSize = 1536
)

var openaiModels = []Model{
	{Name: TextEmbedding3Large, Size: 3072},
	{Name: TextEmbedding3Small, Size: 1536},
	{Name: TextEmbeddingAda002, Size: textEmbeddingAdaSize},
}

// OpenAI embeds through the OpenAI embeddings API.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI returns an embedder authenticated with the API key.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{client: openai.NewClient(apiKey)}
}

// ID implements Embedder.
func (o *OpenAI) ID() string {
	return "openai"
}

// DefaultModel implements Embedder.
func (o *OpenAI) DefaultModel() Model {
	return Model{Name: TextEmbeddingAda002, Size: textEmbeddingAdaSize}
}

// ListModels returns the supported embedding models. The set is fixed,
// the API has no listing endpoint for embeddings.
func (o *OpenAI) ListModels(ctx context.Context) ([]Model, error) {
	models := make([]Model, len(openaiModels))
	copy(models, openaiModels)
	return models, nil
}

// Embed implements Embedder.
func (o *OpenAI) Embed(ctx context.Context, content []string, model string) ([][]float64, error) {
	if _, err := ModelSize(ctx, o, model); err != nil {
		return nil, err
	}

	res, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: content,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Embedding, err)
	}
	if len(res.Data) != len(content) {
		return nil, errs.New(errs.Embedding, "openai returned %d embeddings for %d inputs", len(res.Data), len(content))
	}

	log.Debug("Embedded %d chunk(s) with %s, used tokens %d-%d (prompt-total)",
		len(content), res.Model, res.Usage.PromptTokens, res.Usage.TotalTokens)

	embeddings := make([][]float64, len(res.Data))
	for _, item := range res.Data {
		vector := make([]float64, len(item.Embedding))
		for i, v := range item.Embedding {
			vector[i] = float64(v)
		}
		embeddings[item.Index] = vector
	}
	return embeddings, nil
}
