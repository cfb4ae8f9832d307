// Package embed turns text into vectors through pluggable providers.
package embed

import (
	"context"
	"sort"

	"github.com/yaoapp/duan/errs"
)

// Model is an embedding model offered by a provider, with the size of
// the vectors it produces.
type Model struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Embedder produces embeddings for batches of text. Embed returns one
// vector per input, in input order.
type Embedder interface {
	ID() string
	DefaultModel() Model
	ListModels(ctx context.Context) ([]Model, error)
	Embed(ctx context.Context, content []string, model string) ([][]float64, error)
}

// ModelSize resolves the vector size of model through ListModels.
func ModelSize(ctx context.Context, e Embedder, model string) (int, error) {
	models, err := e.ListModels(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range models {
		if m.Name == model {
			return m.Size, nil
		}
	}
	return 0, errs.New(errs.InvalidEmbeddingModel, "model %q is not supported by provider %q", model, e.ID())
}

// Registry resolves embedders by provider id. Built once at startup.
type Registry struct {
	embedders map[string]Embedder
}

// NewRegistry registers the given embedders under their ids.
func NewRegistry(embedders ...Embedder) *Registry {
	r := &Registry{embedders: map[string]Embedder{}}
	for _, e := range embedders {
		r.embedders[e.ID()] = e
	}
	return r
}

// Get returns the embedder registered under id.
func (r *Registry) Get(id string) (Embedder, error) {
	e, ok := r.embedders[id]
	if !ok {
		return nil, errs.New(errs.InvalidProvider, "unknown embedding provider %q", id)
	}
	return e, nil
}

// IDs lists the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.embedders))
	for id := range r.embedders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
