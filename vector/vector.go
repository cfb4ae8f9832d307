// Package vector stores and searches embeddings through pluggable
// backends.
package vector

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/yaoapp/duan/errs"
)

// Payload properties attached to every stored point.
const (
	contentProperty    = "content"
	documentIDProperty = "document_id"
)

// Collection is a vector collection as the backend reports it.
type Collection struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Store is a vector database holding collections of embeddings. Points
// carry the chunk content and the id of the document it came from;
// Query returns the content of the closest points.
type Store interface {
	ID() string
	ListCollections(ctx context.Context) ([]Collection, error)
	CreateCollection(ctx context.Context, name string, size int) error
	GetCollection(ctx context.Context, name string) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	CreateDefaultCollection(ctx context.Context, size int) error
	Query(ctx context.Context, vector []float64, collection string, limit int) ([]string, error)
	InsertEmbeddings(ctx context.Context, documentID uuid.UUID, collection string, content []string, vectors [][]float64) error
	DeleteEmbeddings(ctx context.Context, collection string, documentID uuid.UUID) error
	CountVectors(ctx context.Context, collection string, documentID uuid.UUID) (int, error)
}

// Registry resolves vector stores by provider id. Built once at startup.
type Registry struct {
	stores map[string]Store
}

// NewRegistry registers the given stores under their ids.
func NewRegistry(stores ...Store) *Registry {
	r := &Registry{stores: map[string]Store{}}
	for _, s := range stores {
		r.stores[s.ID()] = s
	}
	return r
}

// Get returns the store registered under id.
func (r *Registry) Get(id string) (Store, error) {
	s, ok := r.stores[id]
	if !ok {
		return nil, errs.New(errs.InvalidProvider, "unknown vector provider %q", id)
	}
	return s, nil
}

// All returns the registered stores keyed by id.
func (r *Registry) All() map[string]Store {
	out := make(map[string]Store, len(r.stores))
	for id, s := range r.stores {
		out[id] = s
	}
	return out
}

// IDs lists the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// toFloat32 narrows an embedding for backends that store f32 vectors.
func toFloat32(vector []float64) []float32 {
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(v)
	}
	return out
}
