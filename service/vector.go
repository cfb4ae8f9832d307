package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/cache"
	"github.com/yaoapp/duan/embed"
	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
	"github.com/yaoapp/duan/repo"
	"github.com/yaoapp/duan/vector"
)

// VectorService drives collections, embeddings and semantic search
// across the registered vector stores. Query embeddings are cached by
// content hash so repeated searches skip the embedding provider.
type VectorService struct {
	repo      *repo.Repo
	docs      *DocumentService
	embedders *embed.Registry
	stores    *vector.Registry
	cache     cache.Cache
}

// NewVectorService wires the repo, the document service and the
// provider registries.
func NewVectorService(r *repo.Repo, docs *DocumentService, embedders *embed.Registry, stores *vector.Registry, c cache.Cache) *VectorService {
	return &VectorService{repo: r, docs: docs, embedders: embedders, stores: stores, cache: c}
}

var collectionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CollectionCreate carries the fields of a new collection.
type CollectionCreate struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Embedder string `json:"embedder"`
	Provider string `json:"provider"`
}

func (c CollectionCreate) validate() error {
	if !collectionName.MatchString(c.Name) {
		return errs.New(errs.Validation, "collection name must match %s", collectionName)
	}
	if c.Model == "" {
		return errs.New(errs.Validation, "model is required")
	}
	if c.Embedder == "" {
		return errs.New(errs.Validation, "embedder is required")
	}
	if c.Provider == "" {
		return errs.New(errs.Validation, "provider is required")
	}
	return nil
}

// CreateCollection creates a collection row and the backing store
// collection sized for the embedding model. The row is rolled back if
// the store refuses.
func (s *VectorService) CreateCollection(ctx context.Context, create CollectionCreate) (*model.Collection, error) {
	if err := create.validate(); err != nil {
		return nil, err
	}
	vs, err := s.stores.Get(create.Provider)
	if err != nil {
		return nil, err
	}
	embedder, err := s.embedders.Get(create.Embedder)
	if err != nil {
		return nil, err
	}
	size, err := embed.ModelSize(ctx, embedder, create.Model)
	if err != nil {
		return nil, err
	}

	name := vector.NormalizeName(create.Provider, create.Name)

	var collection *model.Collection
	err = s.repo.Atomic(ctx, func(tx *repo.Tx) error {
		collection, err = s.repo.InsertCollection(ctx, tx, model.NewCollectionInsert(name, create.Model, create.Embedder, create.Provider))
		if err != nil {
			return err
		}
		return vs.CreateCollection(ctx, name, size)
	})
	if err != nil {
		return nil, err
	}

	log.Info("Created collection %s on %s (%s/%s, size %d)", name, create.Provider, create.Embedder, create.Model, size)
	return collection, nil
}

// CreateDefault ensures the default collection exists on the given
// provider. Safe to call on every startup.
func (s *VectorService) CreateDefault(ctx context.Context, provider string) error {
	vs, err := s.stores.Get(provider)
	if err != nil {
		return err
	}
	if err := vs.CreateDefaultCollection(ctx, model.DefaultCollectionSize); err != nil && !errs.Is(err, errs.AlreadyExists) {
		return err
	}

	existing, err := s.repo.GetCollectionByName(ctx, nil, model.DefaultCollectionName, provider)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	ins := model.CollectionInsert{
		ID:       uuid.Nil,
		Name:     model.DefaultCollectionName,
		Model:    model.DefaultCollectionModel,
		Embedder: model.DefaultCollectionEmbedder,
		Provider: provider,
	}
	if _, err := s.repo.InsertCollection(ctx, nil, ins); err != nil && !errs.Is(err, errs.AlreadyExists) {
		return err
	}
	return nil
}

// GetCollection returns a collection row by id.
func (s *VectorService) GetCollection(ctx context.Context, id uuid.UUID) (*model.Collection, error) {
	collection, err := s.repo.GetCollectionByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, errs.New(errs.DoesNotExist, "collection %s does not exist", id)
	}
	return collection, nil
}

// ListCollections pages through the collection rows.
func (s *VectorService) ListCollections(ctx context.Context, p model.Pagination) (model.List[model.Collection], error) {
	if err := p.Normalize(); err != nil {
		return model.List[model.Collection]{}, err
	}
	return s.repo.ListCollections(ctx, nil, p)
}

// DeleteCollection removes a collection row, its embedding records and
// the backing store collection with all its vectors.
func (s *VectorService) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	collection, err := s.GetCollection(ctx, id)
	if err != nil {
		return err
	}
	vs, err := s.stores.Get(collection.Provider)
	if err != nil {
		return err
	}
	err = s.repo.Atomic(ctx, func(tx *repo.Tx) error {
		if _, err := s.repo.RemoveCollection(ctx, tx, id); err != nil {
			return err
		}
		if err := vs.DeleteCollection(ctx, collection.Name); err != nil && !errs.Is(err, errs.DoesNotExist) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("Deleted collection %s (%s)", collection.Name, collection.Provider)
	return nil
}

// Embed chunks a document and stores the resulting vectors in a
// collection. The embedding record and the vectors land together or not
// at all: the row insert arbitrates duplicates and rolls back if the
// store write fails.
func (s *VectorService) Embed(ctx context.Context, documentID, collectionID uuid.UUID) (*model.Embedding, error) {
	document, err := s.docs.get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	collection, err := s.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.EmbeddingExists(ctx, nil, documentID, collectionID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errs.New(errs.AlreadyExists, "embeddings for %q already exist in collection %q", document.Name, collection.Name)
	}

	embedder, err := s.embedders.Get(collection.Embedder)
	if err != nil {
		return nil, err
	}
	size, err := embed.ModelSize(ctx, embedder, collection.Model)
	if err != nil {
		return nil, err
	}

	chunks, err := s.docs.GetChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errs.New(errs.Chunk, "document %q produced no chunks", document.Name)
	}

	vectors, err := embedder.Embed(ctx, chunks, collection.Model)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, errs.New(errs.Embedding, "got %d embeddings for %d chunks", len(vectors), len(chunks))
	}
	if len(vectors[0]) != size {
		return nil, errs.New(errs.Embedding, "model %q produced vectors of size %d, collection %q holds %d", collection.Model, len(vectors[0]), collection.Name, size)
	}

	vs, err := s.stores.Get(collection.Provider)
	if err != nil {
		return nil, err
	}

	var embedding *model.Embedding
	err = s.repo.Atomic(ctx, func(tx *repo.Tx) error {
		embedding, err = s.repo.InsertEmbedding(ctx, tx, model.NewEmbeddingInsert(documentID, collectionID))
		if err != nil {
			return err
		}
		return vs.InsertEmbeddings(ctx, documentID, collection.Name, chunks, vectors)
	})
	if err != nil {
		return nil, err
	}

	log.Info("Embedded %s into %s (%d chunks)", document.Name, collection.Name, len(chunks))
	return embedding, nil
}

const defaultSearchLimit = 5

// Search carries a semantic search. The collection is addressed either
// by id or by name and provider, never both.
type Search struct {
	Query      string     `json:"query"`
	Collection *uuid.UUID `json:"collection_id,omitempty"`
	Name       string     `json:"collection_name,omitempty"`
	Provider   string     `json:"provider,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

func (q Search) validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return errs.New(errs.Validation, "query is required")
	}
	byID := q.Collection != nil
	byName := q.Name != "" || q.Provider != ""
	if byID == byName {
		return errs.New(errs.Validation, "address the collection by id or by name and provider, not both")
	}
	if byName && (q.Name == "" || q.Provider == "") {
		return errs.New(errs.Validation, "collection name and provider go together")
	}
	return nil
}

// Search embeds the query and returns the closest chunks in the
// collection, best match first.
func (s *VectorService) Search(ctx context.Context, search Search) ([]string, error) {
	if err := search.validate(); err != nil {
		return nil, err
	}

	var collection *model.Collection
	var err error
	if search.Collection != nil {
		collection, err = s.GetCollection(ctx, *search.Collection)
	} else {
		name := vector.NormalizeName(search.Provider, search.Name)
		collection, err = s.repo.GetCollectionByName(ctx, nil, name, search.Provider)
		if err == nil && collection == nil {
			err = errs.New(errs.DoesNotExist, "collection %q does not exist on %q", name, search.Provider)
		}
	}
	if err != nil {
		return nil, err
	}

	limit := search.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	query, err := s.queryEmbedding(ctx, collection, search.Query)
	if err != nil {
		return nil, err
	}

	vs, err := s.stores.Get(collection.Provider)
	if err != nil {
		return nil, err
	}
	return vs.Query(ctx, query, collection.Name, limit)
}

// queryEmbedding embeds the query text, reusing cached vectors for
// repeated searches against the same model.
func (s *VectorService) queryEmbedding(ctx context.Context, collection *model.Collection, query string) ([]float64, error) {
	key := cache.Key(collection.Embedder, collection.Model, query)
	if vec, ok := s.cache.Get(key); ok {
		log.Trace("Query embedding served from cache (%s/%s)", collection.Embedder, collection.Model)
		return vec, nil
	}

	embedder, err := s.embedders.Get(collection.Embedder)
	if err != nil {
		return nil, err
	}
	vectors, err := embedder.Embed(ctx, []string{query}, collection.Model)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errs.New(errs.Embedding, "got %d embeddings for one query", len(vectors))
	}
	if err := s.cache.Set(key, vectors[0]); err != nil {
		log.Error("Caching query embedding: %s", err)
	}
	return vectors[0], nil
}

// ListEmbeddings pages through the embedding records, optionally scoped
// to one collection.
func (s *VectorService) ListEmbeddings(ctx context.Context, p model.Pagination, collectionID *uuid.UUID) (model.List[model.Embedding], error) {
	if err := p.Normalize(); err != nil {
		return model.List[model.Embedding]{}, err
	}
	return s.repo.ListEmbeddings(ctx, nil, p, collectionID)
}

// GetEmbeddings returns the embedding record for a document in a
// collection.
func (s *VectorService) GetEmbeddings(ctx context.Context, documentID, collectionID uuid.UUID) (*model.Embedding, error) {
	embedding, err := s.repo.GetEmbedding(ctx, nil, documentID, collectionID)
	if err != nil {
		return nil, err
	}
	if embedding == nil {
		return nil, errs.New(errs.DoesNotExist, "no embeddings for document %s in collection %s", documentID, collectionID)
	}
	return embedding, nil
}

// DeleteEmbeddings removes a document's embedding record and its
// vectors from the collection.
func (s *VectorService) DeleteEmbeddings(ctx context.Context, documentID, collectionID uuid.UUID) error {
	collection, err := s.GetCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	vs, err := s.stores.Get(collection.Provider)
	if err != nil {
		return err
	}
	return s.repo.Atomic(ctx, func(tx *repo.Tx) error {
		n, err := s.repo.RemoveEmbedding(ctx, tx, documentID, collectionID)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.New(errs.DoesNotExist, "no embeddings for document %s in collection %q", documentID, collection.Name)
		}
		if err := vs.DeleteEmbeddings(ctx, collection.Name, documentID); err != nil && !errs.Is(err, errs.DoesNotExist) {
			return err
		}
		return nil
	})
}

// CountEmbeddings reports how many vectors a document holds in a
// collection, straight from the store.
func (s *VectorService) CountEmbeddings(ctx context.Context, documentID, collectionID uuid.UUID) (int, error) {
	collection, err := s.GetCollection(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	vs, err := s.stores.Get(collection.Provider)
	if err != nil {
		return 0, err
	}
	return vs.CountVectors(ctx, collection.Name, documentID)
}

// ListEmbeddingModels lists the models an embedding provider serves.
func (s *VectorService) ListEmbeddingModels(ctx context.Context, provider string) ([]embed.Model, error) {
	embedder, err := s.embedders.Get(provider)
	if err != nil {
		return nil, err
	}
	return embedder.ListModels(ctx)
}
