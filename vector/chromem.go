package vector

import (
	"context"
	"runtime"
	"strconv"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
)

// Chromem stores embeddings in-process with chromem-go. Intended for
// development and tests; collection sizes and per-document counts are
// tracked in memory since chromem collections expose no metadata.
type Chromem struct {
	db     *chromem.DB
	mu     sync.RWMutex
	sizes  map[string]int
	counts map[string]map[string]int
}

// NewChromem opens an in-memory store, or a persistent one when path
// is set.
func NewChromem(path string) (*Chromem, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		log.Info("Initializing in-memory chromem")
		db = chromem.NewDB()
	} else {
		log.Info("Initializing chromem at %s", path)
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, errs.Wrap(errs.Chromem, err)
		}
	}
	return &Chromem{
		db:     db,
		sizes:  map[string]int{},
		counts: map[string]map[string]int{},
	}, nil
}

// ID returns the provider id.
func (s *Chromem) ID() string { return "chromem" }

// Every document carries an explicit embedding, so the store must never
// embed on its own.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errs.New(errs.Chromem, "store asked to embed text")
}

// ListCollections returns the collections created through this store.
func (s *Chromem) ListCollections(ctx context.Context) ([]Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collections := make([]Collection, 0, len(s.sizes))
	for name := range s.db.ListCollections() {
		size, ok := s.sizes[name]
		if !ok {
			continue
		}
		collections = append(collections, Collection{Name: name, Size: size})
	}
	return collections, nil
}

// CreateCollection creates a collection for vectors of the given size.
func (s *Chromem) CreateCollection(ctx context.Context, name string, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Debug("Creating chromem collection %s (size %d)", name, size)

	if s.db.GetCollection(name, noEmbedding) != nil {
		return errs.New(errs.AlreadyExists, "collection %q already exists", name)
	}

	metadata := map[string]string{collectionSizeProperty: strconv.Itoa(size)}
	if _, err := s.db.CreateCollection(name, metadata, noEmbedding); err != nil {
		return errs.Wrap(errs.Chromem, err)
	}
	s.sizes[name] = size
	s.counts[name] = map[string]int{}
	return nil
}

// GetCollection returns the collection and its vector size.
func (s *Chromem) GetCollection(ctx context.Context, name string) (Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db.GetCollection(name, noEmbedding) == nil {
		return Collection{}, errs.New(errs.DoesNotExist, "collection %q does not exist", name)
	}
	size, ok := s.sizes[name]
	if !ok {
		return Collection{}, errs.New(errs.Chromem, "collection %q carries no size metadata", name)
	}
	return Collection{Name: name, Size: size}, nil
}

// DeleteCollection removes the collection and all its vectors.
func (s *Chromem) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Debug("Deleting chromem collection %s", name)

	if s.db.GetCollection(name, noEmbedding) == nil {
		return errs.New(errs.DoesNotExist, "collection %q does not exist", name)
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return errs.Wrap(errs.Chromem, err)
	}
	delete(s.sizes, name)
	delete(s.counts, name)
	return nil
}

// CreateDefaultCollection sets up the default collection. Safe to call
// on every startup.
func (s *Chromem) CreateDefaultCollection(ctx context.Context, size int) error {
	err := s.CreateCollection(ctx, model.DefaultCollectionName, size)
	if err != nil && !errs.Is(err, errs.AlreadyExists) {
		return err
	}
	return nil
}

// Query returns the content of the limit closest documents.
func (s *Chromem) Query(ctx context.Context, vector []float64, collection string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.db.GetCollection(collection, noEmbedding)
	if col == nil {
		return nil, errs.New(errs.DoesNotExist, "collection %q does not exist", collection)
	}

	// chromem rejects result counts above the collection size.
	count := col.Count()
	if count == 0 {
		return []string{}, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, toFloat32(vector), limit, nil, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Chromem, err)
	}

	content := make([]string, 0, len(results))
	for _, result := range results {
		content = append(content, result.Content)
	}
	return content, nil
}

// InsertEmbeddings adds one document per chunk, tagged with the source
// document id.
func (s *Chromem) InsertEmbeddings(ctx context.Context, documentID uuid.UUID, collection string, content []string, vectors [][]float64) error {
	if len(content) != len(vectors) {
		return errs.New(errs.Embedding, "got %d embeddings for %d chunks", len(vectors), len(content))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.db.GetCollection(collection, noEmbedding)
	if col == nil {
		return errs.New(errs.DoesNotExist, "collection %q does not exist", collection)
	}

	log.Debug("Inserting %d vectors into chromem collection %s", len(vectors), collection)

	docs := make([]chromem.Document, len(content))
	for i, chunk := range content {
		docs[i] = chromem.Document{
			ID:        uuid.NewString(),
			Content:   chunk,
			Metadata:  map[string]string{documentIDProperty: documentID.String()},
			Embedding: toFloat32(vectors[i]),
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return errs.Wrap(errs.Chromem, err)
	}

	if s.counts[collection] == nil {
		s.counts[collection] = map[string]int{}
	}
	s.counts[collection][documentID.String()] += len(content)
	return nil
}

// DeleteEmbeddings removes every document belonging to the document id.
func (s *Chromem) DeleteEmbeddings(ctx context.Context, collection string, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.db.GetCollection(collection, noEmbedding)
	if col == nil {
		return errs.New(errs.DoesNotExist, "collection %q does not exist", collection)
	}

	log.Debug("Deleting vectors of document %s from chromem collection %s", documentID, collection)

	where := map[string]string{documentIDProperty: documentID.String()}
	if err := col.Delete(ctx, where, nil); err != nil {
		return errs.Wrap(errs.Chromem, err)
	}
	if counts, ok := s.counts[collection]; ok {
		delete(counts, documentID.String())
	}
	return nil
}

// CountVectors returns the number of documents stored for the document
// id.
func (s *Chromem) CountVectors(ctx context.Context, collection string, documentID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db.GetCollection(collection, noEmbedding) == nil {
		return 0, errs.New(errs.DoesNotExist, "collection %q does not exist", collection)
	}
	return s.counts[collection][documentID.String()], nil
}
