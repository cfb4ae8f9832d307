// Package service implements the application core. DocumentService owns
// the document lifecycle, VectorService owns collections, embeddings and
// search, and Executor runs batch embedding jobs in the background.
package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/chunk"
	"github.com/yaoapp/duan/docstore"
	"github.com/yaoapp/duan/embed"
	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
	"github.com/yaoapp/duan/parse"
	"github.com/yaoapp/duan/repo"
	"github.com/yaoapp/duan/vector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DocumentService drives uploads, parsing and chunking previews,
// per-document configuration, removal and store synchronization. Writes
// that touch both a blob store and the repo run inside a transaction so
// a failure on either side leaves no half-written document.
type DocumentService struct {
	repo      *repo.Repo
	stores    *docstore.Registry
	embedders *embed.Registry
	vectors   *vector.Registry
}

// NewDocumentService wires the repo and the provider registries.
func NewDocumentService(r *repo.Repo, stores *docstore.Registry, embedders *embed.Registry, vectors *vector.Registry) *DocumentService {
	return &DocumentService{repo: r, stores: stores, embedders: embedders, vectors: vectors}
}

// Upload is a single incoming file bound for the store identified by
// Src. Force skips the duplicate content check.
type Upload struct {
	Name    string
	Content []byte
	Src     string
	Force   bool
}

// Upload validates and stores an incoming file. New documents get the
// default parser for their extension and the snapping chunker.
func (s *DocumentService) Upload(ctx context.Context, upload Upload) (*model.DocumentWithConfig, error) {
	name := strings.TrimSpace(upload.Name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, errs.New(errs.InvalidFileName, "invalid file name %q", upload.Name)
	}

	ext := path.Ext(name)
	if ext == "" || ext == "." {
		return nil, errs.New(errs.InvalidFileName, "file %q has no extension", name)
	}
	if strings.TrimSuffix(name, ext) == "" {
		return nil, errs.New(errs.InvalidFileName, "file %q has no name", name)
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if !parse.SupportedExtension(ext) {
		return nil, errs.New(errs.UnsupportedFileType, "unsupported file type %q", ext)
	}
	if err := parse.Probe(ext, upload.Content); err != nil {
		return nil, err
	}

	store, err := s.stores.Get(upload.Src)
	if err != nil {
		return nil, err
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(upload.Content))
	if !upload.Force {
		existing, err := s.repo.GetDocumentByHash(ctx, nil, hash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errs.New(errs.AlreadyExists, "document %q already exists", existing.Name)
		}
	}

	ins := model.NewDocumentInsert(name, "", ext, hash, upload.Src)

	var document *model.DocumentWithConfig
	err = s.repo.Atomic(ctx, func(tx *repo.Tx) error {
		blobPath, err := store.Write(ctx, ins.ID.String()+"."+ext, upload.Content)
		if err != nil {
			return err
		}
		ins.Path = blobPath
		document, err = s.repo.InsertDocumentWithConfigs(ctx, tx, ins, parse.Config{}, chunk.DefaultSnapping())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("Uploaded %s (%s) to %s", document.Name, document.ID, document.Src)
	return document, nil
}

// List pages through the tracked documents.
func (s *DocumentService) List(ctx context.Context, p model.Pagination) (model.List[model.Document], error) {
	if err := p.Normalize(); err != nil {
		return model.List[model.Document]{}, err
	}
	return s.repo.ListDocuments(ctx, nil, p)
}

// ListInCollection lists the documents embedded in a collection.
func (s *DocumentService) ListInCollection(ctx context.Context, collectionID uuid.UUID) ([]model.DocumentShort, error) {
	collection, err := s.repo.GetCollectionByID(ctx, nil, collectionID)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, errs.New(errs.DoesNotExist, "collection %s does not exist", collectionID)
	}
	return s.repo.ListDocumentsByCollection(ctx, nil, collectionID)
}

// Get returns a document with its stored parse and chunk configurations.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*model.DocumentWithConfig, error) {
	document, err := s.repo.GetDocumentWithConfig(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if document == nil {
		return nil, errs.New(errs.DoesNotExist, "document %s does not exist", id)
	}
	return document, nil
}

// Update changes a document's display fields.
func (s *DocumentService) Update(ctx context.Context, id uuid.UUID, update model.DocumentUpdate) (*model.Document, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, errs.New(errs.Validation, "document name cannot be blank")
	}
	n, err := s.repo.UpdateDocument(ctx, nil, id, update)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.New(errs.DoesNotExist, "document %s does not exist", id)
	}
	return s.repo.GetDocumentByID(ctx, nil, id)
}

// GetContent parses the document with its stored configuration, or the
// extension default if none was ever set.
func (s *DocumentService) GetContent(ctx context.Context, id uuid.UUID) (string, error) {
	document, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.content(ctx, document)
}

// GetChunks parses and chunks the document with its stored
// configurations. Documents never assigned a chunker fall back to the
// sliding window.
func (s *DocumentService) GetChunks(ctx context.Context, id uuid.UUID) ([]string, error) {
	document, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	content, err := s.content(ctx, document)
	if err != nil {
		return nil, err
	}
	cfg, err := s.chunkConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	chunker, err := s.chunker(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return chunker.Chunk(ctx, content)
}

// PreviewParse parses the document with the given configuration without
// persisting anything.
func (s *DocumentService) PreviewParse(ctx context.Context, id uuid.UUID, cfg parse.Config) (string, error) {
	document, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.parseWith(ctx, document, cfg)
}

// ChunkPreview carries a chunker to try against a document, optionally
// parsing with an override first.
type ChunkPreview struct {
	Chunker chunk.Config  `json:"chunker"`
	Parser  *parse.Config `json:"parser,omitempty"`
}

// PreviewChunk chunks the document with the given configuration without
// persisting anything.
func (s *DocumentService) PreviewChunk(ctx context.Context, id uuid.UUID, preview ChunkPreview) ([]string, error) {
	document, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	var content string
	if preview.Parser != nil {
		content, err = s.parseWith(ctx, document, *preview.Parser)
	} else {
		content, err = s.content(ctx, document)
	}
	if err != nil {
		return nil, err
	}

	chunker, err := s.chunker(ctx, preview.Chunker)
	if err != nil {
		return nil, err
	}
	return chunker.Chunk(ctx, content)
}

// UpdateParseConfig validates and stores the parser for a document.
func (s *DocumentService) UpdateParseConfig(ctx context.Context, id uuid.UUID, cfg parse.Config) (*model.DocumentConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.UpsertParseConfig(ctx, nil, id, cfg)
}

// UpdateChunkConfig validates and stores the chunker for a document.
// Semantic configurations must name a registered embedding provider and
// one of its models.
func (s *DocumentService) UpdateChunkConfig(ctx context.Context, id uuid.UUID, cfg chunk.Config) (*model.DocumentConfig, error) {
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.chunker(ctx, cfg); err != nil {
		return nil, err
	}
	return s.repo.UpsertChunkConfig(ctx, nil, id, cfg)
}

// Delete removes a document everywhere: its vectors in every collection
// it was embedded into, its embedding records, its blob and finally its
// row. Vector store failures are logged and skipped so a dead provider
// cannot wedge the document.
func (s *DocumentService) Delete(ctx context.Context, id uuid.UUID) error {
	document, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	store, err := s.stores.Get(document.Src)
	if err != nil {
		return err
	}
	collections, err := s.repo.GetAssignedCollections(ctx, nil, id)
	if err != nil {
		return err
	}

	err = s.repo.Atomic(ctx, func(tx *repo.Tx) error {
		for _, collection := range collections {
			vs, err := s.vectors.Get(collection.Provider)
			if err != nil {
				log.Error("Delete %s: %s", document.Name, err)
				continue
			}
			if err := vs.DeleteEmbeddings(ctx, collection.Name, id); err != nil && !errs.Is(err, errs.DoesNotExist) {
				log.Error("Delete %s: dropping vectors from %q: %s", document.Name, collection.Name, err)
			}
		}
		if _, err := s.repo.RemoveEmbeddingsByDocument(ctx, tx, id); err != nil {
			return err
		}
		if err := store.Delete(ctx, document.Path); err != nil && !errs.Is(err, errs.DoesNotExist) {
			return err
		}
		n, err := s.repo.RemoveDocumentByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.New(errs.DoesNotExist, "document %s does not exist", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("Deleted %s (%s)", document.Name, id)
	return nil
}

// SyncReport summarizes a reconciliation pass over a document store.
type SyncReport struct {
	Src     string   `json:"src"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Sync reconciles the repo with a document store. Rows whose blob is
// gone are deleted with the full cascade; blobs without a row are
// inserted with default configurations. Running it twice in a row is a
// no-op.
func (s *DocumentService) Sync(ctx context.Context, src string) (*SyncReport, error) {
	store, err := s.stores.Get(src)
	if err != nil {
		return nil, err
	}
	files, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListDocumentsInSrc(ctx, nil, src)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{Src: src, Added: []string{}, Removed: []string{}}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}
	for _, row := range rows {
		if present[row.Path] {
			continue
		}
		if err := s.Delete(ctx, row.ID); err != nil {
			return nil, err
		}
		report.Removed = append(report.Removed, row.Name)
	}

	known := make(map[string]bool, len(rows))
	for _, row := range rows {
		known[row.Path] = true
	}
	for _, f := range files {
		if known[f.Path] {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), "."))
		if !parse.SupportedExtension(ext) {
			log.Warn("Sync %s: skipping %s: unsupported file type", src, f.Name)
			continue
		}
		content, err := store.Read(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		hash := fmt.Sprintf("%x", sha256.Sum256(content))
		ins := model.NewDocumentInsert(f.Name, f.Path, ext, hash, src)
		err = s.repo.Atomic(ctx, func(tx *repo.Tx) error {
			_, err := s.repo.InsertDocumentWithConfigs(ctx, tx, ins, parse.Config{}, chunk.DefaultSnapping())
			return err
		})
		if err != nil {
			return nil, err
		}
		report.Added = append(report.Added, f.Name)
	}

	log.Info("Synced %s: %d added, %d removed", src, len(report.Added), len(report.Removed))
	return report, nil
}

// get loads a document row or reports that it does not exist.
func (s *DocumentService) get(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	document, err := s.repo.GetDocumentByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if document == nil {
		return nil, errs.New(errs.DoesNotExist, "document %s does not exist", id)
	}
	return document, nil
}

// content parses the document with its stored configuration.
func (s *DocumentService) content(ctx context.Context, document *model.Document) (string, error) {
	cfg, err := s.parseConfig(ctx, document.ID)
	if err != nil {
		return "", err
	}
	return s.parseWith(ctx, document, cfg)
}

// parseWith reads the document's blob and parses it with cfg.
func (s *DocumentService) parseWith(ctx context.Context, document *model.Document, cfg parse.Config) (string, error) {
	parser, err := parse.NewFrom(document.Ext, cfg)
	if err != nil {
		return "", err
	}
	store, err := s.stores.Get(document.Src)
	if err != nil {
		return "", err
	}
	raw, err := store.Read(ctx, document.Path)
	if err != nil {
		return "", err
	}
	return parser.Parse(raw)
}

// parseConfig loads the stored parser for a document, falling back to
// the extension default.
func (s *DocumentService) parseConfig(ctx context.Context, id uuid.UUID) (parse.Config, error) {
	row, err := s.repo.GetParseConfig(ctx, nil, id)
	if err != nil || row == nil {
		return parse.Config{}, err
	}
	var cfg parse.Config
	if err := json.Unmarshal(row.Config, &cfg); err != nil {
		return parse.Config{}, errs.Wrap(errs.Json, err)
	}
	return cfg, nil
}

// chunkConfig loads the stored chunker for a document, falling back to
// the sliding window.
func (s *DocumentService) chunkConfig(ctx context.Context, id uuid.UUID) (chunk.Config, error) {
	row, err := s.repo.GetChunkConfig(ctx, nil, id)
	if err != nil {
		return chunk.Config{}, err
	}
	if row == nil {
		return chunk.DefaultSliding(), nil
	}
	var cfg chunk.Config
	if err := json.Unmarshal(row.Config, &cfg); err != nil {
		return chunk.Config{}, errs.Wrap(errs.Json, err)
	}
	return cfg, nil
}

// chunker builds the chunker for a config, resolving the embedding
// provider when the semantic window needs one.
func (s *DocumentService) chunker(ctx context.Context, cfg chunk.Config) (chunk.Chunker, error) {
	if cfg.Semantic == nil {
		return cfg.Build(nil)
	}
	embedder, err := s.embedders.Get(cfg.Semantic.EmbeddingProvider)
	if err != nil {
		return nil, err
	}
	if _, err := embed.ModelSize(ctx, embedder, cfg.Semantic.EmbeddingModel); err != nil {
		return nil, err
	}
	return cfg.Build(embedder)
}
