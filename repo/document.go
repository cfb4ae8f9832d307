package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	jsoniter "github.com/json-iterator/go"

	"github.com/yaoapp/duan/chunk"
	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
	"github.com/yaoapp/duan/parse"
)

const documentColumns = `id, name, path, ext, hash, src, label, tags, created_at, updated_at`

// GetDocumentByID returns the document or nil when no row matches.
func (r *Repo) GetDocumentByID(ctx context.Context, tx *Tx, id uuid.UUID) (*model.Document, error) {
	q := r.ext(tx)
	var doc model.Document
	err := sqlx.GetContext(ctx, q, &doc,
		q.Rebind(`SELECT `+documentColumns+` FROM documents WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &doc, nil
}

// GetDocumentByPath returns the document stored at path in src, or nil.
func (r *Repo) GetDocumentByPath(ctx context.Context, tx *Tx, path, src string) (*model.Document, error) {
	q := r.ext(tx)
	var doc model.Document
	err := sqlx.GetContext(ctx, q, &doc,
		q.Rebind(`SELECT `+documentColumns+` FROM documents WHERE path = ? AND src = ?`), path, src)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &doc, nil
}

// GetDocumentByHash returns the first document with the content hash, or
// nil.
func (r *Repo) GetDocumentByHash(ctx context.Context, tx *Tx, hash string) (*model.Document, error) {
	q := r.ext(tx)
	var doc model.Document
	err := sqlx.GetContext(ctx, q, &doc,
		q.Rebind(`SELECT `+documentColumns+` FROM documents WHERE hash = ?`), hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &doc, nil
}

// CountDocuments returns the number of tracked documents.
func (r *Repo) CountDocuments(ctx context.Context, tx *Tx) (int, error) {
	q := r.ext(tx)
	var total int
	if err := sqlx.GetContext(ctx, q, &total, `SELECT COUNT(id) FROM documents`); err != nil {
		return 0, wrap(err)
	}
	return total, nil
}

// ListDocuments returns a page of documents, newest first, with the
// total row count.
func (r *Repo) ListDocuments(ctx context.Context, tx *Tx, p model.Pagination) (model.List[model.Document], error) {
	q := r.ext(tx)

	total, err := r.CountDocuments(ctx, tx)
	if err != nil {
		return model.List[model.Document]{}, err
	}

	var docs []model.Document
	err = sqlx.SelectContext(ctx, q, &docs,
		q.Rebind(`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`),
		p.Limit, p.Offset)
	if err != nil {
		return model.List[model.Document]{}, wrap(err)
	}
	return model.NewList(total, docs), nil
}

// ListDocumentsInSrc returns every document tracked for the given store.
func (r *Repo) ListDocumentsInSrc(ctx context.Context, tx *Tx, src string) ([]model.Document, error) {
	q := r.ext(tx)
	var docs []model.Document
	err := sqlx.SelectContext(ctx, q, &docs,
		q.Rebind(`SELECT `+documentColumns+` FROM documents WHERE src = ? ORDER BY path`), src)
	if err != nil {
		return nil, wrap(err)
	}
	return docs, nil
}

// ListDocumentsByCollection returns the short form of every document
// embedded in the collection.
func (r *Repo) ListDocumentsByCollection(ctx context.Context, tx *Tx, collectionID uuid.UUID) ([]model.DocumentShort, error) {
	q := r.ext(tx)
	docs := []model.DocumentShort{}
	err := sqlx.SelectContext(ctx, q, &docs,
		q.Rebind(`SELECT documents.id, documents.name FROM documents
			INNER JOIN embeddings ON embeddings.document_id = documents.id
			WHERE embeddings.collection_id = ?
			ORDER BY documents.name`), collectionID)
	if err != nil {
		return nil, wrap(err)
	}
	return docs, nil
}

// InsertDocument inserts a document row. A (path, src) conflict surfaces
// as AlreadyExists.
func (r *Repo) InsertDocument(ctx context.Context, tx *Tx, ins model.DocumentInsert) (*model.Document, error) {
	q := r.ext(tx)
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx,
		q.Rebind(`INSERT INTO documents (id, name, path, ext, hash, src, label, tags, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ins.ID, ins.Name, ins.Path, ins.Ext, ins.Hash, ins.Src, ins.Label, ins.Tags, now, now)
	if err != nil {
		return nil, wrap(err)
	}
	return &model.Document{
		ID:        ins.ID,
		Name:      ins.Name,
		Path:      ins.Path,
		Ext:       ins.Ext,
		Hash:      ins.Hash,
		Src:       ins.Src,
		Label:     ins.Label,
		Tags:      ins.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// InsertDocumentWithConfigs inserts the document together with its parse
// and chunk configurations. Meant to run inside a transaction so a config
// failure rolls the row back.
func (r *Repo) InsertDocumentWithConfigs(ctx context.Context, tx *Tx, ins model.DocumentInsert, parseCfg parse.Config, chunkCfg chunk.Config) (*model.DocumentWithConfig, error) {
	doc, err := r.InsertDocument(ctx, tx, ins)
	if err != nil {
		return nil, err
	}
	if _, err := r.UpsertParseConfig(ctx, tx, doc.ID, parseCfg); err != nil {
		return nil, err
	}
	if _, err := r.UpsertChunkConfig(ctx, tx, doc.ID, chunkCfg); err != nil {
		return nil, err
	}
	return &model.DocumentWithConfig{
		Document:    *doc,
		ParseConfig: &parseCfg,
		ChunkConfig: &chunkCfg,
	}, nil
}

// UpdateDocument updates the mutable fields, keeping the current name
// when the update carries none. Returns the affected row count.
func (r *Repo) UpdateDocument(ctx context.Context, tx *Tx, id uuid.UUID, upd model.DocumentUpdate) (int64, error) {
	q := r.ext(tx)
	res, err := q.ExecContext(ctx,
		q.Rebind(`UPDATE documents SET name = COALESCE(?, name), label = ?, tags = ?, updated_at = ? WHERE id = ?`),
		upd.Name, upd.Label, upd.Tags, time.Now().UTC(), id)
	if err != nil {
		return 0, wrap(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.Sqlx, err)
	}
	return affected, nil
}

// RemoveDocumentByID deletes the document row. Configs and embedding
// records cascade. Returns the affected row count.
func (r *Repo) RemoveDocumentByID(ctx context.Context, tx *Tx, id uuid.UUID) (int64, error) {
	q := r.ext(tx)
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM documents WHERE id = ?`), id)
	if err != nil {
		return 0, wrap(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.Sqlx, err)
	}
	return affected, nil
}

// GetParseConfig returns the stored parser row for the document, or nil.
func (r *Repo) GetParseConfig(ctx context.Context, tx *Tx, documentID uuid.UUID) (*model.DocumentConfig, error) {
	return r.getConfig(ctx, tx, "parsers", documentID)
}

// GetChunkConfig returns the stored chunker row for the document, or nil.
func (r *Repo) GetChunkConfig(ctx context.Context, tx *Tx, documentID uuid.UUID) (*model.DocumentConfig, error) {
	return r.getConfig(ctx, tx, "chunkers", documentID)
}

func (r *Repo) getConfig(ctx context.Context, tx *Tx, table string, documentID uuid.UUID) (*model.DocumentConfig, error) {
	q := r.ext(tx)
	var row model.DocumentConfig
	query := fmt.Sprintf(`SELECT id, document_id, config, created_at, updated_at FROM %s WHERE document_id = ?`, table)
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &row, nil
}

// UpsertParseConfig stores the parser configuration for the document,
// replacing any previous one.
func (r *Repo) UpsertParseConfig(ctx context.Context, tx *Tx, documentID uuid.UUID, cfg parse.Config) (*model.DocumentConfig, error) {
	return r.upsertConfig(ctx, tx, "parsers", documentID, cfg)
}

// UpsertChunkConfig stores the chunker configuration for the document,
// replacing any previous one.
func (r *Repo) UpsertChunkConfig(ctx context.Context, tx *Tx, documentID uuid.UUID, cfg chunk.Config) (*model.DocumentConfig, error) {
	return r.upsertConfig(ctx, tx, "chunkers", documentID, cfg)
}

func (r *Repo) upsertConfig(ctx context.Context, tx *Tx, table string, documentID uuid.UUID, cfg interface{}) (*model.DocumentConfig, error) {
	data, err := jsoniter.Marshal(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.Json, err)
	}

	q := r.ext(tx)
	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (id, document_id, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`, table)
	_, err = q.ExecContext(ctx, q.Rebind(query), uuid.New(), documentID, types.JSONText(data), now, now)
	if err != nil {
		return nil, wrap(err)
	}
	return r.getConfig(ctx, tx, table, documentID)
}

// GetDocumentWithConfig returns the document together with its decoded
// parse and chunk configurations, or nil when the document is unknown.
func (r *Repo) GetDocumentWithConfig(ctx context.Context, tx *Tx, id uuid.UUID) (*model.DocumentWithConfig, error) {
	doc, err := r.GetDocumentByID(ctx, tx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	out := &model.DocumentWithConfig{Document: *doc}

	parseRow, err := r.GetParseConfig(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if parseRow != nil {
		var cfg parse.Config
		if err := jsoniter.Unmarshal(parseRow.Config, &cfg); err != nil {
			return nil, errs.Wrap(errs.Json, err)
		}
		out.ParseConfig = &cfg
	}

	chunkRow, err := r.GetChunkConfig(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if chunkRow != nil {
		var cfg chunk.Config
		if err := jsoniter.Unmarshal(chunkRow.Config, &cfg); err != nil {
			return nil, errs.Wrap(errs.Json, err)
		}
		out.ChunkConfig = &cfg
	}

	return out, nil
}
