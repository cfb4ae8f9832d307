package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
)

const collectionColumns = `id, name, model, embedder, provider, created_at, updated_at`

// InsertCollection inserts a collection row. A (name, provider) conflict
// surfaces as AlreadyExists.
func (r *Repo) InsertCollection(ctx context.Context, tx *Tx, ins model.CollectionInsert) (*model.Collection, error) {
	q := r.ext(tx)
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx,
		q.Rebind(`INSERT INTO collections (id, name, model, embedder, provider, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
		ins.ID, ins.Name, ins.Model, ins.Embedder, ins.Provider, now, now)
	if err != nil {
		return nil, wrap(err)
	}
	return &model.Collection{
		ID:        ins.ID,
		Name:      ins.Name,
		Model:     ins.Model,
		Embedder:  ins.Embedder,
		Provider:  ins.Provider,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetCollectionByID returns the collection or nil when no row matches.
func (r *Repo) GetCollectionByID(ctx context.Context, tx *Tx, id uuid.UUID) (*model.Collection, error) {
	q := r.ext(tx)
	var col model.Collection
	err := sqlx.GetContext(ctx, q, &col,
		q.Rebind(`SELECT `+collectionColumns+` FROM collections WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &col, nil
}

// GetCollectionByName returns the collection registered under (name,
// provider), or nil.
func (r *Repo) GetCollectionByName(ctx context.Context, tx *Tx, name, provider string) (*model.Collection, error) {
	q := r.ext(tx)
	var col model.Collection
	err := sqlx.GetContext(ctx, q, &col,
		q.Rebind(`SELECT `+collectionColumns+` FROM collections WHERE name = ? AND provider = ?`), name, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &col, nil
}

// ListCollections returns a page of collections with the total row count.
func (r *Repo) ListCollections(ctx context.Context, tx *Tx, p model.Pagination) (model.List[model.Collection], error) {
	q := r.ext(tx)

	var total int
	if err := sqlx.GetContext(ctx, q, &total, `SELECT COUNT(id) FROM collections`); err != nil {
		return model.List[model.Collection]{}, wrap(err)
	}

	var cols []model.Collection
	err := sqlx.SelectContext(ctx, q, &cols,
		q.Rebind(`SELECT `+collectionColumns+` FROM collections ORDER BY name, provider LIMIT ? OFFSET ?`),
		p.Limit, p.Offset)
	if err != nil {
		return model.List[model.Collection]{}, wrap(err)
	}
	return model.NewList(total, cols), nil
}

// GetAssignedCollections returns every collection holding embeddings of
// the document.
func (r *Repo) GetAssignedCollections(ctx context.Context, tx *Tx, documentID uuid.UUID) ([]model.Collection, error) {
	q := r.ext(tx)
	cols := []model.Collection{}
	err := sqlx.SelectContext(ctx, q, &cols,
		q.Rebind(`SELECT `+collectionColumns+` FROM collections
			WHERE id IN (SELECT collection_id FROM embeddings WHERE document_id = ?)
			ORDER BY name`), documentID)
	if err != nil {
		return nil, wrap(err)
	}
	return cols, nil
}

// RemoveCollection deletes the collection row. Embedding records cascade.
// Returns the affected row count.
func (r *Repo) RemoveCollection(ctx context.Context, tx *Tx, id uuid.UUID) (int64, error) {
	q := r.ext(tx)
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM collections WHERE id = ?`), id)
	if err != nil {
		return 0, wrap(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.Sqlx, err)
	}
	return affected, nil
}
