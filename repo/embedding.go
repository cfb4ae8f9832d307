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

const embeddingColumns = `id, document_id, collection_id, created_at`

// InsertEmbedding records that a document is embedded in a collection. A
// (document, collection) conflict surfaces as AlreadyExists.
func (r *Repo) InsertEmbedding(ctx context.Context, tx *Tx, ins model.EmbeddingInsert) (*model.Embedding, error) {
	q := r.ext(tx)
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx,
		q.Rebind(`INSERT INTO embeddings (id, document_id, collection_id, created_at) VALUES (?, ?, ?, ?)`),
		ins.ID, ins.DocumentID, ins.CollectionID, now)
	if err != nil {
		return nil, wrap(err)
	}
	return &model.Embedding{
		ID:           ins.ID,
		DocumentID:   ins.DocumentID,
		CollectionID: ins.CollectionID,
		CreatedAt:    now,
	}, nil
}

// GetEmbedding returns the embedding record for the pair, or nil.
func (r *Repo) GetEmbedding(ctx context.Context, tx *Tx, documentID, collectionID uuid.UUID) (*model.Embedding, error) {
	q := r.ext(tx)
	var emb model.Embedding
	err := sqlx.GetContext(ctx, q, &emb,
		q.Rebind(`SELECT `+embeddingColumns+` FROM embeddings WHERE document_id = ? AND collection_id = ?`),
		documentID, collectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &emb, nil
}

// EmbeddingExists reports whether the document is embedded in the
// collection.
func (r *Repo) EmbeddingExists(ctx context.Context, tx *Tx, documentID, collectionID uuid.UUID) (bool, error) {
	emb, err := r.GetEmbedding(ctx, tx, documentID, collectionID)
	return emb != nil, err
}

// ListEmbeddings returns a page of embedding records, newest first,
// optionally narrowed to a collection.
func (r *Repo) ListEmbeddings(ctx context.Context, tx *Tx, p model.Pagination, collectionID *uuid.UUID) (model.List[model.Embedding], error) {
	q := r.ext(tx)

	countQuery := `SELECT COUNT(id) FROM embeddings`
	listQuery := `SELECT ` + embeddingColumns + ` FROM embeddings`
	countArgs := []interface{}{}
	listArgs := []interface{}{}
	if collectionID != nil {
		countQuery += ` WHERE collection_id = ?`
		listQuery += ` WHERE collection_id = ?`
		countArgs = append(countArgs, *collectionID)
		listArgs = append(listArgs, *collectionID)
	}
	listQuery += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	listArgs = append(listArgs, p.Limit, p.Offset)

	var total int
	if err := sqlx.GetContext(ctx, q, &total, q.Rebind(countQuery), countArgs...); err != nil {
		return model.List[model.Embedding]{}, wrap(err)
	}

	var embs []model.Embedding
	if err := sqlx.SelectContext(ctx, q, &embs, q.Rebind(listQuery), listArgs...); err != nil {
		return model.List[model.Embedding]{}, wrap(err)
	}
	return model.NewList(total, embs), nil
}

// RemoveEmbedding deletes the record for the pair. Returns the affected
// row count.
func (r *Repo) RemoveEmbedding(ctx context.Context, tx *Tx, documentID, collectionID uuid.UUID) (int64, error) {
	return r.removeEmbeddings(ctx, tx,
		`DELETE FROM embeddings WHERE document_id = ? AND collection_id = ?`, documentID, collectionID)
}

// RemoveEmbeddingsByDocument deletes every record of the document.
func (r *Repo) RemoveEmbeddingsByDocument(ctx context.Context, tx *Tx, documentID uuid.UUID) (int64, error) {
	return r.removeEmbeddings(ctx, tx, `DELETE FROM embeddings WHERE document_id = ?`, documentID)
}

// RemoveEmbeddingsByCollection deletes every record in the collection.
func (r *Repo) RemoveEmbeddingsByCollection(ctx context.Context, tx *Tx, collectionID uuid.UUID) (int64, error) {
	return r.removeEmbeddings(ctx, tx, `DELETE FROM embeddings WHERE collection_id = ?`, collectionID)
}

func (r *Repo) removeEmbeddings(ctx context.Context, tx *Tx, query string, args ...interface{}) (int64, error) {
	q := r.ext(tx)
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, wrap(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.Sqlx, err)
	}
	return affected, nil
}
