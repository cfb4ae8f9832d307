package model

import (
	"time"

	"github.com/google/uuid"
)

// The default collection every deployment gets at startup. Its id is the
// nil UUID so it can be addressed without a lookup.
const (
	DefaultCollectionName     = "Chonkit_Default_Collection"
	DefaultCollectionModel    = "Xenova/bge-base-en-v1.5"
	DefaultCollectionEmbedder = "fembed"
	DefaultCollectionSize     = 768
)

// Collection is a named vector collection. Provider identifies the vector
// store holding the vectors, Embedder the provider whose Model produced
// them. (Name, Provider) is unique.
type Collection struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Model     string    `db:"model" json:"model"`
	Embedder  string    `db:"embedder" json:"embedder"`
	Provider  string    `db:"provider" json:"provider"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CollectionShort is the display form used when listing the collections a
// document is embedded in.
type CollectionShort struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// CollectionInsert carries the fields of a new collection row.
type CollectionInsert struct {
	ID       uuid.UUID
	Name     string
	Model    string
	Embedder string
	Provider string
}

// NewCollectionInsert assigns a fresh id to a new collection.
func NewCollectionInsert(name, model, embedder, provider string) CollectionInsert {
	return CollectionInsert{
		ID:       uuid.New(),
		Name:     name,
		Model:    model,
		Embedder: embedder,
		Provider: provider,
	}
}

// Embedding records that a document's chunks are stored as vectors in a
// collection. (DocumentID, CollectionID) is unique.
type Embedding struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DocumentID   uuid.UUID `db:"document_id" json:"document_id"`
	CollectionID uuid.UUID `db:"collection_id" json:"collection_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// EmbeddingInsert carries the fields of a new embedding row.
type EmbeddingInsert struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	CollectionID uuid.UUID
}

// NewEmbeddingInsert assigns a fresh id to a new embedding record.
func NewEmbeddingInsert(documentID, collectionID uuid.UUID) EmbeddingInsert {
	return EmbeddingInsert{
		ID:           uuid.New(),
		DocumentID:   documentID,
		CollectionID: collectionID,
	}
}
