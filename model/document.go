package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	jsoniter "github.com/json-iterator/go"

	"github.com/yaoapp/duan/chunk"
	"github.com/yaoapp/duan/parse"
)

// Document is a file tracked by the repository. The blob itself lives in
// a document store identified by Src; Path locates it there. Hash never
// changes once the row exists.
type Document struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Path      string    `db:"path" json:"path"`
	Ext       string    `db:"ext" json:"ext"`
	Hash      string    `db:"hash" json:"hash"`
	Src       string    `db:"src" json:"src"`
	Label     *string   `db:"label" json:"label"`
	Tags      Tags      `db:"tags" json:"tags"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentShort is the display form used when listing documents under a
// collection.
type DocumentShort struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// DocumentInsert carries the fields of a new document row.
type DocumentInsert struct {
	ID    uuid.UUID
	Name  string
	Path  string
	Ext   string
	Hash  string
	Src   string
	Label *string
	Tags  Tags
}

// NewDocumentInsert assigns a fresh id to a new document.
func NewDocumentInsert(name, path, ext, hash, src string) DocumentInsert {
	return DocumentInsert{
		ID:   uuid.New(),
		Name: name,
		Path: path,
		Ext:  ext,
		Hash: hash,
		Src:  src,
	}
}

// DocumentUpdate carries the mutable document fields. Nil name leaves the
// current one in place.
type DocumentUpdate struct {
	Name  *string `json:"name"`
	Label *string `json:"label"`
	Tags  Tags    `json:"tags"`
}

// DocumentConfig is a stored parser or chunker configuration row. The
// parsers and chunkers tables share this shape, with at most one row per
// document in each.
type DocumentConfig struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	DocumentID uuid.UUID      `db:"document_id" json:"document_id"`
	Config     types.JSONText `db:"config" json:"config"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentWithConfig pairs a document with its stored parse and chunk
// configurations, either of which may be absent.
type DocumentWithConfig struct {
	Document
	ParseConfig *parse.Config `json:"parse_config,omitempty"`
	ChunkConfig *chunk.Config `json:"chunk_config,omitempty"`
}

// Tags is an optional list of document tags persisted as a JSON text
// column.
type Tags []string

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	data, err := jsoniter.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src interface{}) error {
	if src == nil {
		*t = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into Tags", src)
	}
	if len(data) == 0 {
		*t = nil
		return nil
	}
	return jsoniter.Unmarshal(data, (*[]string)(t))
}
