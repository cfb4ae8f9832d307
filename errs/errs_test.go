package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(DoesNotExist, "document %s", "d1")
	assert.Equal(t, DoesNotExist, err.Kind())
	assert.Equal(t, "document d1", err.Message())
	assert.Contains(t, err.Error(), "does_not_exist")
	assert.Contains(t, err.Error(), "document d1")
	assert.Contains(t, err.Location(), "errs_test.go")
}

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("disk full")
	err := Wrap(IO, inner)
	assert.Equal(t, IO, err.Kind())
	assert.True(t, errors.Is(err, inner))

	// wrapping an *Error keeps the original kind
	again := Wrap(Sqlx, err)
	assert.Equal(t, IO, again.Kind())

	assert.Nil(t, Wrap(IO, nil))
}

func TestStatus(t *testing.T) {
	cases := map[Kind]int{
		DoesNotExist:          http.StatusNotFound,
		AlreadyExists:         http.StatusConflict,
		Validation:            http.StatusUnprocessableEntity,
		Chunk:                 http.StatusUnprocessableEntity,
		ParseConfig:           http.StatusUnprocessableEntity,
		InvalidEmbeddingModel: http.StatusUnprocessableEntity,
		UnsupportedFileType:   http.StatusUnprocessableEntity,
		Embedding:             http.StatusBadGateway,
		Batch:                 http.StatusServiceUnavailable,
		Sqlx:                  http.StatusInternalServerError,
		IO:                    http.StatusInternalServerError,
		Qdrant:                http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, New(kind, "x").Status(), string(kind))
	}
}

func TestIsAndKindOf(t *testing.T) {
	err := New(AlreadyExists, "collection c1")
	assert.True(t, Is(err, AlreadyExists))
	assert.False(t, Is(err, DoesNotExist))
	assert.False(t, Is(fmt.Errorf("plain"), AlreadyExists))
	assert.Equal(t, AlreadyExists, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain")))
}
