package errs

import (
	"fmt"
	"net/http"

	goerrors "github.com/go-errors/errors"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind string

// Error kinds
const (
	DoesNotExist          Kind = "does_not_exist"
	AlreadyExists         Kind = "already_exists"
	InvalidFileName       Kind = "invalid_file_name"
	UnsupportedFileType   Kind = "unsupported_file_type"
	InvalidEmbeddingModel Kind = "invalid_embedding_model"
	InvalidProvider       Kind = "invalid_provider"
	Embedding             Kind = "embedding"
	ParseConfig           Kind = "parse_config"
	ParsePdf              Kind = "parse_pdf"
	DocxRead              Kind = "docx_read"
	Chunk                 Kind = "chunk"
	Validation            Kind = "validation"
	Regex                 Kind = "regex"
	Sqlx                  Kind = "sqlx"
	IO                    Kind = "io"
	Json                  Kind = "json"
	Http                  Kind = "http"
	Qdrant                Kind = "qdrant"
	Weaviate              Kind = "weaviate"
	Chromem               Kind = "chromem"
	Batch                 Kind = "batch"
	Unauthorized          Kind = "unauthorized"
)

// Error is the error type for everything the services return.
// It carries a kind for dispatch and a stack for the logs.
type Error struct {
	kind    Kind
	message string
	inner   *goerrors.Error
}

// New create an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		kind:    kind,
		message: fmt.Sprintf(format, args...),
		inner:   goerrors.Wrap(fmt.Errorf(format, args...), 1),
	}
}

// Wrap attach a kind to an underlying error, keeping its message and
// capturing the call site.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{
		kind:    kind,
		message: err.Error(),
		inner:   goerrors.Wrap(err, 1),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s; %s", e.kind, e.message)
}

// Unwrap exposes the wrapped error to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e.inner == nil {
		return nil
	}
	return e.inner.Err
}

// Kind returns the error kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the bare message without the kind prefix.
func (e *Error) Message() string {
	return e.message
}

// Location returns the file:line where the error was created.
func (e *Error) Location() string {
	if e.inner == nil {
		return ""
	}
	frames := e.inner.StackFrames()
	if len(frames) == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", frames[0].File, frames[0].LineNumber)
}

// Stack returns the full capture stack for log output.
func (e *Error) Stack() string {
	if e.inner == nil {
		return ""
	}
	return string(e.inner.Stack())
}

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.kind {
	case DoesNotExist:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case Validation, Regex, Chunk, InvalidFileName, UnsupportedFileType,
		InvalidProvider, InvalidEmbeddingModel, ParseConfig:
		return http.StatusUnprocessableEntity
	case Embedding, Http:
		return http.StatusBadGateway
	case Batch:
		return http.StatusServiceUnavailable
	case Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the kind of err, or an empty kind for foreign errors.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.kind
	}
	return Kind("")
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kind
}
