// Package docstore persists document blobs. Stores are addressed by the
// src id recorded on each document row.
package docstore

import (
	"context"
	"sort"

	"github.com/yaoapp/duan/errs"
)

// Store persists document blobs keyed by path. Write returns the path
// the blob is reachable under; the caller records it on the document.
type Store interface {
	ID() string
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, name string, content []byte) (string, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context) ([]File, error)
}

// File is a blob listed by a store.
type File struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Registry resolves stores by src id. Built once at startup.
type Registry struct {
	stores map[string]Store
}

// NewRegistry registers the given stores under their ids.
func NewRegistry(stores ...Store) *Registry {
	r := &Registry{stores: map[string]Store{}}
	for _, s := range stores {
		r.stores[s.ID()] = s
	}
	return r
}

// Get returns the store registered under src.
func (r *Registry) Get(src string) (Store, error) {
	s, ok := r.stores[src]
	if !ok {
		return nil, errs.New(errs.InvalidProvider, "unknown document store %q", src)
	}
	return s, nil
}

// IDs lists the registered store ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
