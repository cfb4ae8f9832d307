// Package model holds the persisted entities and the common list
// envelope shared by the repository and the services.
package model

import "github.com/yaoapp/duan/errs"

// DefaultLimit is the page size used when a request does not set one.
const DefaultLimit = 10

// Pagination bounds list queries.
type Pagination struct {
	Limit  int `json:"limit" form:"limit"`
	Offset int `json:"offset" form:"offset"`
}

// Normalize validates the bounds and applies the default limit.
func (p *Pagination) Normalize() error {
	if p.Limit < 0 {
		return errs.New(errs.Validation, "pagination limit must not be negative, got %d", p.Limit)
	}
	if p.Offset < 0 {
		return errs.New(errs.Validation, "pagination offset must not be negative, got %d", p.Offset)
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	return nil
}

// List is a page of items together with the total number of rows the
// query matched.
type List[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}

// NewList returns a list page. A nil items slice marshals as [].
func NewList[T any](total int, items []T) List[T] {
	if items == nil {
		items = []T{}
	}
	return List[T]{Total: total, Items: items}
}
