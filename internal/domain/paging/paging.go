// Package paging holds the page request and page result types shared by
// collection reads.
package paging

import "math"

const (
	// DefaultSize is used when a request does not specify a page size.
	DefaultSize = 20
	// MaxSize caps the page size a client can ask for.
	MaxSize = 100
	// MaxPage caps the page index so Offset stays within int32 at any size.
	MaxPage = math.MaxInt32 / MaxSize
)

// Request selects a zero-based page of a collection.
type Request struct {
	Page int
	Size int
}

// Normalize clamps the request to valid bounds.
func (r Request) Normalize() Request {
	switch {
	case r.Page < 0:
		r.Page = 0
	case r.Page > MaxPage:
		r.Page = MaxPage
	}
	switch {
	case r.Size <= 0:
		r.Size = DefaultSize
	case r.Size > MaxSize:
		r.Size = MaxSize
	}
	return r
}

// Offset returns the number of rows to skip.
func (r Request) Offset() int {
	r = r.Normalize()
	return r.Page * r.Size
}

// Limit returns the number of rows to return.
func (r Request) Limit() int {
	return r.Normalize().Size
}

// Page is one slice of a collection together with its position.
type Page[T any] struct {
	Items      []T
	Page       int
	Size       int
	TotalItems int64
	TotalPages int
}

// NewPage builds a Page for items fetched with req out of total rows.
func NewPage[T any](items []T, req Request, total int64) Page[T] {
	req = req.Normalize()
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(req.Size) - 1) / int64(req.Size))
	return Page[T]{
		Items:      items,
		Page:       req.Page,
		Size:       req.Size,
		TotalItems: total,
		TotalPages: pages,
	}
}
