// Package paging normalizes page-number pagination for list endpoints.
package paging

import "math"

const (
	DefaultSize = 10
	MaxSize     = 100
	// MaxPage keeps Offset well inside int range.
	MaxPage = math.MaxInt32
)

// Request is a normalized page request. Pages are 1-based.
type Request struct {
	Page int
	Size int
}

// New clamps page and size into valid ranges.
func New(page, size int) Request {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return Request{Page: page, Size: size}
}

func (r Request) Limit() int {
	return r.Size
}

func (r Request) Offset() int {
	return (r.Page - 1) * r.Size
}

// Meta is the pagination block returned alongside list results.
type Meta struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalPages  int   `json:"total_pages"`
	TotalCount  int64 `json:"total_count"`
}

func (r Request) Meta(total int64) Meta {
	pages := int((total + int64(r.Size) - 1) / int64(r.Size))
	return Meta{
		CurrentPage: r.Page,
		PageSize:    r.Size,
		TotalPages:  pages,
		TotalCount:  total,
	}
}

// Page is a page of items with its metadata.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Pagination Meta `json:"pagination"`
}

// NewPage builds a Page, substituting an empty slice for nil items.
func NewPage[T any](items []T, req Request, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Pagination: req.Meta(total)}
}
