package models

// Paging defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// MaxPage bounds Page so that Offset stays far from int overflow.
const MaxPage = 1_000_000

// PageRequest selects a zero-based page of a listing.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps a request into range: pages outside [0, MaxPage]
// become 0 or MaxPage, sizes outside [1, MaxPageSize] become
// DefaultPageSize or MaxPageSize.
func (p PageRequest) Normalize() PageRequest {
	switch {
	case p.Page < 0:
		p.Page = 0
	case p.Page > MaxPage:
		p.Page = MaxPage
	}
	switch {
	case p.Size <= 0:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page is one slice of a listing plus the totals needed to page through
// the rest.
type Page[T any] struct {
	Content       []T   `json:"content"`
	PageNumber    int   `json:"pageNumber"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// NewPage assembles a Page. A nil content slice is replaced by an empty
// one so it encodes as [] rather than null.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		PageNumber:    req.Page,
		PageSize:      req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}
