package query

import "fmt"

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Page is a normalized page request
type Page struct {
	Page  int
	Limit int
}

// NewPage clamps a raw page request: page starts at 1 and limit is kept
// within [1, MaxLimit], with zero or negative meaning DefaultLimit.
func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit}
}

// Offset returns the number of rows skipped before this page
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Clause renders LIMIT and OFFSET as bound parameters following paramOffset
func (p Page) Clause(paramOffset int) (string, []interface{}) {
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", paramOffset+1, paramOffset+2),
		[]interface{}{p.Limit, p.Offset()}
}

// Pagination describes the page returned by a list query
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Paginate builds the pagination summary for a page and total row count
func (p Page) Paginate(total int) Pagination {
	totalPages := 0
	if total > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
		HasPrev:    p.Page > 1,
	}
}
