package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// MaxPerPage bounds the page size a client may request.
const MaxPerPage = 100

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Bounds returns the half-open index range of the current page within Total items. Pages
// past the end yield an empty range.
func (p Pagination) Bounds() (start, end int) {
	if p.PerPage <= 0 || p.Total <= 0 {
		return 0, 0
	}
	page := max(p.Page, 1)
	if page-1 >= (p.Total+p.PerPage-1)/p.PerPage {
		return p.Total, p.Total
	}
	start = (page - 1) * p.PerPage
	end = start + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return start, end
}
