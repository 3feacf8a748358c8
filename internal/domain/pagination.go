package domain

// Pagination is the page window requested from a data source together with
// the total reported by the last fetch.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// TotalPages returns the number of pages, never less than one.
func (p Pagination) TotalPages() int {
	if p.PageSize <= 0 || p.Total <= 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// Offset returns the index of the first item on the page.
func (p Pagination) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Limit returns the page size.
func (p Pagination) Limit() int { return p.PageSize }

// Request strips Total so that two requests for the same window compare equal.
func (p Pagination) Request() Pagination {
	return Pagination{Page: p.Page, PageSize: p.PageSize}
}

// Page is one page of results.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}
