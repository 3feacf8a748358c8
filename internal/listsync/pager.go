package listsync

import "github.com/dthanhvu03/threadsauto-sub000/internal/domain"

const (
	defaultPageSize    = 20
	defaultMaxPageSize = 200
)

// Pager owns page, page size and total for one list. Total is only written
// from fetch results. Pager is not safe for concurrent use.
type Pager struct {
	page        int
	pageSize    int
	total       int
	maxPageSize int
}

// NewPager returns a pager on page 1.
func NewPager(pageSize, maxPageSize int) *Pager {
	if maxPageSize <= 0 {
		maxPageSize = defaultMaxPageSize
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Pager{page: 1, pageSize: min(pageSize, maxPageSize), maxPageSize: maxPageSize}
}

// State returns the current pagination.
func (p *Pager) State() domain.Pagination {
	return domain.Pagination{Page: p.page, PageSize: p.pageSize, Total: p.total}
}

// TotalPages returns ceil(total/pageSize), at least 1.
func (p *Pager) TotalPages() int { return p.State().TotalPages() }

// Window returns the offset and limit of the current page.
func (p *Pager) Window() (offset, limit int) {
	s := p.State()
	return s.Offset(), s.Limit()
}

// GoToPage clamps n into [1, TotalPages] and reports whether the page moved.
func (p *Pager) GoToPage(n int) bool {
	n = min(max(n, 1), p.TotalPages())
	if n == p.page {
		return false
	}
	p.page = n
	return true
}

// ChangePageSize clamps n into [1, max page size] and returns to page 1.
func (p *Pager) ChangePageSize(n int) bool {
	n = min(max(n, 1), p.maxPageSize)
	if n == p.pageSize {
		return false
	}
	p.pageSize = n
	p.page = 1
	return true
}

// OnFilterChanged returns to page 1.
func (p *Pager) OnFilterChanged() bool {
	if p.page == 1 {
		return false
	}
	p.page = 1
	return true
}

// Restore adopts a page window decoded from the location. The page is not
// clamped against total because total belongs to the previous filters.
func (p *Pager) Restore(page, pageSize int) bool {
	page = max(page, 1)
	if pageSize <= 0 {
		pageSize = p.pageSize
	}
	pageSize = min(pageSize, p.maxPageSize)
	if page == p.page && pageSize == p.pageSize {
		return false
	}
	p.page, p.pageSize = page, pageSize
	return true
}

// SetTotal records the total from a fetch. When the current page no longer
// exists it moves to the last page and reports true.
func (p *Pager) SetTotal(total int) bool {
	p.total = max(total, 0)
	if last := p.TotalPages(); p.page > last {
		p.page = last
		return true
	}
	return false
}
