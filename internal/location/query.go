// Package location mirrors the list filters and page into a navigable
// location query and detects navigation that did not originate here.
package location

import (
	"maps"
	"net/url"
	"strconv"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

// Reserved query keys for pagination.
const (
	KeyPage     = "page"
	KeyPageSize = "page_size"
)

// Query is a flat location query.
type Query map[string]string

// Encode returns the canonical form with sorted keys.
func (q Query) Encode() string {
	v := make(url.Values, len(q))
	for k, val := range q {
		v.Set(k, val)
	}
	return v.Encode()
}

// Equal compares canonical forms.
func (q Query) Equal(o Query) bool { return maps.Equal(q, o) }

// Clone returns a copy of q.
func (q Query) Clone() Query { return maps.Clone(q) }

// ParseQuery decodes an encoded query. The first value of repeated keys wins.
func ParseQuery(s string) (Query, error) {
	v, err := url.ParseQuery(s)
	if err != nil {
		return nil, err
	}
	q := make(Query, len(v))
	for k := range v {
		q[k] = v.Get(k)
	}
	return q, nil
}

// Navigation is a decoded location.
type Navigation struct {
	Filters  domain.Patch
	Page     int
	PageSize int
	Query    Query
}

// Codec converts between list state and queries. Only values that differ
// from the defaults are written.
type Codec struct {
	Defaults        domain.FilterState
	DefaultPageSize int
}

// Encode serializes filters and the page window. A default filter that has
// been cleared is written with an empty value so decoding does not restore
// it.
func (c Codec) Encode(filters domain.FilterState, p domain.Pagination) Query {
	q := make(Query)
	for k, v := range filters.Values() {
		if def, ok := c.Defaults.Get(k); ok && def == v {
			continue
		}
		q[k] = v
	}
	for k := range c.Defaults.Values() {
		if _, ok := filters.Get(k); !ok {
			q[k] = ""
		}
	}
	if p.Page > 1 {
		q[KeyPage] = strconv.Itoa(p.Page)
	}
	if p.PageSize > 0 && p.PageSize != c.DefaultPageSize {
		q[KeyPageSize] = strconv.Itoa(p.PageSize)
	}
	return q
}

// Decode expands q back into a full filter patch on top of the defaults.
// Unparsable page values fall back to page 1 and the default size.
func (c Codec) Decode(q Query) Navigation {
	nav := Navigation{
		Filters:  c.Defaults.Patch(),
		Page:     1,
		PageSize: c.DefaultPageSize,
		Query:    q.Clone(),
	}
	for k, v := range q {
		switch k {
		case KeyPage:
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				nav.Page = n
			}
		case KeyPageSize:
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				nav.PageSize = n
			}
		default:
			nav.Filters[k] = v
		}
	}
	return nav
}
