// Package format provides output formatting for the list command.
package format

import (
	"io"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

// Result is one page of jobs together with its position in the listing.
type Result struct {
	Items      []domain.Job `json:"items"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
}

// NewResult combines a fetched page with the window that was requested.
func NewResult(page domain.Page[domain.Job], p domain.Pagination) Result {
	p.Total = page.Total
	items := page.Items
	if items == nil {
		items = []domain.Job{}
	}
	return Result{
		Items:      items,
		Total:      page.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages(),
	}
}

// Formatter defines the interface for output formatters.
type Formatter interface {
	// FormatResult writes one page of jobs.
	FormatResult(result Result, writer io.Writer) error
}

// FormatterType represents the type of formatter to use.
type FormatterType string

const (
	// FormatterTypeSimple displays jobs as ID, status and title.
	FormatterTypeSimple FormatterType = "simple"

	// FormatterTypeTable displays jobs in a table with headers.
	FormatterTypeTable FormatterType = "table"

	// FormatterTypeCompact displays only titles.
	FormatterTypeCompact FormatterType = "compact"

	// FormatterTypeJSON displays the page as JSON.
	FormatterTypeJSON FormatterType = "json"
)

// Types lists the known formatter types.
var Types = []FormatterType{FormatterTypeSimple, FormatterTypeTable, FormatterTypeCompact, FormatterTypeJSON}

// NewFormatter creates a new formatter of the specified type.
func NewFormatter(formatterType FormatterType) Formatter {
	switch formatterType {
	case FormatterTypeTable:
		return NewTableFormatter()
	case FormatterTypeCompact:
		return NewCompactFormatter()
	case FormatterTypeJSON:
		return NewJSONFormatter()
	default:
		// Default to simple formatter for unknown types
		return NewSimpleFormatter()
	}
}
