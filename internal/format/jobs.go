package format

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const (
	simpleTitleWidth  = 50
	compactTitleWidth = 60
)

// SimpleFormatter formats jobs as ID, status, creation time and title,
// followed by a page summary.
type SimpleFormatter struct{}

// NewSimpleFormatter creates a new SimpleFormatter.
func NewSimpleFormatter() *SimpleFormatter {
	return &SimpleFormatter{}
}

// FormatResult formats jobs in simple format.
func (f *SimpleFormatter) FormatResult(result Result, writer io.Writer) error {
	for _, j := range result.Items {
		_, err := fmt.Fprintf(writer, "%-12s  %-9s  %-20s  - %s\n",
			j.ID, j.Status, j.CreatedAt.UTC().Format(time.RFC3339), truncate(j.Title, simpleTitleWidth))
		if err != nil {
			return err
		}
	}
	return writeSummary(result, writer)
}

// CompactFormatter formats jobs with the title only.
type CompactFormatter struct{}

// NewCompactFormatter creates a new CompactFormatter.
func NewCompactFormatter() *CompactFormatter {
	return &CompactFormatter{}
}

// FormatResult formats jobs in compact format.
func (f *CompactFormatter) FormatResult(result Result, writer io.Writer) error {
	for _, j := range result.Items {
		if _, err := fmt.Fprintln(writer, truncate(j.Title, compactTitleWidth)); err != nil {
			return err
		}
	}
	return nil
}

// JSONFormatter formats the page as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSONFormatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// FormatResult formats the page as JSON.
func (f *JSONFormatter) FormatResult(result Result, writer io.Writer) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs to JSON: %w", err)
	}
	if _, err = writer.Write(data); err != nil {
		return err
	}
	_, err = fmt.Fprintln(writer)
	return err
}

// GetFormatter returns the formatter named by format, falling back to
// simple for unknown names.
func GetFormatter(format string) Formatter {
	return NewFormatter(FormatterType(format))
}

// IsValid reports whether format names a known formatter.
func IsValid(format string) bool {
	for _, t := range Types {
		if FormatterType(format) == t {
			return true
		}
	}
	return false
}

func writeSummary(result Result, writer io.Writer) error {
	_, err := fmt.Fprintf(writer, "page %d/%d  (%d jobs, %d per page)\n",
		result.Page, result.TotalPages, result.Total, result.PageSize)
	return err
}
