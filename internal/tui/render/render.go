// Package render formats jobs, status lines and help text for the list view.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/dthanhvu03/threadsauto-sub000/internal/colors"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	apperrors "github.com/dthanhvu03/threadsauto-sub000/internal/errors"
)

const (
	idWidth              = 10
	accountWidth         = 12
	platformWidth        = 10
	statusWidth          = 11
	retriesWidth         = 7
	ageWidth             = 5
	spacesBetweenColumns = 12
	defaultTitleWidth    = 40
	minTitleWidth        = 10
)

// Columns returns the table columns for a terminal of the given width. The
// title column takes whatever is left.
func Columns(width int) []table.Column {
	return []table.Column{
		{Title: "ID", Width: idWidth},
		{Title: "ACCOUNT", Width: accountWidth},
		{Title: "PLATFORM", Width: platformWidth},
		{Title: "STATUS", Width: statusWidth},
		{Title: "RETRIES", Width: retriesWidth},
		{Title: "TITLE", Width: titleWidth(width)},
		{Title: "AGE", Width: ageWidth},
	}
}

// Row renders one job as a table row.
func Row(job domain.Job, width int, now time.Time) table.Row {
	return table.Row{
		Truncate(job.ID, idWidth),
		Truncate(job.AccountID, accountWidth),
		Truncate(job.Platform.String(), platformWidth),
		statusIcon(job.Status) + " " + job.Status.String(),
		strconv.Itoa(job.Retries),
		Truncate(job.Title, titleWidth(width)),
		Age(job.CreatedAt, now),
	}
}

// StatusState is what the status line shows.
type StatusState struct {
	Page       int
	TotalPages int
	PageSize   int
	Total      int
	Filters    domain.FilterState
	Room       string
	Loading    bool
}

// StatusLine renders the page position, active filters and push room.
func StatusLine(s StatusState) string {
	style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ansiColorNumber(colors.Blue)))
	parts := []string{
		fmt.Sprintf("page %d/%d", s.Page, s.TotalPages),
		fmt.Sprintf("%d jobs", s.Total),
		fmt.Sprintf("%d per page", s.PageSize),
	}
	if f := s.Filters.Canonical(); f != "" {
		parts = append(parts, "filters: "+f)
	}
	if s.Room != "" {
		parts = append(parts, "room: "+s.Room)
	}
	line := strings.Join(parts, "  ·  ")
	if s.Loading {
		line += "  ⟳ loading"
	}
	return style.Render(line)
}

// Notice renders the latest notice, or nothing.
func Notice(n *apperrors.Notice) string {
	if n == nil {
		return ""
	}
	var color, prefix string
	switch n.Type {
	case apperrors.NoticeWarning:
		color, prefix = colors.Yellow, "⚠ "
	case apperrors.NoticeInfo:
		color, prefix = colors.Cyan, "ℹ "
	default:
		color, prefix = colors.Red, "✗ "
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(ansiColorNumber(color)))
	return style.Render(prefix + n.Text + "  (x: dismiss)")
}

// FooterState defines the inputs needed to render footer help text.
type FooterState struct {
	SearchMode  bool
	SearchQuery string
	HasHistory  bool
}

// Footer renders the footer with help text.
func Footer(state FooterState) string {
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	var help []string
	if state.SearchMode {
		help = append(help, "Enter/ESC: leave search", fmt.Sprintf("Search: %s", state.SearchQuery))
	} else {
		help = append(help,
			"j/k: move",
			"n/p: page",
			"+/-: page size",
			"/: search",
			"s: status",
			"f: platform",
			"r: refresh",
		)
		if state.HasHistory {
			help = append(help, "[/]: back/forward")
		}
		help = append(help, "q: quit")
	}
	return helpStyle.Render(strings.Join(help, "  |  "))
}

// Truncate shortens value to width runes, marking the cut with "...".
func Truncate(value string, width int) string {
	if width <= 0 || utf8.RuneCountInString(value) <= width {
		return value
	}
	if width <= 3 {
		return string([]rune(value)[:width])
	}
	return string([]rune(value)[:width-3]) + "..."
}

// Age renders the time since t in its largest whole unit.
func Age(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if now.IsZero() {
		now = time.Now()
	}
	duration := now.Sub(t)
	if duration < 0 {
		duration = 0
	}

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	return fmt.Sprintf("%dd", int(duration.Hours()/24))
}

func titleWidth(width int) int {
	if width <= 0 {
		return defaultTitleWidth
	}
	fixed := idWidth + accountWidth + platformWidth + statusWidth + retriesWidth + ageWidth
	w := width - fixed - spacesBetweenColumns
	if w < minTitleWidth {
		return minTitleWidth
	}
	return w
}

func statusIcon(s domain.JobStatus) string {
	switch s {
	case domain.StatusPending:
		return "○"
	case domain.StatusRunning:
		return "◐"
	case domain.StatusCompleted:
		return "●"
	case domain.StatusFailed:
		return "✗"
	default:
		return "?"
	}
}

// ansiColorNumber extracts the color number from an ANSI escape sequence.
// Example: "\033[0;34m" -> "34"
func ansiColorNumber(ansi string) string {
	if len(ansi) < 2 {
		return ""
	}
	lastSemicolon := strings.LastIndex(ansi, ";")
	if lastSemicolon == -1 {
		return ""
	}
	return ansi[lastSemicolon+1 : len(ansi)-1]
}
