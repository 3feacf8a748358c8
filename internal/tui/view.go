package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dthanhvu03/threadsauto-sub000/internal/tui/render"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	emptyStyle = lipgloss.NewStyle().Faint(true).Padding(1, 2)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("31"))
)

// View renders the list.
func (m *Model) View() string {
	if m.exiting {
		return ""
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render("threadsauto jobs"))
	b.WriteString("\n")
	b.WriteString(render.StatusLine(render.StatusState{
		Page:       m.snap.Page,
		TotalPages: m.snap.TotalPages,
		PageSize:   m.snap.PageSize,
		Total:      m.snap.Total,
		Filters:    m.snap.Filters,
		Room:       m.snap.Room,
		Loading:    m.snap.IsLoading,
	}))
	b.WriteString("\n")

	if len(m.snap.Items) == 0 && !m.snap.IsLoading {
		b.WriteString(emptyStyle.Render("No jobs match the current filters."))
	} else {
		b.WriteString(m.table.View())
	}
	b.WriteString("\n")

	if notice := render.Notice(m.snap.Notice); notice != "" {
		b.WriteString(notice)
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(errStyle.Render(m.status))
		b.WriteString("\n")
	}
	if m.closed {
		b.WriteString(errStyle.Render("controller stopped"))
		b.WriteString("\n")
	}
	if m.search.Focused() {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}
	b.WriteString(render.Footer(render.FooterState{
		SearchMode:  m.search.Focused(),
		SearchQuery: m.search.Value(),
		HasHistory:  m.history != nil,
	}))
	return b.String()
}
