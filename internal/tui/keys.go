package tui

import (
	"slices"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

var (
	statusCycle   = append([]string{""}, statusNames()...)
	platformCycle = []string{"", string(domain.PlatformThreads), string(domain.PlatformFacebook), string(domain.PlatformInstagram)}
)

func statusNames() []string {
	out := make([]string, 0, len(domain.JobStatuses))
	for _, s := range domain.JobStatuses {
		out = append(out, string(s))
	}
	return out
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, m.quit()
	}
	if m.search.Focused() {
		return m.handleSearchKey(msg)
	}

	switch msg.String() {
	case "q", "esc":
		return m, m.quit()
	case "n", "right":
		m.ctrl.NextPage()
	case "p", "left":
		m.ctrl.PrevPage()
	case "+", "=":
		m.ctrl.ChangePageSize(m.snap.PageSize + pageSizeStep)
	case "-", "_":
		m.ctrl.ChangePageSize(max(1, m.snap.PageSize-pageSizeStep))
	case "r":
		m.status = ""
		return m, m.refresh()
	case "s":
		m.cycleFilter(domain.KeyStatus, statusCycle)
	case "f":
		m.cycleFilter(domain.KeyPlatform, platformCycle)
	case "c":
		m.ctrl.SetFilters(domain.Patch{
			domain.KeyStatus:   nil,
			domain.KeyPlatform: nil,
			domain.KeyQuery:    nil,
		})
	case "x":
		m.ctrl.DismissNotice()
		m.status = ""
	case "[":
		if m.history != nil {
			m.history.Back()
		}
	case "]":
		if m.history != nil {
			m.history.Forward()
		}
	case "/":
		return m, m.search.Focus()
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		m.search.Blur()
		return m, nil
	}

	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if after := m.search.Value(); after != before {
		// Every keystroke is forwarded; the controller debounces.
		m.ctrl.SetFilters(domain.Patch{domain.KeyQuery: after})
	}
	return m, cmd
}

// cycleFilter advances key to the next value in values. The empty value
// clears the filter.
func (m *Model) cycleFilter(key string, values []string) {
	current, _ := m.snap.Filters.Get(key)
	i := slices.Index(values, current)
	next := values[(i+1)%len(values)]
	m.ctrl.SetFilters(domain.Patch{key: next})
}

func (m *Model) refresh() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.ManualRefresh(); err != nil {
			return refreshFailedMsg{err: err}
		}
		return nil
	}
}
