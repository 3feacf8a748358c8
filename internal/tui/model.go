// Package tui is the interactive job list. It renders controller snapshots
// and turns key presses into controller intents.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	"github.com/dthanhvu03/threadsauto-sub000/internal/listsync"
	"github.com/dthanhvu03/threadsauto-sub000/internal/tui/render"
)

const (
	headerFooterLines     = 5
	defaultViewportWidth  = 100
	defaultViewportHeight = 24
	pageSizeStep          = 10
)

// JobSnapshot is the controller view state the model renders.
type JobSnapshot = listsync.Snapshot[domain.Job]

// Controller is the subset of the list controller the model drives.
type Controller interface {
	Snapshot() JobSnapshot
	Subscribe() (<-chan JobSnapshot, func())
	SetFilters(patch domain.Patch) (bool, []*domain.Warning)
	NextPage() bool
	PrevPage() bool
	ChangePageSize(n int) bool
	ManualRefresh() error
	DismissNotice() bool
}

var _ Controller = (*listsync.Controller[domain.Job])(nil)

// History moves through previously visited list locations.
type History interface {
	Back() bool
	Forward() bool
}

type snapshotMsg JobSnapshot

type subscriptionClosedMsg struct{}

type refreshFailedMsg struct{ err error }

// Option configures a Model.
type Option func(*Model)

// WithHistory enables back and forward navigation.
func WithHistory(h History) Option {
	return func(m *Model) { m.history = h }
}

// WithClock overrides the time source used for job ages.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// Model represents the TUI model for bubbletea.
type Model struct {
	ctrl        Controller
	history     History
	now         func() time.Time
	updates     <-chan JobSnapshot
	unsubscribe func()

	snap    JobSnapshot
	table   table.Model
	search  textinput.Model
	width   int
	height  int
	status  string
	closed  bool
	exiting bool
}

// NewModel subscribes to ctrl and builds the initial view.
func NewModel(ctrl Controller, opts ...Option) *Model {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search title or content"
	search.CharLimit = 120

	m := &Model{
		ctrl:   ctrl,
		now:    time.Now,
		search: search,
		width:  defaultViewportWidth,
		height: defaultViewportHeight,
	}
	for _, opt := range opts {
		opt(m)
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("34"))
	m.table = table.New(
		table.WithColumns(render.Columns(m.width)),
		table.WithFocused(true),
		table.WithHeight(m.tableHeight()),
		table.WithStyles(styles),
	)

	m.updates, m.unsubscribe = ctrl.Subscribe()
	m.apply(ctrl.Snapshot())
	return m
}

// Init starts listening for snapshots.
func (m *Model) Init() tea.Cmd {
	return waitForSnapshot(m.updates)
}

// Update handles messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.apply(JobSnapshot(msg))
		return m, waitForSnapshot(m.updates)
	case subscriptionClosedMsg:
		m.closed = true
		return m, nil
	case refreshFailedMsg:
		m.status = msg.err.Error()
		return m, nil
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}
	return m, nil
}

// Snapshot returns the snapshot currently on screen.
func (m *Model) Snapshot() JobSnapshot { return m.snap }

// SearchMode reports whether the search input has focus.
func (m *Model) SearchMode() bool { return m.search.Focused() }

func (m *Model) apply(s JobSnapshot) {
	m.snap = s
	now := m.now()
	rows := make([]table.Row, 0, len(s.Items))
	for _, job := range s.Items {
		rows = append(rows, render.Row(job, m.width, now))
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
	if !m.search.Focused() {
		q, _ := s.Filters.Get(domain.KeyQuery)
		m.search.SetValue(q)
	}
}

func (m *Model) resize(width, height int) {
	if width > 0 {
		m.width = width
	}
	if height > 0 {
		m.height = height
	}
	m.table.SetColumns(render.Columns(m.width))
	m.table.SetHeight(m.tableHeight())
	m.apply(m.snap)
}

func (m *Model) tableHeight() int {
	h := m.height - headerFooterLines
	if h < 1 {
		return 1
	}
	return h
}

func (m *Model) quit() tea.Cmd {
	m.exiting = true
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return tea.Quit
}

func waitForSnapshot(ch <-chan JobSnapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return snapshotMsg(s)
	}
}
