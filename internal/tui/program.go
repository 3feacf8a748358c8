package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// ProgramRunner runs a bubbletea program until it quits or ctx ends.
type ProgramRunner interface {
	Run(ctx context.Context, model tea.Model) error
}

// DefaultProgramRunner wraps tea.NewProgram with the alternate screen.
type DefaultProgramRunner struct {
	opts []tea.ProgramOption
}

// NewDefaultProgramRunner creates a runner. Extra options are appended to
// the defaults.
func NewDefaultProgramRunner(opts ...tea.ProgramOption) *DefaultProgramRunner {
	return &DefaultProgramRunner{opts: opts}
}

// Run starts a bubbletea program and blocks until it exits.
func (r *DefaultProgramRunner) Run(ctx context.Context, model tea.Model) error {
	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, r.opts...)
	_, err := tea.NewProgram(model, opts...).Run()
	return err
}
