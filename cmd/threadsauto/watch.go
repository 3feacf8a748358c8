package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/dthanhvu03/threadsauto-sub000/cmd"
	"github.com/dthanhvu03/threadsauto-sub000/internal/config"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	"github.com/dthanhvu03/threadsauto-sub000/internal/listsync"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/tui"
)

const watchCommandLong = `Interactive job list kept in sync with the backend.

Filter edits are debounced, page changes fetch immediately, push events from
ws_url refresh the list when it is idle and the list is polled every
poll_interval. The filters and page are mirrored into location_file when set.

KEY BINDINGS:
    j/k         Move up/down in the list
    n/p         Next/previous page
    +/-         Grow/shrink the page size
    /           Search title and content (ESC or Enter to leave)
    s           Cycle the status filter
    f           Cycle the platform filter
    c           Clear status, platform and search
    r           Refresh now
    x           Dismiss the current notice
    [ / ]       Back/forward through visited locations
    q           Quit`

type watchDeps struct {
	runner tui.ProgramRunner
}

// NewWatchCmd creates the watch command with explicit dependencies.
func NewWatchCmd(deps watchDeps) *cobra.Command {
	if deps.runner == nil {
		panic("NewWatchCmd: runner dependency cannot be nil")
	}

	var filters filterFlags
	var source string
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Interactive job list",
		Long:  watchCommandLong,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if err := filters.validate(); err != nil {
				return fmt.Errorf("invalid filters: %w", err)
			}
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, deps, filters.patch(), source)
		},
	}
	filters.bind(watchCmd)
	watchCmd.Flags().StringVar(&source, "source", sourceAPI, "Data source: api (REST backend) or db (local store)")
	return watchCmd
}

func runWatch(ctx context.Context, deps watchDeps, defaults domain.Patch, sourceKind string) error {
	log := logging.GetGlobal().With("command", "watch")

	src, closeSource, err := newSource(sourceKind, log)
	if err != nil {
		return err
	}
	defer closeSource()

	channel, err := newChannel(log)
	if err != nil {
		return err
	}
	provider, history, closeLocation := newLocation(nil, log)
	defer closeLocation()
	recorder, registry := newMetrics()

	ctrl, err := listsync.New(controllerConfig(defaults), listsync.Deps[domain.Job]{
		Source:   src,
		Channel:  channel,
		Location: provider,
		Clock:    clock.RealClock{},
		Logger:   log,
		Metrics:  recorder,
	})
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	if err := ctrl.Start(gctx); err != nil {
		return err
	}

	var opts []tui.Option
	if history != nil {
		opts = append(opts, tui.WithHistory(history))
	}
	model := tui.NewModel(ctrl, opts...)

	g.Go(func() error {
		defer cancel()
		err := deps.runner.Run(gctx, model)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return serveMetrics(gctx, config.Get("metrics_addr", ""), registry, log)
	})
	return g.Wait()
}

func init() {
	runner := tui.NewDefaultProgramRunner(tea.WithMouseCellMotion())
	cmd.RootCmd.AddCommand(NewWatchCmd(watchDeps{runner: runner}))
}
