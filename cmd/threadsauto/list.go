package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dthanhvu03/threadsauto-sub000/cmd"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	"github.com/dthanhvu03/threadsauto-sub000/internal/format"
	"github.com/dthanhvu03/threadsauto-sub000/internal/listsync"
	"github.com/dthanhvu03/threadsauto-sub000/internal/location"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
)

const listCommandLong = `Fetch one page of jobs and print it.

The fetch goes through the same controller as watch, so rate-limited and
transient failures are retried once before the command fails.

EXAMPLES:
    threadsauto list --status failed --page 2
    threadsauto list --account acct-1 --search launch --format json
    threadsauto list --source db --format table`

type listSourceFactory func(kind string, log logging.Logger) (listsync.DataSource[domain.Job], func(), error)

// NewListCmd creates the list command with explicit dependencies.
func NewListCmd(newSrc listSourceFactory) *cobra.Command {
	if newSrc == nil {
		panic("NewListCmd: source factory dependency cannot be nil")
	}

	var (
		filters  filterFlags
		source   string
		page     int
		pageSize int
		output   string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of jobs",
		Long:  listCommandLong,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if !format.IsValid(output) {
				return fmt.Errorf("unknown format %q", output)
			}
			if page < 1 {
				return fmt.Errorf("--page must be at least 1")
			}
			if err := filters.validate(); err != nil {
				return fmt.Errorf("invalid filters: %w", err)
			}
			log := logging.GetGlobal().With("command", "list")
			src, closeSource, err := newSrc(source, log)
			if err != nil {
				return err
			}
			defer closeSource()

			result, err := fetchPage(c.Context(), src, filters.patch(), page, pageSize, log)
			if err != nil {
				return err
			}
			return format.GetFormatter(output).FormatResult(result, c.OutOrStdout())
		},
	}
	filters.bind(listCmd)
	flags := listCmd.Flags()
	flags.StringVar(&source, "source", sourceAPI, "Data source: api (REST backend) or db (local store)")
	flags.IntVar(&page, "page", 1, "Page number")
	flags.IntVar(&pageSize, "page-size", 0, "Page size (default: page_size from config)")
	flags.StringVar(&output, "format", string(format.FormatterTypeSimple), "Output format: simple, table, compact, json")
	return listCmd
}

// fetchPage runs a controller with no push channel and no polling, seeded
// at the requested page, and returns its first result.
func fetchPage(ctx context.Context, src listsync.DataSource[domain.Job], filters domain.Patch, page, pageSize int, log logging.Logger) (format.Result, error) {
	cfg := controllerConfig(filters)
	cfg.PollInterval = 0

	initial := location.Query{location.KeyPage: strconv.Itoa(page)}
	if pageSize > 0 {
		initial[location.KeyPageSize] = strconv.Itoa(pageSize)
	}
	ctrl, err := listsync.New(cfg, listsync.Deps[domain.Job]{
		Source:   src,
		Location: location.NewMemoryProvider(initial),
		Logger:   log,
	})
	if err != nil {
		return format.Result{}, err
	}
	defer func() { _ = ctrl.Close() }()

	if err := ctrl.Start(ctx); err != nil {
		return format.Result{}, err
	}
	got, err := ctrl.Refresh(ctx)
	if err != nil {
		return format.Result{}, err
	}
	snap := ctrl.Snapshot()
	return format.NewResult(got, domain.Pagination{Page: snap.Page, PageSize: snap.PageSize}), nil
}

func init() {
	cmd.RootCmd.AddCommand(NewListCmd(newSource))
}
