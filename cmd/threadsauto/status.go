package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dthanhvu03/threadsauto-sub000/cmd"
	"github.com/dthanhvu03/threadsauto-sub000/internal/config"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	"github.com/dthanhvu03/threadsauto-sub000/internal/formatter"
	"github.com/dthanhvu03/threadsauto-sub000/internal/listsync"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
)

const statusCommandLong = `Print a one-line job summary for status bars and prompts.

OPTIONS:
    --format=<format>    Preset name or custom template (default: status_format from config)

PRESETS:
    compact      [{{failed-count}}/{{total-count}}] {{latest-title}}
    detailed     {{pending-count}} pending, {{running-count}} running, {{failed-count}} failed | Latest: {{latest-title}}
    json         {"total":{{total-count}},"active":{{active-count}},"failed":{{failed-count}}}
    count-only   {{total-count}}
    failures     {{failed-count}} failed
    account      {{account}}: {{active-count}} active

VARIABLES:
    {{account}}           Account the summary is scoped to
    {{total-count}}       Number of matching jobs
    {{pending-count}}     Jobs waiting to run
    {{running-count}}     Jobs running now
    {{completed-count}}   Jobs that finished
    {{failed-count}}      Jobs that failed
    {{active-count}}      Pending plus running
    {{has-failed}}        true/false if any job failed
    {{has-active}}        true/false if any job is pending or running
    {{latest-title}}      Title of the newest job
    {{latest-status}}     Status of the newest job
    {{latest-platform}}   Platform of the newest job

EXAMPLES:
    threadsauto status
    threadsauto status --format=detailed
    threadsauto status --account acct-1 --format='{{account}} F:{{failed-count}}'`

// NewStatusCmd creates the status command with explicit dependencies.
func NewStatusCmd(newSrc listSourceFactory) *cobra.Command {
	if newSrc == nil {
		panic("NewStatusCmd: source factory dependency cannot be nil")
	}

	var (
		formatFlag string
		account    string
		platform   string
		source     string
	)
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show a job status summary",
		Long:  statusCommandLong,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			format := formatFlag
			if !c.Flag("format").Changed {
				format = config.Get("status_format", "compact")
			}
			template, err := formatter.Resolve(formatter.NewPresetRegistry(), format)
			if err != nil {
				return err
			}
			if err := formatter.NewTemplateEngine().Validate(template); err != nil {
				return fmt.Errorf("invalid template: %w", err)
			}

			if account == "" {
				account = config.Get("account_id", "")
			}
			filters, warnings := domain.NewFilterState(domain.Patch{
				domain.KeyAccountID: account,
				domain.KeyPlatform:  platform,
			})
			if len(warnings) > 0 {
				return fmt.Errorf("invalid filters: %w", warnings[0])
			}

			log := logging.GetGlobal().With("command", "status")
			src, closeSource, err := newSrc(source, log)
			if err != nil {
				return err
			}
			defer closeSource()

			vars, err := summarize(c.Context(), src, filters)
			if err != nil {
				return err
			}
			return writeStatus(c.OutOrStdout(), template, vars)
		},
	}

	flags := statusCmd.Flags()
	flags.StringVar(&formatFlag, "format", "compact", "Output format: preset name or custom template")
	flags.StringVar(&account, "account", "", "Scope to an account ID (default: account_id from config)")
	flags.StringVar(&platform, "platform", "", "Scope to a platform: threads, facebook, instagram")
	flags.StringVar(&source, "source", sourceAPI, "Data source: api (REST backend) or db (local store)")
	return statusCmd
}

// summarize fetches the newest job and one count per status concurrently.
// Counts come from the page totals, so each fetch asks for a single row.
func summarize(ctx context.Context, src listsync.DataSource[domain.Job], filters domain.FilterState) (formatter.VariableContext, error) {
	vars := formatter.VariableContext{}
	if account, ok := filters.Get(domain.KeyAccountID); ok {
		vars.Account = account
	}
	one := domain.Pagination{Page: 1, PageSize: 1}

	counts := make([]int, len(domain.JobStatuses))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := src.FetchList(gctx, filters, one)
		if err != nil {
			return fmt.Errorf("fetch latest: %w", err)
		}
		vars.TotalCount = page.Total
		if len(page.Items) > 0 {
			latest := page.Items[0]
			vars.Latest = &latest
		}
		return nil
	})
	for i, status := range domain.JobStatuses {
		g.Go(func() error {
			scoped, _ := domain.NewFilterState(mergePatch(filters.Patch(), domain.Patch{domain.KeyStatus: string(status)}))
			page, err := src.FetchList(gctx, scoped, one)
			if err != nil {
				return fmt.Errorf("count %s: %w", status, err)
			}
			counts[i] = page.Total
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return formatter.VariableContext{}, err
	}
	for i, status := range domain.JobStatuses {
		vars.SetCount(status, counts[i])
	}
	return vars, nil
}

func mergePatch(base, over domain.Patch) domain.Patch {
	out := make(domain.Patch, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func writeStatus(w io.Writer, template string, vars formatter.VariableContext) error {
	result, err := formatter.NewTemplateEngine().Substitute(template, vars)
	if err != nil {
		return fmt.Errorf("template substitution error: %w", err)
	}
	_, err = fmt.Fprintln(w, result)
	return err
}

func init() {
	cmd.RootCmd.AddCommand(NewStatusCmd(newSource))
}
