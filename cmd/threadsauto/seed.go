package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dthanhvu03/threadsauto-sub000/cmd"
	"github.com/dthanhvu03/threadsauto-sub000/internal/colors"
	"github.com/dthanhvu03/threadsauto-sub000/internal/config"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/storage"
)

const defaultSeedAccounts = "acct-1,acct-2,acct-3"

// NewSeedCmd creates the seed command.
func NewSeedCmd() *cobra.Command {
	var (
		count    int
		accounts string
		rngSeed  uint64
	)
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert sample jobs into the local store",
		Long: `Insert sample jobs into the store named by db_driver and db_dsn.

Jobs are spread over the given accounts, every platform and every status,
with creation times in the last hour. The same --rng-seed yields the same
jobs; IDs are always fresh so repeated runs add to the store.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			log := logging.GetGlobal().With("command", "seed")
			opts := seedOptions{accounts: splitAccounts(accounts), rngSeed: rngSeed}
			n, err := seedStore(c.Context(), store, count, log, opts)
			if err != nil {
				return err
			}
			colors.Success(fmt.Sprintf("inserted %d jobs into %s (%s)", n, config.Get("db_dsn", ""), store.Driver()))
			return nil
		},
	}
	flags := seedCmd.Flags()
	flags.IntVar(&count, "count", 50, "Number of jobs to insert")
	flags.StringVar(&accounts, "accounts", defaultSeedAccounts, "Comma separated account IDs")
	flags.Uint64Var(&rngSeed, "rng-seed", 0, "Random seed (default: current time)")
	return seedCmd
}

type seedOptions struct {
	accounts []string
	rngSeed  uint64
}

// seedStore inserts n sample jobs with fresh IDs.
func seedStore(ctx context.Context, store *storage.Store, n int, log logging.Logger, opts ...seedOptions) (int, error) {
	o := seedOptions{accounts: splitAccounts(defaultSeedAccounts)}
	if len(opts) > 0 {
		o = opts[0]
	}
	now := time.Now()
	if o.rngSeed == 0 {
		o.rngSeed = uint64(now.UnixNano()) //nolint:gosec // seed only
	}
	jobs := storage.SampleJobs(n, o.accounts, now, o.rngSeed)
	for i := range jobs {
		jobs[i].ID = ""
	}
	inserted, err := store.Seed(ctx, jobs)
	if err != nil {
		return inserted, err
	}
	log.Info("seeded jobs", "count", inserted, "accounts", strings.Join(o.accounts, ","))
	return inserted, nil
}

func splitAccounts(raw string) []string {
	var out []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func init() {
	cmd.RootCmd.AddCommand(NewSeedCmd())
}
