package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dthanhvu03/threadsauto-sub000/cmd"
	"github.com/dthanhvu03/threadsauto-sub000/internal/config"
	"github.com/dthanhvu03/threadsauto-sub000/internal/devserver"
	"github.com/dthanhvu03/threadsauto-sub000/internal/hooks"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/realtime"
)

const serveCommandLong = `Run the development backend.

Serves GET/POST /api/jobs and GET/PATCH /api/jobs/{id} over the job store,
announces every mutation on /ws to the room of the job's account and exposes
/metrics. Executable scripts in hooks_dir/pre-create can reject new jobs;
scripts in post-create and post-update run after the mutation.`

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var (
		addr  string
		seed  int
		every int
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development backend",
		Long:  serveCommandLong,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if addr == "" {
				addr = config.Get("listen_addr", "127.0.0.1:8080")
			}
			if !c.Flags().Changed("rate-limit-every") {
				every = config.GetInt("rate_limit_every", 0)
			}
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, addr, seed, every)
		},
	}
	flags := serveCmd.Flags()
	flags.StringVar(&addr, "addr", "", "Listen address (default: listen_addr from config)")
	flags.IntVar(&seed, "seed", 0, "Insert N sample jobs before serving")
	flags.IntVar(&every, "rate-limit-every", 0, "Answer every N-th list request with 429")
	return serveCmd
}

func runServe(ctx context.Context, addr string, seed, rateLimitEvery int) error {
	log := logging.GetGlobal().With("command", "serve")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if seed > 0 {
		if _, err := seedStore(ctx, store, seed, log); err != nil {
			return err
		}
	}

	runner := hooks.NewRunner(hooks.Config{
		Dir:         config.Get("hooks_dir", ""),
		FailureMode: config.Get("hooks_failure_mode", hooks.FailureWarn),
		Timeout:     config.GetDuration("hooks_timeout", 0),
		MaxAsync:    config.GetInt("hooks_max_async", 0),
		Logger:      log,
	})
	defer runner.Wait()

	_, registry := newMetrics()
	srv, err := devserver.New(devserver.Config{
		Store:          store,
		Hub:            realtime.NewHub(log),
		Token:          config.Get("api_token", ""),
		Gatherer:       registry,
		RateLimitEvery: rateLimitEvery,
		Hooks:          runner,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
	g.Go(func() error {
		return serveMetrics(gctx, config.Get("metrics_addr", ""), registry, log)
	})
	return g.Wait()
}

func init() {
	cmd.RootCmd.AddCommand(NewServeCmd())
}
