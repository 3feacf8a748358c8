package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/dthanhvu03/threadsauto-sub000/internal/config"
	"github.com/dthanhvu03/threadsauto-sub000/internal/datasource"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	"github.com/dthanhvu03/threadsauto-sub000/internal/listsync"
	"github.com/dthanhvu03/threadsauto-sub000/internal/location"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/metrics"
	"github.com/dthanhvu03/threadsauto-sub000/internal/realtime"
	"github.com/dthanhvu03/threadsauto-sub000/internal/storage"
)

// Data source kinds.
const (
	sourceAPI = "api"
	sourceDB  = "db"
)

// filterFlags are the list filters shared by watch and list.
type filterFlags struct {
	account    string
	platform   string
	status     string
	query      string
	minRetries string
	from       string
	to         string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.account, "account", "", "Filter by account ID (default: account_id from config)")
	flags.StringVar(&f.platform, "platform", "", "Filter by platform: threads, facebook, instagram")
	flags.StringVar(&f.status, "status", "", "Filter by status: pending, running, completed, failed")
	flags.StringVar(&f.query, "search", "", "Search title and content (substring match)")
	flags.StringVar(&f.minRetries, "min-retries", "", "Only jobs retried at least N times")
	flags.StringVar(&f.from, "from", "", "Created at or after (YYYY-MM-DD or RFC3339)")
	flags.StringVar(&f.to, "to", "", "Created at or before (YYYY-MM-DD or RFC3339)")
}

// patch builds the filter patch. Empty flags are dropped by normalization.
func (f *filterFlags) patch() domain.Patch {
	account := f.account
	if account == "" {
		account = config.Get("account_id", "")
	}
	return domain.Patch{
		domain.KeyAccountID:  account,
		domain.KeyPlatform:   f.platform,
		domain.KeyStatus:     f.status,
		domain.KeyQuery:      f.query,
		domain.KeyMinRetries: f.minRetries,
		domain.KeyFrom:       f.from,
		domain.KeyTo:         f.to,
	}
}

// validate rejects filter values that normalization would silently drop.
func (f *filterFlags) validate() error {
	_, warnings := domain.NewFilterState(f.patch())
	if len(warnings) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(warnings))
	for _, w := range warnings {
		msgs = append(msgs, w.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// controllerConfig reads the controller tunables from the loaded config.
func controllerConfig(defaults domain.Patch) listsync.Config {
	return listsync.Config{
		DefaultFilters:      defaults,
		PageSize:            config.GetInt("page_size", 20),
		MaxPageSize:         config.GetInt("max_page_size", 200),
		UserDebounce:        config.GetDuration("user_debounce", 500*time.Millisecond),
		PushDebounce:        config.GetDuration("push_debounce", 5*time.Second),
		RateLimitBackoff:    config.GetDuration("rate_limit_backoff", 5*time.Second),
		RateLimitMaxBackoff: config.GetDuration("rate_limit_max_backoff", 30*time.Second),
		TransientBackoff:    config.GetDuration("transient_backoff", time.Second),
		LocationGrace:       config.GetDuration("location_grace", 300*time.Millisecond),
		PollInterval:        config.GetDuration("poll_interval", 30*time.Second),
		PollJitter:          config.GetFloat("poll_jitter", 0.2),
		PushEvents:          config.GetList("push_events"),
	}
}

// openStore opens the job store named by db_driver and db_dsn.
func openStore() (*storage.Store, error) {
	return storage.Open(config.Get("db_driver", storage.DriverSQLite), config.Get("db_dsn", ""))
}

// newSource builds the data source. The returned cleanup releases it.
func newSource(kind string, log logging.Logger) (listsync.DataSource[domain.Job], func(), error) {
	switch kind {
	case sourceAPI, "":
		client := &http.Client{Timeout: config.GetDuration("api_timeout", 15*time.Second)}
		src := datasource.NewJobsSource(config.Get("api_base_url", datasource.DefaultBaseURL), config.Get("api_token", ""), client, log)
		return src, func() {}, nil
	case sourceDB:
		store, err := openStore()
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q: use %s or %s", kind, sourceAPI, sourceDB)
	}
}

// newChannel returns the websocket push channel, or nil when ws_url is unset.
func newChannel(log logging.Logger) (realtime.Channel, error) {
	raw := config.Get("ws_url", "")
	if raw == "" {
		return nil, nil
	}
	return realtime.NewWSChannel(raw, realtime.WSOptions{Token: config.Get("api_token", ""), Logger: log})
}

// newLocation returns the file provider when location_file is set and a
// memory provider with history otherwise.
func newLocation(initial location.Query, log logging.Logger) (location.Provider, *location.MemoryProvider, func()) {
	if path := config.Get("location_file", ""); path != "" {
		fp := location.NewFileProvider(path, clock.RealClock{}, log)
		return fp, nil, func() { _ = fp.Close() }
	}
	mem := location.NewMemoryProvider(initial)
	return mem, mem, func() {}
}

// newMetrics registers the recorder on a fresh registry.
func newMetrics() (*metrics.Recorder, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return metrics.New(reg), reg
}

// serveMetrics exposes reg on addr until ctx ends. An empty addr is a no-op.
func serveMetrics(ctx context.Context, addr string, reg prometheus.Gatherer, log logging.Logger) error {
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
