// Package hooks runs executable scripts when the dev server mutates jobs.
//
// Scripts live in <dir>/<point>/ and run in name order with the job passed
// through JOB_* environment variables. Pre hooks run synchronously and can
// veto the mutation; post hooks run in the background.
package hooks

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
)

// Hook points.
const (
	PreCreate  = "pre-create"
	PostCreate = "post-create"
	PostUpdate = "post-update"
)

// Failure modes.
const (
	FailureAbort  = "abort"
	FailureWarn   = "warn"
	FailureIgnore = "ignore"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxAsync = 10
)

// ErrRejected wraps the failure of a pre hook running in abort mode.
var ErrRejected = stderrors.New("rejected by hook")

// Config configures a Runner.
type Config struct {
	// Dir holds one subdirectory per hook point. Empty disables hooks.
	Dir         string
	FailureMode string
	Timeout     time.Duration
	MaxAsync    int
	Logger      logging.Logger
}

// Runner executes hook scripts.
type Runner struct {
	dir         string
	failureMode string
	timeout     time.Duration
	sem         *semaphore.Weighted
	maxAsync    int64
	log         logging.Logger
	wg          sync.WaitGroup
}

// NewRunner creates a runner. A nil runner runs nothing.
func NewRunner(cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAsync <= 0 {
		cfg.MaxAsync = defaultMaxAsync
	}
	switch cfg.FailureMode {
	case FailureAbort, FailureWarn, FailureIgnore:
	default:
		cfg.FailureMode = FailureWarn
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{
		dir:         cfg.Dir,
		failureMode: cfg.FailureMode,
		timeout:     cfg.Timeout,
		sem:         semaphore.NewWeighted(int64(cfg.MaxAsync)),
		maxAsync:    int64(cfg.MaxAsync),
		log:         log.With("component", "hooks"),
	}
}

// Run executes the scripts of point synchronously. In abort mode the first
// failing script stops the run and its error wraps ErrRejected.
func (r *Runner) Run(ctx context.Context, point string, job domain.Job) error {
	if r == nil {
		return nil
	}
	scripts, err := r.scripts(point)
	if err != nil || len(scripts) == 0 {
		return err
	}
	env := r.env(point, job)
	r.log.Debug("running hooks", "point", point, "count", len(scripts))
	for _, script := range scripts {
		if err := r.exec(ctx, script, env); err != nil {
			switch r.failureMode {
			case FailureAbort:
				return fmt.Errorf("%w: %s: %v", ErrRejected, filepath.Base(script), err)
			case FailureWarn:
				r.log.Warn("hook failed", "point", point, "script", filepath.Base(script), "error", err)
			}
		}
	}
	return nil
}

// Go executes the scripts of point in the background. Runs beyond the
// concurrency limit are skipped. Failures are logged, never returned.
func (r *Runner) Go(point string, job domain.Job) {
	if r == nil {
		return
	}
	scripts, err := r.scripts(point)
	if err != nil {
		r.log.Warn("list hooks failed", "point", point, "error", err)
		return
	}
	if len(scripts) == 0 {
		return
	}
	if !r.sem.TryAcquire(1) {
		r.log.Warn("too many hooks pending, skipping", "point", point, "max", r.maxAsync)
		return
	}
	env := r.env(point, job)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		for _, script := range scripts {
			if err := r.exec(context.Background(), script, env); err != nil && r.failureMode != FailureIgnore {
				r.log.Warn("async hook failed", "point", point, "script", filepath.Base(script), "error", err)
			}
		}
	}()
}

// Wait blocks until background runs finish.
func (r *Runner) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func (r *Runner) scripts(point string) ([]string, error) {
	if r.dir == "" {
		return nil, nil
	}
	hookDir := filepath.Join(r.dir, point)
	entries, err := os.ReadDir(hookDir)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read hook dir %s: %w", hookDir, err)
	}
	var scripts []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(hookDir, e.Name())
		info, err := os.Stat(path)
		if err != nil || info.Mode()&0o111 == 0 {
			// Not executable
			continue
		}
		scripts = append(scripts, path)
	}
	sort.Strings(scripts)
	return scripts, nil
}

func (r *Runner) env(point string, job domain.Job) []string {
	return append(os.Environ(),
		"HOOK_POINT="+point,
		"HOOK_TIMESTAMP="+time.Now().UTC().Format(time.RFC3339),
		"JOB_ID="+job.ID,
		"JOB_ACCOUNT_ID="+job.AccountID,
		"JOB_PLATFORM="+job.Platform.String(),
		"JOB_STATUS="+job.Status.String(),
		"JOB_TITLE="+job.Title,
		"JOB_RETRIES="+strconv.Itoa(job.Retries),
	)
}

func (r *Runner) exec(ctx context.Context, script string, env []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, script)
	cmd.Env = env
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("timed out after %s", r.timeout)
	}
	if err != nil {
		return fmt.Errorf("%v, output: %s", err, output)
	}
	r.log.Debug("hook completed", "script", filepath.Base(script), "duration", time.Since(start))
	return nil
}
