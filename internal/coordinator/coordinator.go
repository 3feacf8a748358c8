// Package coordinator serializes refresh fetches for one list view.
//
// At most one fetch is in flight and at most one follow-up is queued behind
// it, no matter how many triggers arrive. Callers with the parameters that
// are already being fetched share that session; callers with different
// parameters share the single follow-up, which always carries the newest
// parameters. A caller with a strictly higher priority than the running
// session supersedes it: the session is aborted, its context is cancelled
// and its result is discarded.
package coordinator

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	apperrors "github.com/dthanhvu03/threadsauto-sub000/internal/errors"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/metrics"
)

var (
	// ErrSuperseded is returned to callers whose session was aborted by a
	// higher-priority request.
	ErrSuperseded = stderrors.New("refresh superseded")
	// ErrClosed is returned once the coordinator has been closed.
	ErrClosed = stderrors.New("coordinator closed")
)

const (
	defaultRateLimitBackoff    = 5 * time.Second
	defaultRateLimitMaxBackoff = 30 * time.Second
	defaultTransientBackoff    = time.Second
)

// Priority orders refresh triggers.
type Priority int

const (
	PriorityPush Priority = iota
	PriorityScheduled
	PriorityUser
)

func (p Priority) String() string {
	switch p {
	case PriorityUser:
		return "user"
	case PriorityScheduled:
		return "scheduled"
	default:
		return "push"
	}
}

// State is the coordinator state machine position.
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// Params is the snapshot of everything a fetch depends on.
type Params struct {
	Filters    domain.FilterState
	Pagination domain.Pagination
}

// Equal compares filters and the requested page window; Total is ignored.
func (p Params) Equal(o Params) bool {
	return p.Filters.Equal(o.Filters) && p.Pagination.Request() == o.Pagination.Request()
}

func (p Params) String() string {
	return fmt.Sprintf("%s page=%d size=%d", p.Filters.Canonical(), p.Pagination.Page, p.Pagination.PageSize)
}

// Session describes one refresh attempt.
type Session struct {
	ID          string
	RequestedAt time.Time
	Params      Params
	Priority    Priority
	Aborted     bool
}

// FetchFunc loads one page. It must honour ctx cancellation.
type FetchFunc[T any] func(ctx context.Context, params Params) (domain.Page[T], error)

// Hooks observe session transitions. They run on the coordinator goroutine
// without any coordinator lock held, in completion order. A session counts
// as in flight until its OnResult or OnError hook returns, so deliveries
// never overlap.
type Hooks[T any] struct {
	// OnStart runs before each fetch.
	OnStart func(Session)
	// OnResult receives results that are not about to be replaced by a
	// queued follow-up.
	OnResult func(Session, domain.Page[T])
	// OnError receives failures of sessions that are not aborted and have
	// no queued follow-up.
	OnError func(Session, error)
	// OnIdle runs when the coordinator returns to Idle.
	OnIdle func()
}

// Config tunes retry delays and wires collaborators.
type Config struct {
	// RateLimitBackoff is the delay before the single retry after a rate
	// limit. A larger Retry-After hint from the server wins, up to
	// RateLimitMaxBackoff.
	RateLimitBackoff    time.Duration
	RateLimitMaxBackoff time.Duration
	// TransientBackoff is the delay before the single retry after a
	// transient network failure.
	TransientBackoff time.Duration
	// Clock stamps sessions and times the retry delays.
	Clock   clock.Clock
	Logger  logging.Logger
	Metrics *metrics.Recorder
}

type call[T any] struct {
	session Session
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	page    domain.Page[T]
	err     error
	// delivering is set once the fetch has finished and its hooks run.
	delivering bool
}

// Coordinator is the single-flight refresh state machine.
type Coordinator[T any] struct {
	fetch FetchFunc[T]
	hooks Hooks[T]
	cfg   Config
	log   logging.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	current *call[T]
	next    *call[T]
	closed  bool
}

// New returns an idle coordinator.
func New[T any](fetch FetchFunc[T], cfg Config, hooks Hooks[T]) *Coordinator[T] {
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = defaultRateLimitBackoff
	}
	if cfg.RateLimitMaxBackoff <= 0 {
		cfg.RateLimitMaxBackoff = defaultRateLimitMaxBackoff
	}
	cfg.RateLimitMaxBackoff = max(cfg.RateLimitMaxBackoff, cfg.RateLimitBackoff)
	if cfg.TransientBackoff <= 0 {
		cfg.TransientBackoff = defaultTransientBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator[T]{
		fetch:   fetch,
		hooks:   hooks,
		cfg:     cfg,
		log:     log.With("component", "coordinator"),
		baseCtx: ctx,
		stop:    cancel,
	}
}

// State reports Idle or Refreshing.
func (c *Coordinator[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return StateIdle
	}
	return StateRefreshing
}

// Current returns the in-flight session, if any.
func (c *Coordinator[T]) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Session{}, false
	}
	return c.current.session, true
}

// Request asks for a refresh with params and blocks until the session that
// will serve it completes or ctx ends. Leaving early does not cancel the
// shared session.
func (c *Coordinator[T]) Request(ctx context.Context, params Params, priority Priority) (domain.Page[T], error) {
	target, err := c.enqueue(params, priority)
	if err != nil {
		return domain.Page[T]{}, err
	}
	select {
	case <-target.done:
		return target.page, target.err
	case <-ctx.Done():
		return domain.Page[T]{}, ctx.Err()
	}
}

// Trigger is Request without waiting.
func (c *Coordinator[T]) Trigger(params Params, priority Priority) error {
	_, err := c.enqueue(params, priority)
	return err
}

func (c *Coordinator[T]) enqueue(params Params, priority Priority) (*call[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	switch {
	case c.current == nil:
		cl := c.newCallLocked(params, priority)
		c.launchLocked(cl)
		c.wg.Add(1)
		go c.run(cl)
		return cl, nil

	case c.next != nil:
		c.next.session.Params = params
		c.next.session.RequestedAt = c.cfg.Clock.Now()
		if priority > c.next.session.Priority {
			c.next.session.Priority = priority
		}
		c.cfg.Metrics.Coalesced("follow_up")
		c.maybeSupersedeLocked(priority)
		return c.next, nil

	case !c.current.session.Aborted && !c.current.delivering && c.current.session.Params.Equal(params):
		c.cfg.Metrics.Coalesced("join")
		return c.current, nil

	default:
		c.next = c.newCallLocked(params, priority)
		c.cfg.Metrics.Coalesced("follow_up")
		c.maybeSupersedeLocked(priority)
		return c.next, nil
	}
}

// maybeSupersedeLocked aborts the running session when the queued follow-up
// outranks it and asks for something else.
func (c *Coordinator[T]) maybeSupersedeLocked(priority Priority) {
	cur := c.current
	if cur.session.Aborted || cur.delivering || priority <= cur.session.Priority {
		return
	}
	if c.next.session.Params.Equal(cur.session.Params) {
		return
	}
	cur.session.Aborted = true
	cur.cancel()
	c.cfg.Metrics.Coalesced("supersede")
	c.log.Debug("session superseded", "session", cur.session.ID, "by", priority.String())
}

func (c *Coordinator[T]) newCallLocked(params Params, priority Priority) *call[T] {
	return &call[T]{
		session: Session{
			ID:          uuid.NewString(),
			RequestedAt: c.cfg.Clock.Now(),
			Params:      params,
			Priority:    priority,
		},
		done: make(chan struct{}),
	}
}

func (c *Coordinator[T]) launchLocked(cl *call[T]) {
	cl.ctx, cl.cancel = context.WithCancel(c.baseCtx)
	c.current = cl
}

// run drives sessions until the coordinator is idle again. One goroutine
// serves a whole busy period so hooks observe sessions in order.
func (c *Coordinator[T]) run(cl *call[T]) {
	defer c.wg.Done()

	for cl != nil {
		c.mu.Lock()
		session := cl.session
		c.mu.Unlock()

		if c.hooks.OnStart != nil {
			c.hooks.OnStart(session)
		}
		started := c.cfg.Clock.Now()
		page, err := c.fetchWithRetry(cl.ctx, session)
		elapsed := c.cfg.Clock.Since(started)
		cl.cancel()

		c.mu.Lock()
		session = cl.session
		next := c.next
		c.next = nil
		var satisfied *call[T]
		if next != nil && !session.Aborted && err == nil && next.session.Params.Equal(session.Params) {
			// The newest request asks for exactly what was just fetched.
			satisfied, next = next, nil
			satisfied.page = page
			c.cfg.Metrics.Coalesced("satisfied")
		}
		closed := c.closed
		deliver := !session.Aborted && next == nil && !closed
		switch {
		case next != nil && !closed:
			c.launchLocked(next)
		case next != nil:
			next.err = ErrClosed
			close(next.done)
			next = nil
		}
		if next == nil {
			// cl stays current while its hooks run, so triggers arriving
			// meanwhile queue behind it instead of starting a second run.
			cl.delivering = true
		}
		c.mu.Unlock()

		switch {
		case session.Aborted:
			cl.err = ErrSuperseded
		default:
			cl.page, cl.err = page, err
		}
		c.cfg.Metrics.ObserveFetch(session.Priority.String(), outcome(session, err), elapsed)
		c.logOutcome(session, err, elapsed, deliver)

		if deliver {
			if err != nil {
				if c.hooks.OnError != nil {
					c.hooks.OnError(session, err)
				}
			} else if c.hooks.OnResult != nil {
				c.hooks.OnResult(session, page)
			}
		}

		if next == nil {
			next = c.finishDelivery()
			if next == nil && c.hooks.OnIdle != nil {
				c.hooks.OnIdle()
			}
		}

		close(cl.done)
		if satisfied != nil {
			close(satisfied.done)
		}
		cl = next
	}
}

// finishDelivery ends a delivery. A follow-up queued while the hooks ran is
// launched and returned; otherwise the coordinator goes Idle.
func (c *Coordinator[T]) finishDelivery() *call[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.next
	c.next = nil
	if next != nil && !c.closed {
		c.launchLocked(next)
		return next
	}
	c.current = nil
	if next != nil {
		next.err = ErrClosed
		close(next.done)
	}
	return nil
}

func outcome(s Session, err error) string {
	switch {
	case s.Aborted:
		return "aborted"
	case err == nil:
		return "success"
	default:
		return apperrors.Classify(err).String()
	}
}

func (c *Coordinator[T]) logOutcome(s Session, err error, elapsed time.Duration, delivered bool) {
	args := []any{
		"session", s.ID,
		"priority", s.Priority.String(),
		"params", s.Params.String(),
		"duration", elapsed,
		"delivered", delivered,
	}
	switch {
	case s.Aborted:
		c.log.Debug("session aborted", args...)
	case err != nil:
		c.log.Warn("fetch failed", append(args, "error", err, "kind", apperrors.Classify(err).String())...)
	default:
		c.log.Debug("fetch completed", args...)
	}
}

// retryDelay is the wait before the single retry for err. The server's
// Retry-After hint can lengthen the rate-limit delay but never past
// RateLimitMaxBackoff.
func (c *Coordinator[T]) retryDelay(err error) time.Duration {
	if apperrors.Classify(err) == apperrors.KindRateLimit {
		return min(max(c.cfg.RateLimitBackoff, apperrors.RetryAfter(err)), c.cfg.RateLimitMaxBackoff)
	}
	return c.cfg.TransientBackoff
}

// fetchWithRetry issues the fetch and at most one delayed retry for
// rate-limit and transient failures. backoff counts the tries; the delay
// itself runs on the configured clock before the second attempt.
func (c *Coordinator[T]) fetchWithRetry(ctx context.Context, s Session) (domain.Page[T], error) {
	var wait time.Duration
	operation := func() (domain.Page[T], error) {
		if wait > 0 {
			if err := c.sleep(ctx, wait); err != nil {
				return domain.Page[T]{}, backoff.Permanent(err)
			}
		}
		page, err := c.fetch(ctx, s.Params)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return page, backoff.Permanent(err)
		}
		switch apperrors.Classify(err) {
		case apperrors.KindRateLimit, apperrors.KindTransient:
			wait = c.retryDelay(err)
			return page, err
		default:
			return page, backoff.Permanent(err)
		}
	}
	notify := func(err error, _ time.Duration) {
		kind := apperrors.Classify(err).String()
		c.cfg.Metrics.Retry(kind)
		c.log.Info("retrying fetch", "session", s.ID, "kind", kind, "delay", wait)
	}

	page, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(2),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	var permanent *backoff.PermanentError
	if stderrors.As(err, &permanent) {
		err = permanent.Err
	}
	return page, err
}

func (c *Coordinator[T]) sleep(ctx context.Context, d time.Duration) error {
	t := c.cfg.Clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts any in-flight session, fails a queued follow-up with
// ErrClosed and waits for the coordinator goroutine to exit. No hook runs
// after Close returns.
func (c *Coordinator[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.current != nil {
		c.current.session.Aborted = true
	}
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}
