// Package listsync composes the filter state, schedulers, request
// coordinator and the location and realtime bridges into one controller per
// list view.
//
// Triggers are classified before they reach the coordinator. Filter edits
// go through the user debounce window, page changes and external navigation
// are issued immediately at user priority, push invalidations are debounced
// by the realtime bridge and issued at push priority, and poll ticks are
// issued at scheduled priority.
package listsync

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/dthanhvu03/threadsauto-sub000/internal/coordinator"
	"github.com/dthanhvu03/threadsauto-sub000/internal/debounce"
	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	apperrors "github.com/dthanhvu03/threadsauto-sub000/internal/errors"
	"github.com/dthanhvu03/threadsauto-sub000/internal/location"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/metrics"
	"github.com/dthanhvu03/threadsauto-sub000/internal/realtime"
)

const defaultUserDebounce = 500 * time.Millisecond

var (
	// ErrClosed is returned by intents issued after Close.
	ErrClosed = stderrors.New("controller closed")
	// ErrStarted is returned by a second Start.
	ErrStarted = stderrors.New("controller already started")
)

// DataSource loads one page of items.
type DataSource[T any] interface {
	FetchList(ctx context.Context, filters domain.FilterState, page domain.Pagination) (domain.Page[T], error)
}

// DataSourceFunc adapts a function to DataSource.
type DataSourceFunc[T any] func(ctx context.Context, filters domain.FilterState, page domain.Pagination) (domain.Page[T], error)

// FetchList calls f.
func (f DataSourceFunc[T]) FetchList(ctx context.Context, filters domain.FilterState, page domain.Pagination) (domain.Page[T], error) {
	return f(ctx, filters, page)
}

// Snapshot is the read-only view state handed to the render layer.
type Snapshot[T any] struct {
	Items      []T
	Total      int
	Page       int
	PageSize   int
	TotalPages int
	Filters    domain.FilterState
	IsLoading  bool
	Notice     *apperrors.Notice
	Room       string
	Version    uint64
}

// Config holds the tunables of a controller. Zero values take defaults.
type Config struct {
	DefaultFilters   domain.Patch
	PageSize         int
	MaxPageSize      int
	UserDebounce     time.Duration
	PushDebounce     time.Duration
	RateLimitBackoff time.Duration
	// RateLimitMaxBackoff caps the server's Retry-After hint.
	RateLimitMaxBackoff time.Duration
	TransientBackoff    time.Duration
	LocationGrace       time.Duration
	// PollInterval of zero disables polling.
	PollInterval time.Duration
	PollJitter   float64
	// PushEvents that invalidate the list.
	PushEvents []string
	// Room pins the push room. When empty the room follows the account_id
	// filter.
	Room string
}

// Deps are the collaborators of a controller. Only Source is required.
type Deps[T any] struct {
	Source   DataSource[T]
	Channel  realtime.Channel
	Location location.Provider
	Clock    clock.WithTickerAndDelayedExecution
	Logger   logging.Logger
	Metrics  *metrics.Recorder
}

// Controller keeps one paginated, filtered list consistent across filter
// edits, navigation, push events and polling.
type Controller[T any] struct {
	cfg     Config
	source  DataSource[T]
	coord   *coordinator.Coordinator[T]
	user    *debounce.Scheduler
	loc     *location.Bridge
	rt      *realtime.Bridge
	poller  *Poller
	notices *apperrors.Notices
	log     logging.Logger

	roomReq chan string
	wg      sync.WaitGroup

	mu        sync.Mutex
	filters   *domain.Filters
	pager     *Pager
	items     []T
	loading   bool
	room      string
	pinned    string
	started   bool
	closed    bool
	cancel    context.CancelFunc
	version   uint64
	observers map[uint64]chan Snapshot[T]
	nextObs   uint64
}

// New builds a controller. Nothing is fetched until Start.
func New[T any](cfg Config, deps Deps[T]) (*Controller[T], error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("listsync: data source is required")
	}
	if cfg.UserDebounce <= 0 {
		cfg.UserDebounce = defaultUserDebounce
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}

	filters, warnings := domain.NewFilters(cfg.DefaultFilters)
	c := &Controller[T]{
		cfg:       cfg,
		source:    deps.Source,
		user:      debounce.New(clk),
		notices:   apperrors.NewNotices(nil),
		log:       log.With("component", "listsync"),
		roomReq:   make(chan string, 1),
		filters:   filters,
		pager:     NewPager(cfg.PageSize, cfg.MaxPageSize),
		pinned:    cfg.Room,
		observers: make(map[uint64]chan Snapshot[T]),
	}
	for _, w := range warnings {
		c.notices.Warning(w.Error())
	}

	c.coord = coordinator.New(c.fetch, coordinator.Config{
		RateLimitBackoff:    cfg.RateLimitBackoff,
		RateLimitMaxBackoff: cfg.RateLimitMaxBackoff,
		TransientBackoff:    cfg.TransientBackoff,
		Clock:               clk,
		Logger:              log,
		Metrics:             deps.Metrics,
	}, coordinator.Hooks[T]{
		OnStart:  c.onStart,
		OnResult: c.onResult,
		OnError:  c.onError,
		OnIdle:   c.onIdle,
	})

	if deps.Location != nil {
		c.loc = location.NewBridge(deps.Location, location.BridgeConfig{
			Codec: location.Codec{
				Defaults:        filters.State(),
				DefaultPageSize: c.pager.State().PageSize,
			},
			Grace:   cfg.LocationGrace,
			Clock:   clk,
			Logger:  log,
			Metrics: deps.Metrics,
		})
	}
	if deps.Channel != nil {
		c.rt = realtime.NewBridge(realtime.BridgeConfig{
			Channel:  deps.Channel,
			Events:   cfg.PushEvents,
			Debounce: cfg.PushDebounce,
			Clock:    clk,
			Logger:   log,
			Metrics:  deps.Metrics,
		}, realtime.Guards{
			Idle:        func() bool { return c.coord.State() == coordinator.StateIdle },
			UserPending: c.user.Pending,
		}, func() { c.trigger(coordinator.PriorityPush) })
	}
	c.poller = NewPoller(cfg.PollInterval, cfg.PollJitter, clk,
		func() { c.trigger(coordinator.PriorityScheduled) }, log, deps.Metrics)
	return c, nil
}

// Start adopts the current location, subscribes to the push room, starts
// polling and issues the initial fetch.
func (c *Controller[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	if c.loc != nil {
		nav := c.loc.Initial()
		_, warnings := c.filters.Replace(nav.Filters)
		c.warnLocked(warnings)
		c.pager.Restore(nav.Page, nav.PageSize)
	}
	c.followRoomLocked()
	c.mu.Unlock()

	if c.loc != nil {
		c.loc.Start(c.onNavigate)
	}
	if c.rt != nil {
		c.wg.Add(1)
		go c.roomWorker(ctx)
	}
	c.poller.Start(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.log.Info("controller started", "filters", c.filters.State().Canonical(), "page", c.pager.State().Page)
	c.publishLocked()
	return c.triggerLocked(coordinator.PriorityUser)
}

// SetFilters merges patch into the filters. An accepted change resets the
// page to 1 and schedules a user-priority refresh after the debounce window.
func (c *Controller[T]) SetFilters(patch domain.Patch) (bool, []*domain.Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, nil
	}
	changed, warnings := c.filters.Set(patch)
	c.warnLocked(warnings)
	if changed {
		c.pager.OnFilterChanged()
		c.followRoomLocked()
		c.user.Schedule(func() { c.trigger(coordinator.PriorityUser) }, c.cfg.UserDebounce)
		c.log.Debug("filters changed", "filters", c.filters.State().Canonical())
	}
	if changed || len(warnings) > 0 {
		c.publishLocked()
	}
	return changed, warnings
}

// GoToPage moves to page n, clamped to the known page range, and refreshes
// immediately.
func (c *Controller[T]) GoToPage(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.pager.GoToPage(n) {
		return false
	}
	c.user.Cancel()
	c.publishLocked()
	_ = c.triggerLocked(coordinator.PriorityUser)
	return true
}

// NextPage moves one page forward.
func (c *Controller[T]) NextPage() bool {
	c.mu.Lock()
	page := c.pager.State().Page
	c.mu.Unlock()
	return c.GoToPage(page + 1)
}

// PrevPage moves one page back.
func (c *Controller[T]) PrevPage() bool {
	c.mu.Lock()
	page := c.pager.State().Page
	c.mu.Unlock()
	return c.GoToPage(page - 1)
}

// ChangePageSize sets the page size, returns to page 1 and refreshes
// immediately.
func (c *Controller[T]) ChangePageSize(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.pager.ChangePageSize(n) {
		return false
	}
	c.user.Cancel()
	c.publishLocked()
	_ = c.triggerLocked(coordinator.PriorityUser)
	return true
}

// ManualRefresh issues a user-priority refresh of the current state now.
func (c *Controller[T]) ManualRefresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.user.Cancel()
	return c.triggerLocked(coordinator.PriorityUser)
}

// Refresh fetches the current state at user priority and waits for the
// session that serves it.
func (c *Controller[T]) Refresh(ctx context.Context) (domain.Page[T], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.Page[T]{}, ErrClosed
	}
	c.user.Cancel()
	params := c.paramsLocked()
	c.mu.Unlock()
	return c.coord.Request(ctx, params, coordinator.PriorityUser)
}

// SetRoom pins the push room. An empty room returns to following the
// account_id filter.
func (c *Controller[T]) SetRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pinned = room
	c.followRoomLocked()
	c.publishLocked()
}

// DismissNotice drops the newest notice.
func (c *Controller[T]) DismissNotice() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.notices.Dismiss() {
		return false
	}
	c.publishLocked()
	return true
}

// Notices returns every notice that has not been dismissed.
func (c *Controller[T]) Notices() []apperrors.Notice {
	return c.notices.All()
}

// Snapshot returns the current view state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that always holds the newest snapshot. Slow
// readers skip intermediate states. The channel is closed by cancel or by
// Close.
func (c *Controller[T]) Subscribe() (<-chan Snapshot[T], func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Snapshot[T], 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextObs
	c.nextObs++
	c.observers[id] = ch
	ch <- c.snapshotLocked()
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if obs, ok := c.observers[id]; ok {
			delete(c.observers, id)
			close(obs)
		}
	}
}

// Close stops every trigger source, cancels the in-flight fetch and waits
// for background work to exit. No result is applied after Close returns.
func (c *Controller[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	for id, ch := range c.observers {
		delete(c.observers, id)
		close(ch)
	}
	c.mu.Unlock()

	c.user.Cancel()
	c.poller.Stop()
	var err error
	if c.rt != nil {
		err = c.rt.Close()
	}
	if c.loc != nil {
		c.loc.Close()
	}
	c.coord.Close()
	c.wg.Wait()
	c.log.Info("controller closed")
	return err
}

func (c *Controller[T]) fetch(ctx context.Context, params coordinator.Params) (domain.Page[T], error) {
	return c.source.FetchList(ctx, params.Filters, params.Pagination.Request())
}

func (c *Controller[T]) trigger(priority coordinator.Priority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.triggerLocked(priority); err != nil {
		c.log.Debug("trigger ignored", "priority", priority.String(), "error", err)
	}
}

func (c *Controller[T]) triggerLocked(priority coordinator.Priority) error {
	return c.coord.Trigger(c.paramsLocked(), priority)
}

func (c *Controller[T]) paramsLocked() coordinator.Params {
	return coordinator.Params{Filters: c.filters.State(), Pagination: c.pager.State()}
}

func (c *Controller[T]) onStart(coordinator.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.loading {
		return
	}
	c.loading = true
	c.publishLocked()
}

func (c *Controller[T]) onResult(s coordinator.Session, page domain.Page[T]) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.items = page.Items
	clamped := c.pager.SetTotal(page.Total)
	c.notices.ClearType(apperrors.NoticeError)
	if clamped {
		// The requested page vanished; fetch the last one instead.
		_ = c.triggerLocked(coordinator.PriorityUser)
	}
	c.publishLocked()
	c.mu.Unlock()

	if c.loc != nil && !clamped {
		if err := c.loc.PushState(s.Params.Filters, s.Params.Pagination); err != nil {
			c.mu.Lock()
			if !c.closed {
				c.notices.Warning("location not updated: " + err.Error())
				c.publishLocked()
			}
			c.mu.Unlock()
		}
	}
}

func (c *Controller[T]) onError(s coordinator.Session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.log.Warn("refresh failed", "session", s.ID, "error", err)
	c.notices.Error(err)
	c.publishLocked()
}

func (c *Controller[T]) onIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.loading {
		return
	}
	// A trigger issued from a result hook may already have started the
	// next busy period.
	if c.coord.State() != coordinator.StateIdle {
		return
	}
	c.loading = false
	c.publishLocked()
}

// onNavigate applies external navigation: the decoded filters replace the
// current ones and the page window is restored from the query.
func (c *Controller[T]) onNavigate(nav location.Navigation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	changed, warnings := c.filters.Replace(nav.Filters)
	c.warnLocked(warnings)
	moved := c.pager.Restore(nav.Page, nav.PageSize)
	c.user.Cancel()
	if changed {
		c.followRoomLocked()
	}
	c.publishLocked()
	if changed || moved {
		c.log.Debug("external navigation applied", "query", nav.Query.Encode())
		_ = c.triggerLocked(coordinator.PriorityUser)
	}
}

func (c *Controller[T]) warnLocked(warnings []*domain.Warning) {
	for _, w := range warnings {
		c.notices.Warning(w.Error())
	}
}

// followRoomLocked hands the desired room to the room worker, replacing a
// request it has not picked up yet.
func (c *Controller[T]) followRoomLocked() {
	room := c.pinned
	if room == "" {
		room, _ = c.filters.State().Get(domain.KeyAccountID)
	}
	if room == c.room && c.started {
		return
	}
	c.room = room
	if c.rt == nil {
		return
	}
	select {
	case <-c.roomReq:
	default:
	}
	c.roomReq <- room
}

func (c *Controller[T]) roomWorker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case room := <-c.roomReq:
			if err := c.rt.SetRoom(ctx, room); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Warn("room switch failed", "room", room, "error", err)
				c.mu.Lock()
				c.notices.Error(err)
				c.publishLocked()
				c.mu.Unlock()
			}
		}
	}
}

func (c *Controller[T]) snapshotLocked() Snapshot[T] {
	p := c.pager.State()
	snap := Snapshot[T]{
		Items:      slices.Clone(c.items),
		Total:      p.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages(),
		Filters:    c.filters.State(),
		IsLoading:  c.loading,
		Room:       c.room,
		Version:    c.version,
	}
	if n, ok := c.notices.Latest(); ok {
		snap.Notice = &n
	}
	return snap
}

func (c *Controller[T]) publishLocked() {
	if c.closed {
		return
	}
	c.version++
	snap := c.snapshotLocked()
	for _, ch := range c.observers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
