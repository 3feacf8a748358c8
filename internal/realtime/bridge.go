package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/dthanhvu03/threadsauto-sub000/internal/debounce"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/metrics"
)

// DefaultDebounce is the quiet window applied to push bursts.
const DefaultDebounce = 5 * time.Second

// Drop reasons reported to metrics.
const (
	DropRefreshing  = "refreshing"
	DropUserPending = "user_pending"
)

// Guards are consulted before a push invalidation turns into a refresh.
type Guards struct {
	// Idle reports whether no refresh is in flight.
	Idle func() bool
	// UserPending reports whether a user-driven change is waiting in the
	// high-priority scheduler.
	UserPending func() bool
}

// BridgeConfig wires a Bridge.
type BridgeConfig struct {
	Channel Channel
	// Events that invalidate the list. Defaults to job.created and job.updated.
	Events   []string
	Debounce time.Duration
	Clock    clock.WithDelayedExecution
	Logger   logging.Logger
	Metrics  *metrics.Recorder
}

// Bridge subscribes to one room at a time and converts bursts of its
// events into a single deferred refresh. Every event restarts the quiet
// window, but only events that pass the guards arm the refresh; the guards
// are checked again when it fires. Invalidations that meet a failed guard
// are dropped, not queued.
type Bridge struct {
	channel Channel
	events  []string
	delay   time.Duration
	sched   *debounce.Scheduler
	guards  Guards
	refresh func()
	log     logging.Logger
	metrics *metrics.Recorder

	mu     sync.Mutex
	room   string
	sub    Subscription
	armed  bool
	closed bool
}

// NewBridge returns a bridge that is not subscribed to any room.
func NewBridge(cfg BridgeConfig, guards Guards, refresh func()) *Bridge {
	if len(cfg.Events) == 0 {
		cfg.Events = []string{EventJobCreated, EventJobUpdated}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Bridge{
		channel: cfg.Channel,
		events:  cfg.Events,
		delay:   cfg.Debounce,
		sched:   debounce.New(cfg.Clock),
		guards:  guards,
		refresh: refresh,
		log:     log.With("component", "realtime"),
		metrics: cfg.Metrics,
	}
}

// SetRoom switches the subscription to room. The previous subscription is
// closed and any pending invalidation is cancelled before subscribing. An
// empty room only unsubscribes.
func (b *Bridge) SetRoom(ctx context.Context, room string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("realtime bridge closed")
	}
	if room == b.room && (b.sub != nil || room == "") {
		b.mu.Unlock()
		return nil
	}
	prev := b.sub
	b.sub = nil
	b.room = room
	b.armed = false
	b.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	b.sched.Cancel()

	if room == "" || b.channel == nil {
		return nil
	}
	sub, err := b.channel.Subscribe(ctx, room)
	if err != nil {
		return fmt.Errorf("subscribe to room %s: %w", room, err)
	}
	for _, name := range b.events {
		sub.On(name, b.onEvent)
	}

	b.mu.Lock()
	if b.closed || b.room != room {
		b.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	b.sub = sub
	b.mu.Unlock()
	b.log.Info("subscribed to room", "room", room)
	return nil
}

// Room returns the current room.
func (b *Bridge) Room() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.room
}

// Pending reports whether an invalidation is waiting for its quiet window.
func (b *Bridge) Pending() bool {
	return b.sched.Pending()
}

func (b *Bridge) onEvent(ev Event) {
	b.metrics.PushEvent(ev.Name)

	reason := b.blocked()
	b.mu.Lock()
	stale := b.closed || ev.Room != b.room
	if !stale && reason == "" {
		b.armed = true
	}
	b.mu.Unlock()
	if stale {
		return
	}
	if reason != "" {
		b.drop(reason, ev.Name)
	}
	b.sched.Schedule(b.fire, b.delay)
}

func (b *Bridge) fire() {
	b.mu.Lock()
	closed, armed := b.closed, b.armed
	b.armed = false
	b.mu.Unlock()
	if closed || !armed {
		return
	}
	if reason := b.blocked(); reason != "" {
		b.drop(reason, "")
		return
	}
	b.log.Debug("push invalidation firing")
	b.refresh()
}

func (b *Bridge) blocked() string {
	if b.guards.Idle != nil && !b.guards.Idle() {
		return DropRefreshing
	}
	if b.guards.UserPending != nil && b.guards.UserPending() {
		return DropUserPending
	}
	return ""
}

func (b *Bridge) drop(reason, event string) {
	b.metrics.PushDropped(reason)
	b.log.Debug("push invalidation dropped", "reason", reason, "event", event)
}

// Close cancels the pending invalidation and the subscription.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	b.sched.Cancel()
	if sub != nil {
		return sub.Close()
	}
	return nil
}
