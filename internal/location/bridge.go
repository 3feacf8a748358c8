package location

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/metrics"
)

// DefaultGrace absorbs the delay between writing the location and
// observing that write through OnChange.
const DefaultGrace = 300 * time.Millisecond

// BridgeConfig wires a Bridge.
type BridgeConfig struct {
	Codec   Codec
	Grace   time.Duration
	Clock   clock.PassiveClock
	Logger  logging.Logger
	Metrics *metrics.Recorder
}

type recentWrite struct {
	encoded string
	at      time.Time
}

// Bridge writes list state into a Provider and reports external
// navigation. A change equal to the last written query, or to any query
// written within the grace window, is treated as self-originated and
// ignored.
type Bridge struct {
	provider Provider
	codec    Codec
	grace    time.Duration
	clock    clock.PassiveClock
	log      logging.Logger
	metrics  *metrics.Recorder

	mu       sync.Mutex
	snapshot string
	recent   []recentWrite
	onNav    func(Navigation)
	cancel   func()
}

// NewBridge returns a bridge that is not yet listening.
func NewBridge(provider Provider, cfg BridgeConfig) *Bridge {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Bridge{
		provider: provider,
		codec:    cfg.Codec,
		grace:    cfg.Grace,
		clock:    cfg.Clock,
		log:      log.With("component", "location"),
		metrics:  cfg.Metrics,
	}
}

// Initial decodes the current location and adopts it as the snapshot.
func (b *Bridge) Initial() Navigation {
	q := b.provider.Read()
	b.mu.Lock()
	b.snapshot = q.Encode()
	b.mu.Unlock()
	return b.codec.Decode(q)
}

// Start subscribes to the provider. onNav runs for external navigation only.
func (b *Bridge) Start(onNav func(Navigation)) {
	b.mu.Lock()
	b.onNav = onNav
	b.mu.Unlock()
	cancel := b.provider.OnChange(b.handleChange)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// PushState writes the canonical form of filters and p with replace
// semantics and records it as the snapshot. Nothing is written when the
// provider already holds that query. A failed write leaves the previous
// snapshot in place.
func (b *Bridge) PushState(filters domain.FilterState, p domain.Pagination) error {
	q := b.codec.Encode(filters, p)
	encoded := q.Encode()
	current := b.provider.Read().Encode()

	b.mu.Lock()
	prev := b.snapshot
	b.snapshot = encoded
	if current == encoded {
		b.mu.Unlock()
		return nil
	}
	now := b.clock.Now()
	b.pruneLocked(now)
	b.recent = append(b.recent, recentWrite{encoded: encoded, at: now})
	b.mu.Unlock()

	if err := b.provider.Write(q, WriteOptions{Replace: true}); err != nil {
		b.log.Warn("location write failed", "query", encoded, "error", err)
		b.rollback(prev, recentWrite{encoded: encoded, at: now})
		return err
	}
	b.log.Debug("location pushed", "query", encoded)
	return nil
}

// rollback forgets a write that never reached the provider, so a later
// change to that query is seen as external.
func (b *Bridge) rollback(prev string, w recentWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == w.encoded {
		b.snapshot = prev
	}
	for i, r := range b.recent {
		if r.encoded == w.encoded && r.at.Equal(w.at) {
			b.recent = append(b.recent[:i], b.recent[i+1:]...)
			break
		}
	}
}

// Snapshot returns the last query the bridge wrote or adopted.
func (b *Bridge) Snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot
}

func (b *Bridge) handleChange(q Query) {
	encoded := q.Encode()

	b.mu.Lock()
	b.pruneLocked(b.clock.Now())
	if b.isSelfLocked(encoded) {
		b.mu.Unlock()
		b.metrics.LocationChange("self")
		return
	}
	b.snapshot = encoded
	onNav := b.onNav
	b.mu.Unlock()

	b.metrics.LocationChange("external")
	b.log.Debug("external navigation", "query", encoded)
	if onNav != nil {
		onNav(b.codec.Decode(q))
	}
}

func (b *Bridge) isSelfLocked(encoded string) bool {
	if encoded == b.snapshot {
		return true
	}
	for _, w := range b.recent {
		if w.encoded == encoded {
			return true
		}
	}
	return false
}

func (b *Bridge) pruneLocked(now time.Time) {
	keep := b.recent[:0]
	for _, w := range b.recent {
		if now.Sub(w.at) <= b.grace {
			keep = append(keep, w)
		}
	}
	b.recent = keep
}

// Close stops listening for changes.
func (b *Bridge) Close() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.onNav = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
