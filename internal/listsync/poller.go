package listsync

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
	"github.com/dthanhvu03/threadsauto-sub000/internal/metrics"
)

// Poller invokes tick on a jittered interval until stopped.
type Poller struct {
	interval time.Duration
	jitter   float64
	clock    clock.Clock
	sample   func() float64
	tick     func()
	log      logging.Logger
	metrics  *metrics.Recorder

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller returns a stopped poller. A non-positive interval disables it.
func NewPoller(interval time.Duration, jitter float64, clk clock.Clock, tick func(), log logging.Logger, m *metrics.Recorder) *Poller {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Poller{
		interval: interval,
		jitter:   clampJitterRatio(jitter),
		clock:    clk,
		sample:   rand.Float64, //nolint:gosec // jitter only
		tick:     tick,
		log:      log.With("component", "poller"),
		metrics:  m,
	}
}

// Start launches the poll loop. It is a no-op when disabled or running.
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := p.clock.NewTimer(p.next())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("poller stopping", "reason", ctx.Err())
			return
		case <-timer.C():
			p.metrics.PollTick()
			p.tick()
			timer.Reset(p.next())
		}
	}
}

func (p *Poller) next() time.Duration {
	return jitteredInterval(p.interval, p.jitter, p.sample())
}

// Stop ends the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// jitteredInterval spreads base by up to ±ratio using sample in [0, 1].
func jitteredInterval(base time.Duration, ratio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	ratio = clampJitterRatio(ratio)
	if ratio == 0 {
		return base
	}
	sample = min(max(sample, 0), 1)
	factor := max(1+((sample*2)-1)*ratio, 0)
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
