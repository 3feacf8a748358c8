package listsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

func TestJitteredInterval(t *testing.T) {
	base := 10 * time.Second
	tests := []struct {
		name   string
		base   time.Duration
		ratio  float64
		sample float64
		want   time.Duration
	}{
		{name: "no jitter", base: base, ratio: 0, sample: 0.9, want: base},
		{name: "lowest sample", base: base, ratio: 0.2, sample: 0, want: 8 * time.Second},
		{name: "middle sample", base: base, ratio: 0.2, sample: 0.5, want: base},
		{name: "highest sample", base: base, ratio: 0.2, sample: 1, want: 12 * time.Second},
		{name: "ratio clamped", base: base, ratio: 4, sample: 1, want: 20 * time.Second},
		{name: "sample clamped", base: base, ratio: 0.5, sample: -1, want: 5 * time.Second},
		{name: "floor", base: base, ratio: 1, sample: 0, want: time.Millisecond},
		{name: "disabled", base: 0, ratio: 0.2, sample: 0.5, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jitteredInterval(tt.base, tt.ratio, tt.sample))
		})
	}
}

func TestPollerTicksUntilStopped(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	var ticks atomic.Int32
	p := NewPoller(time.Minute, 0, clk, func() { ticks.Add(1) }, nil, nil)

	p.Start(context.Background())
	p.Start(context.Background())
	for want := int32(1); want <= 3; want++ {
		require.Eventually(t, clk.HasWaiters, time.Second, 5*time.Millisecond)
		clk.Step(time.Minute)
		require.Eventually(t, func() bool { return ticks.Load() == want }, time.Second, 5*time.Millisecond)
	}

	p.Stop()
	p.Stop()
	clk.Step(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), ticks.Load())
}

func TestPollerDisabled(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	p := NewPoller(0, 0.2, clk, func() { t.Fatal("disabled poller ticked") }, nil, nil)
	p.Start(context.Background())
	assert.False(t, clk.HasWaiters())
	p.Stop()
}

func TestPollerStopsWithContext(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(time.Second, 0, clk, func() {}, nil, nil)
	p.Start(ctx)
	cancel()
	p.Stop()
}
