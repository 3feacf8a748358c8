package realtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

type bridgeHarness struct {
	hub       *Hub
	clock     *testclock.FakeClock
	bridge    *Bridge
	refreshes atomic.Int32
	idle      atomic.Bool
	pending   atomic.Bool
}

func newBridgeHarness(t *testing.T) *bridgeHarness {
	t.Helper()
	h := &bridgeHarness{
		hub:   NewHub(nil),
		clock: testclock.NewFakeClock(time.Now()),
	}
	h.idle.Store(true)
	h.bridge = NewBridge(BridgeConfig{Channel: h.hub, Clock: h.clock},
		Guards{Idle: h.idle.Load, UserPending: h.pending.Load},
		func() { h.refreshes.Add(1) })
	t.Cleanup(func() { _ = h.bridge.Close() })
	return h
}

func (h *bridgeHarness) publish(room, name string) {
	h.hub.Publish(Event{Room: room, Name: name})
}

func TestBurstCollapsesToOneRefreshAfterLastEvent(t *testing.T) {
	h := newBridgeHarness(t)
	require.NoError(t, h.bridge.SetRoom(context.Background(), "acct-1"))

	for i := 0; i < 5; i++ {
		h.publish("acct-1", EventJobUpdated)
		h.clock.Step(400 * time.Millisecond)
	}
	// 2s elapsed; the last event arrived 400ms ago.
	h.clock.Step(4 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), h.refreshes.Load(), "must wait the full window after the last event")
	assert.True(t, h.bridge.Pending())

	h.clock.Step(600 * time.Millisecond)
	require.Eventually(t, func() bool { return h.refreshes.Load() == 1 }, time.Second, 5*time.Millisecond)

	h.clock.Step(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), h.refreshes.Load())
}

func TestIgnoresUnlistedEvents(t *testing.T) {
	h := newBridgeHarness(t)
	require.NoError(t, h.bridge.SetRoom(context.Background(), "acct-1"))

	h.publish("acct-1", "job.deleted")
	assert.False(t, h.bridge.Pending())
}

func TestEventWhileRefreshingIsDropped(t *testing.T) {
	h := newBridgeHarness(t)
	require.NoError(t, h.bridge.SetRoom(context.Background(), "acct-1"))

	h.idle.Store(false)
	h.publish("acct-1", EventJobCreated)

	h.idle.Store(true)
	h.clock.Step(10 * time.Second)
	require.Eventually(t, func() bool { return !h.bridge.Pending() }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), h.refreshes.Load(), "the refresh already in flight covers it")
}

func TestEventWhileRefreshingExtendsWindow(t *testing.T) {
	h := newBridgeHarness(t)
	require.NoError(t, h.bridge.SetRoom(context.Background(), "acct-1"))

	h.publish("acct-1", EventJobCreated)
	h.clock.Step(DefaultDebounce - time.Second)

	h.idle.Store(false)
	h.publish("acct-1", EventJobUpdated)
	h.idle.Store(true)

	h.clock.Step(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), h.refreshes.Load(), "the later event pushed the firing back")
	assert.True(t, h.bridge.Pending())

	h.clock.Step(DefaultDebounce - time.Second)
	require.Eventually(t, func() bool { return h.refreshes.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestGuardsRecheckedWhenFiring(t *testing.T) {
	for _, tc := range []struct {
		name  string
		block func(h *bridgeHarness)
	}{
		{"refresh started meanwhile", func(h *bridgeHarness) { h.idle.Store(false) }},
		{"user change pending", func(h *bridgeHarness) { h.pending.Store(true) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newBridgeHarness(t)
			require.NoError(t, h.bridge.SetRoom(context.Background(), "acct-1"))

			h.publish("acct-1", EventJobCreated)
			require.True(t, h.bridge.Pending())
			tc.block(h)

			h.clock.Step(DefaultDebounce)
			require.Eventually(t, func() bool { return !h.bridge.Pending() }, time.Second, 5*time.Millisecond)
			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, int32(0), h.refreshes.Load())
		})
	}
}

func TestSetRoomTearsDownPreviousSubscription(t *testing.T) {
	h := newBridgeHarness(t)
	ctx := context.Background()
	require.NoError(t, h.bridge.SetRoom(ctx, "acct-1"))
	h.publish("acct-1", EventJobCreated)
	require.True(t, h.bridge.Pending())

	require.NoError(t, h.bridge.SetRoom(ctx, "acct-2"))
	assert.False(t, h.bridge.Pending(), "pending invalidation of the old room is cancelled")
	assert.Equal(t, 0, h.hub.Members("acct-1"))
	assert.Equal(t, 1, h.hub.Members("acct-2"))
	assert.Equal(t, "acct-2", h.bridge.Room())

	h.publish("acct-1", EventJobCreated)
	assert.False(t, h.bridge.Pending())

	require.NoError(t, h.bridge.SetRoom(ctx, "acct-2"))
	assert.Equal(t, 1, h.hub.Members("acct-2"))

	require.NoError(t, h.bridge.SetRoom(ctx, ""))
	assert.Equal(t, 0, h.hub.Members("acct-2"))
}

func TestCloseCancelsEverything(t *testing.T) {
	h := newBridgeHarness(t)
	require.NoError(t, h.bridge.SetRoom(context.Background(), "acct-1"))
	h.publish("acct-1", EventJobCreated)

	require.NoError(t, h.bridge.Close())
	require.NoError(t, h.bridge.Close())
	assert.False(t, h.bridge.Pending())
	assert.Equal(t, 0, h.hub.Members("acct-1"))
	assert.Error(t, h.bridge.SetRoom(context.Background(), "acct-2"))
}
