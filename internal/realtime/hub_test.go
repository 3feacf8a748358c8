package realtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversByRoomAndEvent(t *testing.T) {
	h := NewHub(nil)
	ctx := context.Background()

	a, err := h.Subscribe(ctx, "account:1")
	require.NoError(t, err)
	b, err := h.Subscribe(ctx, "account:2")
	require.NoError(t, err)

	var created, all, other atomic.Int32
	a.On(EventJobCreated, func(Event) { created.Add(1) })
	a.On(AnyEvent, func(Event) { all.Add(1) })
	b.On(EventJobCreated, func(Event) { other.Add(1) })

	assert.Equal(t, 1, h.Publish(Event{Room: "account:1", Name: EventJobCreated}))
	assert.Equal(t, 1, h.Publish(Event{Room: "account:1", Name: EventJobUpdated}))
	assert.Equal(t, 0, h.Publish(Event{Room: "account:3", Name: EventJobCreated}))

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(2), all.Load())
	assert.Equal(t, int32(0), other.Load())
}

func TestHubCloseIsIdempotent(t *testing.T) {
	h := NewHub(nil)
	sub, err := h.Subscribe(context.Background(), "r")
	require.NoError(t, err)
	require.Equal(t, 1, h.Members("r"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, h.Members("r"))
}

func TestHubContextEndsSubscription(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := h.Subscribe(ctx, "r")
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool { return h.Members("r") == 0 }, time.Second, 5*time.Millisecond)

	_, err = h.Subscribe(ctx, "r")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHubAssignsIDs(t *testing.T) {
	h := NewHub(nil)
	sub, err := h.Subscribe(context.Background(), "r")
	require.NoError(t, err)

	got := make(chan Event, 1)
	sub.On(AnyEvent, func(ev Event) { got <- ev })
	h.Publish(Event{Room: "r", Name: EventJobUpdated})
	assert.NotEmpty(t, (<-got).ID)
}
