package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketRoundTrip(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(NewWSHandler(hub, nil))
	defer srv.Close()

	ch, err := NewWSChannel("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", WSOptions{Token: "secret"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := ch.Subscribe(ctx, "account:1")
	require.NoError(t, err)
	defer sub.Close()

	got := make(chan Event, 4)
	sub.On(EventJobCreated, func(ev Event) { got <- ev })

	require.Eventually(t, func() bool { return hub.Members("account:1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Event{Room: "account:1", Name: EventJobUpdated})
	hub.Publish(Event{Room: "account:1", Name: EventJobCreated, Data: json.RawMessage(`{"id":"j1"}`)})

	select {
	case ev := <-got:
		assert.Equal(t, "account:1", ev.Room)
		assert.JSONEq(t, `{"id":"j1"}`, string(ev.Data))
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.Eventually(t, func() bool { return hub.Members("account:1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWSHandlerRequiresRoom(t *testing.T) {
	srv := httptest.NewServer(NewWSHandler(NewHub(nil), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewWSChannelRejectsScheme(t *testing.T) {
	_, err := NewWSChannel("ftp://example.com/ws", WSOptions{})
	assert.Error(t, err)
}

func TestEnvelopeValidation(t *testing.T) {
	v, err := newEnvelopeValidator()
	require.NoError(t, err)

	ev, err := v.decode([]byte(`{"room":"account:1","event":"job.created","data":{"id":"j1"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventJobCreated, ev.Name)

	for _, frame := range []string{
		`not json`,
		`{"event":"job.created"}`,
		`{"room":"","event":"job.created"}`,
		`{"room":"r","event":"Created"}`,
		`{"room":"r","event":"job.created","data":[1]}`,
	} {
		_, err := v.decode([]byte(frame))
		assert.Error(t, err, frame)
	}
}
