// Package realtime turns room-scoped push events into low-priority list
// invalidations. It provides the Channel abstraction, an in-process Hub, a
// websocket client and server, and the invalidation Bridge.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Default event names announcing server-side mutations.
const (
	EventJobCreated = "job.created"
	EventJobUpdated = "job.updated"
	// AnyEvent subscribes a callback to every event of the room.
	AnyEvent = "*"
)

// Event is one push notification.
type Event struct {
	ID     string          `json:"id,omitempty"`
	Room   string          `json:"room"`
	Name   string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	SentAt time.Time       `json:"sent_at,omitzero"`
}

// Channel is the push transport. Delivery is at-least-once with no ordering
// across rooms.
type Channel interface {
	Subscribe(ctx context.Context, room string) (Subscription, error)
}

// Subscription is one room membership. Close is idempotent.
type Subscription interface {
	On(event string, cb func(Event))
	Close() error
}

// handlers dispatches events by name.
type handlers struct {
	mu  sync.RWMutex
	cbs map[string][]func(Event)
}

func (h *handlers) on(event string, cb func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cbs == nil {
		h.cbs = make(map[string][]func(Event))
	}
	h.cbs[event] = append(h.cbs[event], cb)
}

func (h *handlers) dispatch(ev Event) {
	h.mu.RLock()
	cbs := make([]func(Event), 0, len(h.cbs[ev.Name])+len(h.cbs[AnyEvent]))
	cbs = append(cbs, h.cbs[ev.Name]...)
	cbs = append(cbs, h.cbs[AnyEvent]...)
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb(ev)
	}
}
