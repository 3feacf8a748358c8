package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
)

// Hub is an in-process Channel. Publish delivers synchronously to every
// subscription of the room.
type Hub struct {
	log logging.Logger

	mu    sync.RWMutex
	rooms map[string]map[*hubSubscription]struct{}
}

// NewHub returns an empty hub.
func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		log:   log.With("component", "hub"),
		rooms: make(map[string]map[*hubSubscription]struct{}),
	}
}

// Subscribe joins room. The subscription ends when ctx is done or Close is
// called.
func (h *Hub) Subscribe(ctx context.Context, room string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &hubSubscription{hub: h, room: room}

	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*hubSubscription]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}
	h.mu.Unlock()

	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
		sub.mu.Lock()
		sub.stop = stop
		sub.mu.Unlock()
	}
	h.log.Debug("subscribed", "room", room)
	return sub, nil
}

// Publish sends ev to the subscribers of ev.Room and returns how many
// received it. Events without an ID get one.
func (h *Hub) Publish(ev Event) int {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	h.mu.RLock()
	members := make([]*hubSubscription, 0, len(h.rooms[ev.Room]))
	for sub := range h.rooms[ev.Room] {
		members = append(members, sub)
	}
	h.mu.RUnlock()

	for _, sub := range members {
		sub.handlers.dispatch(ev)
	}
	return len(members)
}

// Members returns the number of subscriptions in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) remove(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[sub.room]
	delete(members, sub)
	if len(members) == 0 {
		delete(h.rooms, sub.room)
	}
}

type hubSubscription struct {
	hub      *Hub
	room     string
	handlers handlers
	once     sync.Once

	mu   sync.Mutex
	stop func() bool
}

func (s *hubSubscription) On(event string, cb func(Event)) {
	s.handlers.on(event, cb)
}

func (s *hubSubscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.hub.remove(s)
	})
	return nil
}
