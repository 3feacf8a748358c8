package location

import "sync"

// WriteOptions controls how a query is written.
type WriteOptions struct {
	// Replace overwrites the current history entry instead of pushing a new one.
	Replace bool
}

// Provider is the navigable location the list state is mirrored into.
type Provider interface {
	Read() Query
	Write(q Query, opts WriteOptions) error
	// OnChange registers cb for every location change, including changes
	// caused by Write. The returned func unregisters it.
	OnChange(cb func(Query)) (cancel func())
}

type listeners struct {
	mu     sync.Mutex
	nextID int
	cbs    map[int]func(Query)
}

func (l *listeners) add(cb func(Query)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cbs == nil {
		l.cbs = make(map[int]func(Query))
	}
	id := l.nextID
	l.nextID++
	l.cbs[id] = cb
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.cbs, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) notify(q Query) {
	l.mu.Lock()
	cbs := make([]func(Query), 0, len(l.cbs))
	for _, cb := range l.cbs {
		cbs = append(cbs, cb)
	}
	l.mu.Unlock()
	for _, cb := range cbs {
		cb(q.Clone())
	}
}

// MemoryProvider is an in-process location with browser-like history.
// Listeners are notified synchronously after every change.
type MemoryProvider struct {
	mu      sync.Mutex
	history []Query
	index   int

	listeners listeners
}

// NewMemoryProvider starts with initial as the only history entry.
func NewMemoryProvider(initial Query) *MemoryProvider {
	if initial == nil {
		initial = Query{}
	}
	return &MemoryProvider{history: []Query{initial.Clone()}}
}

func (m *MemoryProvider) Read() Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history[m.index].Clone()
}

func (m *MemoryProvider) Write(q Query, opts WriteOptions) error {
	m.mu.Lock()
	if opts.Replace {
		m.history[m.index] = q.Clone()
	} else {
		m.history = append(m.history[:m.index+1], q.Clone())
		m.index++
	}
	m.mu.Unlock()
	m.listeners.notify(q)
	return nil
}

func (m *MemoryProvider) OnChange(cb func(Query)) func() {
	return m.listeners.add(cb)
}

// Navigate pushes q as a new entry, the way a user following a link would.
func (m *MemoryProvider) Navigate(q Query) {
	_ = m.Write(q, WriteOptions{})
}

// Back moves one entry back and reports whether it moved.
func (m *MemoryProvider) Back() bool { return m.move(-1) }

// Forward moves one entry forward and reports whether it moved.
func (m *MemoryProvider) Forward() bool { return m.move(1) }

// Len returns the number of history entries.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

func (m *MemoryProvider) move(delta int) bool {
	m.mu.Lock()
	target := m.index + delta
	if target < 0 || target >= len(m.history) {
		m.mu.Unlock()
		return false
	}
	m.index = target
	q := m.history[target].Clone()
	m.mu.Unlock()
	m.listeners.notify(q)
	return true
}
