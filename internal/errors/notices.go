package errors

import (
	"sync"
	"time"
)

// NoticeType is the severity shown next to a notice.
type NoticeType int

const (
	NoticeError NoticeType = iota
	NoticeWarning
	NoticeInfo
)

func (t NoticeType) String() string {
	switch t {
	case NoticeWarning:
		return "warning"
	case NoticeInfo:
		return "info"
	default:
		return "error"
	}
}

// Notice is a dismissible message for the render layer.
type Notice struct {
	Text      string
	Type      NoticeType
	Kind      Kind
	Timestamp time.Time
}

// Notices stores notices until they are dismissed.
type Notices struct {
	mu       sync.RWMutex
	messages []Notice
	onChange func()
	now      func() time.Time
}

// NewNotices creates an empty notice board. onChange runs after every
// mutation, outside the lock.
func NewNotices(onChange func()) *Notices {
	return &Notices{
		messages: make([]Notice, 0),
		onChange: onChange,
		now:      time.Now,
	}
}

// Error records err as an error notice with its classification.
func (n *Notices) Error(err error) {
	if err == nil {
		return
	}
	n.add(Notice{Text: err.Error(), Type: NoticeError, Kind: Classify(err)})
}

// Warning records a non-fatal message.
func (n *Notices) Warning(msg string) {
	n.add(Notice{Text: msg, Type: NoticeWarning, Kind: KindValidation})
}

// Info records an informational message.
func (n *Notices) Info(msg string) {
	n.add(Notice{Text: msg, Type: NoticeInfo})
}

func (n *Notices) add(notice Notice) {
	n.mu.Lock()
	notice.Timestamp = n.now()
	n.messages = append(n.messages, notice)
	n.mu.Unlock()
	n.changed()
}

// Latest returns the most recent notice.
func (n *Notices) Latest() (Notice, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.messages) == 0 {
		return Notice{}, false
	}
	return n.messages[len(n.messages)-1], true
}

// Dismiss drops the most recent notice. It reports whether one was dropped.
func (n *Notices) Dismiss() bool {
	n.mu.Lock()
	if len(n.messages) == 0 {
		n.mu.Unlock()
		return false
	}
	n.messages = n.messages[:len(n.messages)-1]
	n.mu.Unlock()
	n.changed()
	return true
}

// Clear drops every notice.
func (n *Notices) Clear() {
	n.mu.Lock()
	n.messages = n.messages[:0]
	n.mu.Unlock()
	n.changed()
}

// ClearType drops every notice of type t and reports how many were dropped.
func (n *Notices) ClearType(t NoticeType) int {
	n.mu.Lock()
	kept := n.messages[:0]
	for _, m := range n.messages {
		if m.Type != t {
			kept = append(kept, m)
		}
	}
	dropped := len(n.messages) - len(kept)
	n.messages = kept
	n.mu.Unlock()
	if dropped > 0 {
		n.changed()
	}
	return dropped
}

// All returns a copy of every pending notice, oldest first.
func (n *Notices) All() []Notice {
	n.mu.RLock()
	defer n.mu.RUnlock()
	copied := make([]Notice, len(n.messages))
	copy(copied, n.messages)
	return copied
}

func (n *Notices) changed() {
	if n.onChange != nil {
		n.onChange()
	}
}
