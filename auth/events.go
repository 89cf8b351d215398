package auth

import (
	"sync"

	"github.com/MrEthical07/sessionguard/session"
	"github.com/google/uuid"
)

// EventType names a session change.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// ChangeEvent is delivered to subscribers after the persisted session changed.
// Session is nil for EventSignedOut.
type ChangeEvent struct {
	Type    EventType
	Session *session.Session
}

// Subscription is a registered change listener.
type Subscription struct {
	id     uuid.UUID
	cancel func()
	once   sync.Once
}

// NewSubscription wraps cancel as a Subscription. It lets alternative clients
// hand out subscriptions compatible with [Client.OnAuthStateChange].
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{id: uuid.New(), cancel: cancel}
}

// ID identifies the subscription.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Unsubscribe stops delivery. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

type eventHub struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]func(ChangeEvent)
}

func newEventHub() *eventHub {
	return &eventHub{listeners: make(map[uuid.UUID]func(ChangeEvent))}
}

func (h *eventHub) subscribe(fn func(ChangeEvent)) *Subscription {
	sub := &Subscription{id: uuid.New()}
	sub.cancel = func() {
		h.mu.Lock()
		delete(h.listeners, sub.id)
		h.mu.Unlock()
	}

	h.mu.Lock()
	h.listeners[sub.id] = fn
	h.mu.Unlock()
	return sub
}

// emit calls every listener synchronously, each with its own copy of the session.
func (h *eventHub) emit(ev ChangeEvent) {
	h.mu.RLock()
	fns := make([]func(ChangeEvent), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ChangeEvent{Type: ev.Type, Session: ev.Session.Clone()})
	}
}

func (h *eventHub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
