package auth

import (
	"sync"

	"github.com/reyadatime/reyadatime/internal/observability"
)

type Event string

const (
	EventSignedIn  Event = "SIGNED_IN"
	EventSignedOut Event = "SIGNED_OUT"
)

type Listener func(event Event, session *Session)

type listenerEntry struct {
	id       uint64
	listener Listener
}

// listeners delivers events synchronously in registration order.
type listeners struct {
	mu      sync.Mutex
	nextID  uint64
	entries []listenerEntry
}

func (l *listeners) add(listener Listener) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listenerEntry{id: id, listener: listener})
	return &Subscription{remove: func() { l.remove(id) }}
}

func (l *listeners) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, entry := range l.entries {
		if entry.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *listeners) notify(event Event, session *Session) {
	l.mu.Lock()
	snapshot := make([]listenerEntry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	observability.IncrementAuthEvent(string(event))
	for _, entry := range snapshot {
		entry.listener(event, session)
	}
}

func (l *listeners) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Subscription is the handle returned by OnAuthStateChange.
type Subscription struct {
	once   sync.Once
	remove func()
}

// Unsubscribe removes the listener. Calling it again is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.remove)
}
