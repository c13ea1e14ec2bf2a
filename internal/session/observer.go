package session

import (
	"context"

	"github.com/google/uuid"
)

const subscriberBuffer = 4

// OnSessionChange registers fn to be called after every session change.
// Calls happen synchronously on the goroutine making the change. The
// returned func removes the registration.
func (m *Manager) OnSessionChange(fn func(Change)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Subscribe returns a feed of changes to one session. The channel is closed
// once ctx is done. A subscriber that falls behind misses changes.
func (m *Manager) Subscribe(ctx context.Context, sessionID string) <-chan Change {
	ch := make(chan Change, subscriberBuffer)
	subID := uuid.NewString()

	m.mu.Lock()
	if m.subs[sessionID] == nil {
		m.subs[sessionID] = make(map[string]chan Change)
	}
	m.subs[sessionID][subID] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if subs, ok := m.subs[sessionID]; ok {
			delete(subs, subID)
			if len(subs) == 0 {
				delete(m.subs, sessionID)
			}
		}
		close(ch)
		m.mu.Unlock()
	}()

	return ch
}

func (m *Manager) publish(c Change) {
	m.mu.RLock()
	listeners := make([]func(Change), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	for _, ch := range m.subs[c.SessionID] {
		select {
		case ch <- c:
		default:
		}
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}
