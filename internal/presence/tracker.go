// Package presence records which users hold a live realtime connection on
// this process. Nothing is persisted or shared between instances.
package presence

import (
	"sync"

	"github.com/google/uuid"
)

// Tracker maps a user to the connection handle that registered last.
// H is whatever the transport uses to identify a connection.
type Tracker[H comparable] struct {
	mu    sync.RWMutex
	users map[uuid.UUID]H
}

// NewTracker returns an empty tracker.
func NewTracker[H comparable]() *Tracker[H] {
	return &Tracker[H]{users: make(map[uuid.UUID]H)}
}

// Register records handle as the user's connection. A later register for the
// same user replaces the earlier one.
func (t *Tracker[H]) Register(userID uuid.UUID, handle H) {
	t.mu.Lock()
	t.users[userID] = handle
	t.mu.Unlock()
}

// Unregister removes the user only if handle is still the registered one, so
// a replaced connection closing late does not mark the user offline. It
// reports whether the user went offline.
func (t *Tracker[H]) Unregister(userID uuid.UUID, handle H) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.users[userID]
	if !ok || current != handle {
		return false
	}
	delete(t.users, userID)
	return true
}

// IsOnline reports whether the user holds a registered connection.
func (t *Tracker[H]) IsOnline(userID uuid.UUID) bool {
	t.mu.RLock()
	_, ok := t.users[userID]
	t.mu.RUnlock()
	return ok
}

// ListOnline returns a snapshot of the online user ids.
func (t *Tracker[H]) ListOnline() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(t.users))
	for id := range t.users {
		out = append(out, id)
	}
	return out
}

// Statuses answers an online-status query for the given ids.
func (t *Tracker[H]) Statuses(userIDs []uuid.UUID) map[uuid.UUID]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		_, out[id] = t.users[id]
	}
	return out
}

// Count returns the number of online users.
func (t *Tracker[H]) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}
