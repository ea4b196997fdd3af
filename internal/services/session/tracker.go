// Package session tracks which users currently have a completion in flight.
package session

import "sync"

// Tracker is a per-user single-flight guard. A user is either idle or busy;
// a busy user's new messages are dropped, never queued.
type Tracker struct {
	mu   sync.Mutex
	busy map[int64]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{busy: make(map[int64]struct{})}
}

// IsBusy reports whether userID has a request in flight.
func (t *Tracker) IsBusy(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.busy[userID]
	return ok
}

// SetBusy sets the flag unconditionally.
func (t *Tracker) SetBusy(userID int64, busy bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if busy {
		t.busy[userID] = struct{}{}
	} else {
		delete(t.busy, userID)
	}
}

// TryAcquire flips the flag from idle to busy and reports whether it did.
func (t *Tracker) TryAcquire(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.busy[userID]; ok {
		return false
	}
	t.busy[userID] = struct{}{}
	return true
}

// Release marks userID idle.
func (t *Tracker) Release(userID int64) {
	t.SetBusy(userID, false)
}

// Count returns the number of busy users.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.busy)
}
