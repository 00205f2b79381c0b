// Package tracker matches outgoing request ids to their eventual
// responses. One Tracker instance serves one protocol connection; the
// daemon stdio client and the VM service client each own one.
package tracker

import (
	"sync"
	"time"
)

// pending is a registered request awaiting its response.
type pending[T any] struct {
	response chan T
	created  time.Time
}

// Tracker correlates request ids with responses. Ids come from a
// process-lifetime monotonic counter and are never reused. All methods
// are safe for concurrent use.
type Tracker[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]*pending[T]

	// now is time.Now, swapped in tests that age entries.
	now func() time.Time
}

// New creates an empty tracker.
func New[T any]() *Tracker[T] {
	return &Tracker[T]{
		entries: make(map[uint64]*pending[T], 10),
		now:     time.Now,
	}
}

// Register allocates a fresh id and a one-shot receiver for its
// response. The id goes into the outgoing request; the caller awaits
// the receiver, typically racing it against its own timeout.
func (t *Tracker[T]) Register() (uint64, <-chan T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID

	// Buffered so Complete never blocks on an abandoned receiver.
	ch := make(chan T, 1)
	t.entries[id] = &pending[T]{response: ch, created: t.now()}

	return id, ch
}

// Complete removes the pending entry for id and delivers the response.
// Delivery to an abandoned receiver is fire-and-forget success. Returns
// false only when no entry existed for id; that case has no side effect.
func (t *Tracker[T]) Complete(id uint64, response T) bool {
	t.mu.Lock()

	entry, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}

	t.mu.Unlock()

	if !ok {
		return false
	}

	entry.response <- response

	return true
}

// CleanupStale removes every entry older than maxAge and returns their
// ids. The tracker never times requests out on its own; callers sweep
// periodically and fail the returned ids however they see fit.
func (t *Tracker[T]) CleanupStale(maxAge time.Duration) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxAge)

	var stale []uint64

	for id, entry := range t.entries {
		if entry.created.Before(cutoff) {
			stale = append(stale, id)

			delete(t.entries, id)
		}
	}

	return stale
}

// Len reports the number of pending entries.
func (t *Tracker[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}
