// Package player implements the per-guild playback engine: an ordered work
// queue with priority insert and shuffle, a supervising session loop that
// resolves and streams one item at a time, and a registry mapping guilds to
// their sessions.
//
// Concurrency model: each guild gets exactly one session goroutine (the
// single writer of session state); command handlers are producers that only
// touch the session through its queue and a small set of thread-safe
// controls. Sessions never block each other.
package player

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

// ErrQueueClosed is returned by [Queue.Get] and the Put methods after
// [Queue.Close].
var ErrQueueClosed = errors.New("player: queue closed")

// Queue is a blocking, optionally capacity-bounded FIFO with priority
// insert and shuffle. It is the sole synchronisation point between
// producers (command handlers) and a consumer loop.
//
// All methods are safe for concurrent use.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int // 0 means unbounded
	closed   bool

	// notEmpty and notFull are broadcast channels: they are closed and
	// replaced whenever the respective condition may have changed, waking
	// all waiters. Waiters re-check state under the mutex.
	notEmpty chan struct{}
	notFull  chan struct{}
}

// NewQueue creates an empty queue. capacity <= 0 means unbounded.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		capacity: capacity,
		notEmpty: make(chan struct{}),
		notFull:  make(chan struct{}),
	}
}

// Put appends item to the back of the queue. When the queue is at capacity
// the call blocks until space frees, ctx is cancelled, or the queue closes.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	return q.put(ctx, item, false)
}

// PutFront inserts item ahead of all currently queued items. Like [Queue.Put]
// it blocks while the queue is at capacity.
func (q *Queue[T]) PutFront(ctx context.Context, item T) error {
	return q.put(ctx, item, true)
}

func (q *Queue[T]) put(ctx context.Context, item T, front bool) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			if front {
				q.items = append([]T{item}, q.items...)
			} else {
				q.items = append(q.items, item)
			}
			q.broadcastLocked(&q.notEmpty)
			q.mu.Unlock()
			return nil
		}
		wait := q.notFull
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Get removes and returns the front item, blocking until one is available,
// ctx is cancelled, or the queue closes while empty.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.broadcastLocked(&q.notFull)
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrQueueClosed
		}
		wait := q.notEmpty
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			// An item may have landed in the same instant the deadline
			// fired; prefer delivering it so an idle-timeout expiry never
			// races a wake-up from a new arrival.
			q.mu.Lock()
			if len(q.items) > 0 {
				item := q.items[0]
				q.items = q.items[1:]
				q.broadcastLocked(&q.notFull)
				q.mu.Unlock()
				return item, nil
			}
			q.mu.Unlock()
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// Shuffle replaces the queued sequence with a uniformly random permutation
// of the same items. It serialises against all other operations through the
// queue mutex, so no item is ever lost or duplicated.
func (q *Queue[T]) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

// Clear discards all queued items and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	q.broadcastLocked(&q.notFull)
	return n
}

// Len returns a snapshot of the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue currently holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Peek returns a copy of up to n items from the front of the queue without
// removing them. Used for queue displays.
func (q *Queue[T]) Peek(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]T, n)
	copy(out, q.items[:n])
	return out
}

// Close marks the queue closed and wakes all waiters. Queued items remain
// retrievable via Get until drained; further Puts fail with [ErrQueueClosed].
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked(&q.notEmpty)
	q.broadcastLocked(&q.notFull)
}

// broadcastLocked wakes all waiters on *ch by closing it and installing a
// fresh channel. Callers must hold q.mu.
func (q *Queue[T]) broadcastLocked(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}
