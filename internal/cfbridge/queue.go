package cfbridge

import (
	"sync"
	"time"
)

// DefaultQueueCapacity is the number of events held before notifications are dropped.
const DefaultQueueCapacity = 64

// Infinite makes WaitForEvent block until an event arrives or the queue closes.
const Infinite time.Duration = -1

// EventQueue is a bounded FIFO ring of events shared by OS callback threads
// (producers) and the application (consumer). A full queue rejects new events
// rather than overwriting old ones.
type EventQueue struct {
	mu     sync.Mutex
	slots  []Event
	head   int
	count  int
	closed bool

	// signal is edge-triggered: one pending wake, further enqueues coalesce.
	signal chan struct{}
	// done is closed by Close to release every waiter at once.
	done chan struct{}
}

// NewEventQueue preallocates a queue. A non-positive capacity selects DefaultQueueCapacity.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &EventQueue{
		slots:  make([]Event, capacity),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue appends ev and wakes a waiter. It never blocks.
func (q *EventQueue) Enqueue(ev Event) error {
	if ev == nil {
		return ErrInvalidParam
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrNotInitialized
	}
	if q.count == len(q.slots) {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.slots[(q.head+q.count)%len(q.slots)] = ev
	q.count++
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue removes the oldest event without blocking.
func (q *EventQueue) Dequeue() (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrNotInitialized
	}
	if q.count == 0 {
		return nil, ErrQueueEmpty
	}
	ev := q.slots[q.head]
	q.slots[q.head] = nil
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	return ev, nil
}

// Wait returns nil as soon as the queue is non-empty, or after a wake signal,
// or ErrTimeout once timeout has elapsed. A zero timeout checks without
// blocking; Infinite waits until an event arrives or the queue is closed.
// A nil return does not guarantee a following Dequeue succeeds: callers
// drain until ErrQueueEmpty.
func (q *EventQueue) Wait(timeout time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrNotInitialized
	}
	if q.count > 0 {
		q.mu.Unlock()
		return nil
	}
	done := q.done
	q.mu.Unlock()

	if timeout == 0 {
		return ErrTimeout
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-q.signal:
		return nil
	case <-done:
		return ErrNotInitialized
	case <-expired:
		return ErrTimeout
	}
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *EventQueue) Cap() int { return len(q.slots) }

// Close discards queued events and releases all waiters. Later calls fail
// with ErrNotInitialized until Reset.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.clear()
	close(q.done)
}

// Reset reopens a closed queue, empty.
func (q *EventQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clear()
	if q.closed {
		q.closed = false
		q.done = make(chan struct{})
	}
	select {
	case <-q.signal:
	default:
	}
}

func (q *EventQueue) clear() {
	for i := range q.slots {
		q.slots[i] = nil
	}
	q.head = 0
	q.count = 0
}
