package transport

import "sync"

// Queue buffers events produced by reader goroutines until the owning
// goroutine drains them through Host.Service.
type Queue struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue holding up to size pending events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	return &Queue{ch: make(chan Event, size)}
}

// Push enqueues an event, blocking while the queue is full.
// Returns false if the queue has been closed.
func (q *Queue) Push(ev Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	q.ch <- ev
	return true
}

// TryPop returns the next event without waiting.
func (q *Queue) TryPop() (Event, bool) {
	select {
	case ev, ok := <-q.ch:
		return ev, ok
	default:
		return Event{}, false
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting events. Buffered events are dropped.
func (q *Queue) Close() {
	// Unblock pushers waiting on a full channel before taking the write lock.
	go func() {
		for range q.ch {
		}
	}()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
