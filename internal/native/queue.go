package native

import "sync"

// Queue is an unbounded FIFO for handing notifications from observers to a
// consumer loop. Observers may run on the consumer goroutine itself, since a
// view notifies synchronously while it is being mutated, so Push never blocks.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

// NewQueue returns an empty Queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends item and signals Ready.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain removes and returns everything queued so far, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Ready is signalled at least once after every Push.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}
