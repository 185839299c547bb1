package message

import "sync"

// fifoQueue implements a first-in, first-out queue that stores messages in
// memory. Messages can be enqueued concurrently but the returned iterator is
// not safe for concurrent access.
type fifoQueue struct {
	mu   sync.Mutex
	msgs []Message
	head int

	latchedMsg Message
}

// NewInMemoryQueue creates a new in-memory FIFO queue instance. This function
// can serve as a QueueFactory.
func NewInMemoryQueue() Queue {
	return new(fifoQueue)
}

// Enqueue implements Queue.
func (q *fifoQueue) Enqueue(msg Message) error {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()
	return nil
}

// PendingMessages implements Queue.
func (q *fifoQueue) PendingMessages() bool {
	q.mu.Lock()
	pending := q.head < len(q.msgs)
	q.mu.Unlock()
	return pending
}

// DiscardMessages implements Queue. The backing array is retained so that
// the next superstep can reuse it.
func (q *fifoQueue) DiscardMessages() error {
	q.mu.Lock()
	for i := range q.msgs {
		q.msgs[i] = nil
	}
	q.msgs = q.msgs[:0]
	q.head = 0
	q.latchedMsg = nil
	q.mu.Unlock()
	return nil
}

// Close implements Queue.
func (q *fifoQueue) Close() error { return q.DiscardMessages() }

// Messages implements Queue.
func (q *fifoQueue) Messages() Iterator { return q }

// Next implements Iterator.
func (q *fifoQueue) Next() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.msgs) {
		return false
	}
	q.latchedMsg = q.msgs[q.head]
	q.head++
	return true
}

// Message implements Iterator.
func (q *fifoQueue) Message() Message {
	q.mu.Lock()
	msg := q.latchedMsg
	q.mu.Unlock()
	return msg
}

// Error implements Iterator.
func (*fifoQueue) Error() error { return nil }
