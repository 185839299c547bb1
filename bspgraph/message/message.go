// Package message defines the mailboxes used to exchange data between graph
// vertices.
package message

// Message is a value sent from one vertex to another.
type Message interface {
	// Type identifies the kind of payload the message carries.
	Type() string
}

// Queue is a per-vertex mailbox.
type Queue interface {
	// Enqueue appends msg to the mailbox.
	Enqueue(msg Message) error

	// PendingMessages reports whether the mailbox is not empty.
	PendingMessages() bool

	// Messages returns an iterator over the queued messages in FIFO order.
	Messages() Iterator

	// DiscardMessages empties the mailbox.
	DiscardMessages() error

	// Close releases the resources held by the mailbox.
	Close() error
}

// Iterator walks the messages held by a Queue.
type Iterator interface {
	// Next advances to the following message and returns false once the
	// messages are exhausted or an error occurs.
	Next() bool

	// Message returns the current message.
	Message() Message

	// Error returns the last error encountered while iterating.
	Error() error
}

// QueueFactory creates empty Queue instances.
type QueueFactory func() Queue
