package queue

import (
	"context"
	"time"
)

// Message is one delivery of a queued job. The receipt handle identifies this
// delivery, not the message itself: every redelivery gets a fresh handle.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          []byte
}

// Queue is a durable at-least-once job queue. A received message stays hidden
// for the visibility timeout; deleting it by receipt handle acknowledges it,
// while leaving it untouched causes redelivery once the timeout expires. The
// queue moves messages exceeding its max receive count to a dead-letter
// destination on its own.
type Queue interface {
	Enqueue(ctx context.Context, body []byte) (string, error)
	Receive(ctx context.Context, max int, wait, visibility time.Duration) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}
