package interfaces

import "context"

// EnqueueOptions controls message placement.
type EnqueueOptions struct {
	// DedupKey makes the enqueue a no-op while another message with the
	// same key is live on the queue.
	DedupKey string
}

// Enqueuer is the producer side of a durable queue. Pipeline stages
// depend on this rather than the concrete queue manager so tests can
// substitute a recorder.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload interface{}, opts EnqueueOptions) (string, error)
}
