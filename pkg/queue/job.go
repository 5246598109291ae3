package queue

import "context"

// Job consumes messages of one type from the queue.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type this job subscribes to.
	Type() string

	// Handle processes a single payload. Returning an error triggers
	// the retry schedule and eventually the dead letter queue.
	Handle(ctx context.Context, payload interface{}) error
}
