package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService is the producer side of the queue.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig tunes the consumer side.
type QueueConfig struct {
	Workers    int           // concurrent consumers
	QueueSize  int           // buffered message capacity
	RetryLimit int           // attempts before the dead letter queue
	RetryDelay time.Duration // pause between attempts
}

// Message is the wire envelope stored in Redis.
type Message struct {
	ID        string
	Type      string
	Payload   interface{}
	Attempts  int
	Timestamp time.Time
}

// ParsePayload coerces a queue payload into *T. Payloads arrive either
// as the typed value (same-process enqueue) or as decoded JSON after a
// Redis round trip.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(p, &out); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &out, nil
	case map[string]interface{}, []interface{}:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("remarshal payload: %w", err)
		}
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}
