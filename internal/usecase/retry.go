package usecase

import (
	"context"
	"math/rand"
	"time"

	domrepo "FinRank/internal/domain/repository"
)

// RetryPolicy bounds store retries per operation.
type RetryPolicy struct {
	Max        int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Max <= 0 {
		p.Max = 3
	}
	if p.BackoffMin <= 0 {
		p.BackoffMin = 50 * time.Millisecond
	}
	if p.BackoffMax < p.BackoffMin {
		p.BackoffMax = p.BackoffMin
	}
	return p
}

// withRetry runs fn under the policy with exponential backoff and
// jitter. The last error is returned once the budget is exhausted.
func withRetry(ctx context.Context, p RetryPolicy, metrics domrepo.Metrics, op string, fn func(context.Context) error) error {
	p = p.normalized()
	var err error
	for attempt := 1; attempt <= p.Max; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == p.Max {
			break
		}
		if metrics != nil {
			metrics.RecordStoreRetry(op)
		}
		sleep := retryBackoff(p.BackoffMin, p.BackoffMax, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return err
}

func retryBackoff(min, max time.Duration, attempt int) time.Duration {
	// exponential backoff base
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max {
		exp = max
	}
	// jitter up to 50%
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp - jitter
}
