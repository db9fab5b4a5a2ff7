// Package retry provides bounded retry with jittered exponential
// backoff for calls whose outcome the caller must classify itself.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy defines how to retry an operation.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Placement bounds the in-call attempts of an order submission. It is
// deliberately tight: an ambiguous placement must surface quickly so
// the reconciler can mark the order Unknown instead of hammering the
// venue. Read-path retries live in the resilience decorator around the
// exchange client.
var Placement = Policy{
	MaxAttempts:    2,
	InitialBackoff: 250 * time.Millisecond,
	MaxBackoff:     1 * time.Second,
}

// IsRetryableFunc decides whether an error should be retried.
type IsRetryableFunc func(error) bool

// Do executes fn with jittered exponential backoff according to the
// policy. The last error is returned once attempts are exhausted.
func Do(ctx context.Context, policy Policy, isRetryable IsRetryableFunc, fn func() error) error {
	var err error
	backoff := policy.InitialBackoff

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		sleep := backoff
		if half := int64(backoff / 2); half > 0 {
			sleep += time.Duration(rand.Int63n(half))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
			backoff = min(backoff*2, policy.MaxBackoff)
		}
	}

	return err
}
