package checkpointer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds transient-failure retries for per-object fetches.
// Zero values fall back to the defaults.
type RetryPolicy struct {
	// MaxAttempts counts the initial try plus retries.
	MaxAttempts     int
	InitialInterval time.Duration
}

const defaultMaxAttempts = 3

func (p RetryPolicy) retry(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
}
