package extractor

import (
	"context"
	"time"

	"product-aggregator/internal/types"
)

// BackoffFunc returns the delay before attempt n+1 after attempt n (1-based) failed
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff waits base, 2*base, 3*base, ...
func LinearBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Retrier runs an operation up to MaxAttempts times. Empty results count as failures,
// cancellation stops immediately.
type Retrier struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Logger      types.Logger
}

// NewRetrier creates a retrier from config
func NewRetrier(config *types.Config, logger types.Logger) *Retrier {
	return &Retrier{
		MaxAttempts: config.MaxRetries,
		Backoff:     LinearBackoff(config.RetryBackoff),
		Logger:      logger,
	}
}

// Retry runs op with r's policy. It returns ErrAborted-flavored errors as soon as
// ctx is cancelled or op reports an abort, and ExhaustedRetriesError once every attempt failed.
func Retry[T any](ctx context.Context, r *Retrier, name string, op func(ctx context.Context) ([]T, error)) ([]T, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, types.Aborted(ctx)
		}

		items, err := op(ctx)
		if err == nil && len(items) > 0 {
			if attempt > 1 {
				r.Logger.Debugf("%s succeeded on attempt %d/%d", name, attempt, attempts)
			}
			return items, nil
		}
		if err == nil {
			err = types.ErrNoResults
		}
		if types.IsAborted(err) || ctx.Err() != nil {
			if ctx.Err() != nil {
				return nil, types.Aborted(ctx)
			}
			return nil, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := time.Duration(0)
		if r.Backoff != nil {
			wait = r.Backoff(attempt)
		}
		r.Logger.Debugf("%s attempt %d/%d failed: %v (retrying in %v)", name, attempt, attempts, err, wait)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, types.Aborted(ctx)
			case <-timer.C:
			}
		}
	}

	return nil, &types.ExhaustedRetriesError{Attempts: attempts, Last: lastErr}
}
