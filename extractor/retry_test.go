package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-aggregator/internal/types"
)

func newTestRetrier(attempts int) *Retrier {
	return &Retrier{MaxAttempts: attempts, Backoff: LinearBackoff(0), Logger: testLogger()}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	_, err := Retry(context.Background(), newTestRetrier(3), "test", func(ctx context.Context) ([]int, error) {
		calls++
		return nil, boom
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	var exhausted *types.ExhaustedRetriesError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, boom)
}

func TestRetry_EmptyResultsAreRetried(t *testing.T) {
	calls := 0

	items, err := Retry(context.Background(), newTestRetrier(3), "test", func(ctx context.Context) ([]int, error) {
		calls++
		if calls < 3 {
			return nil, nil
		}
		return []int{1, 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, items)
	assert.Equal(t, 3, calls)
}

func TestRetry_EmptyEveryTime(t *testing.T) {
	_, err := Retry(context.Background(), newTestRetrier(2), "test", func(ctx context.Context) ([]int, error) {
		return []int{}, nil
	})

	assert.ErrorIs(t, err, types.ErrNoResults)
}

func TestRetry_AbortIsNotRetried(t *testing.T) {
	calls := 0

	_, err := Retry(context.Background(), newTestRetrier(3), "test", func(ctx context.Context) ([]int, error) {
		calls++
		return nil, types.ErrSuperseded
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, types.ErrSuperseded)
}

func TestRetry_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(types.ErrShutdown)
	calls := 0

	_, err := Retry(ctx, newTestRetrier(3), "test", func(ctx context.Context) ([]int, error) {
		calls++
		return []int{1}, nil
	})

	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, types.ErrShutdown)
}

func TestRetry_CancellationWinsOverFailure(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())

	_, err := Retry(ctx, newTestRetrier(3), "test", func(ctx context.Context) ([]int, error) {
		cancel(types.ErrSuperseded)
		return nil, errors.New("navigation failed")
	})

	assert.ErrorIs(t, err, types.ErrSuperseded)
	var exhausted *types.ExhaustedRetriesError
	assert.False(t, errors.As(err, &exhausted))
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	r := &Retrier{MaxAttempts: 3, Backoff: LinearBackoff(time.Hour), Logger: testLogger()}
	ctx, cancel := context.WithCancelCause(context.Background())
	calls := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel(types.ErrSuperseded)
	}()

	start := time.Now()
	_, err := Retry(ctx, r, "test", func(ctx context.Context) ([]int, error) {
		calls++
		return nil, errors.New("boom")
	})

	assert.ErrorIs(t, err, types.ErrSuperseded)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0

	_, err := Retry(context.Background(), newTestRetrier(0), "test", func(ctx context.Context) ([]int, error) {
		calls++
		return nil, errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(100 * time.Millisecond)

	assert.Equal(t, 100*time.Millisecond, backoff(1))
	assert.Equal(t, 300*time.Millisecond, backoff(3))
}

func TestNewRetrier(t *testing.T) {
	config := testConfig()
	config.MaxRetries = 4
	config.RetryBackoff = time.Second

	r := NewRetrier(config, testLogger())

	assert.Equal(t, 4, r.MaxAttempts)
	assert.Equal(t, 2*time.Second, r.Backoff(2))
}
