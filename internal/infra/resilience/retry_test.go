package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetrier("pool-recreate", testRetryConfig())

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_ExhaustionWrapsLastError(t *testing.T) {
	r := NewRetrier("pool-recreate", testRetryConfig())
	boom := errors.New("dial tcp: connection refused")

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

type permanentErr struct{}

func (permanentErr) Error() string   { return "password authentication failed" }
func (permanentErr) Retryable() bool { return false }

func TestRetrier_NonRetryableStopsImmediately(t *testing.T) {
	r := NewRetrier("pool-recreate", testRetryConfig())

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanentErr{}
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_ContextCancellationStopsRetries(t *testing.T) {
	r := NewRetrier("pool-recreate", testRetryConfig())

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("dial failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDefaultIsRetryable(t *testing.T) {
	assert.False(t, DefaultIsRetryable(nil))
	assert.False(t, DefaultIsRetryable(context.Canceled))
	assert.True(t, DefaultIsRetryable(context.DeadlineExceeded))
	assert.False(t, DefaultIsRetryable(permanentErr{}))
	// Unknown errors default to retryable: a failed dial is usually
	// a transient network condition.
	assert.True(t, DefaultIsRetryable(errors.New("connection reset by peer")))
}

func TestRetrier_CustomRetryablePredicate(t *testing.T) {
	r := NewRetrier("pool-recreate", testRetryConfig(),
		WithRetryableFunc(func(error) bool { return false }))

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
