package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeout_CompletesWithinDeadline(t *testing.T) {
	guard := NewTimeout("catalog-enrichment", 100*time.Millisecond)

	err := guard.Do(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, guard.Duration())
}

func TestTimeout_ExpiryWrapsDeadlineExceeded(t *testing.T) {
	guard := NewTimeout("catalog-enrichment", 10*time.Millisecond)

	err := guard.Do(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	require.ErrorIs(t, err, ErrTimeoutExceeded)
}

func TestTimeout_CallerCancellationPassesThrough(t *testing.T) {
	guard := NewTimeout("catalog-enrichment", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := guard.Do(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeoutExceeded)
}

func TestTimeout_OperationErrorPassesThrough(t *testing.T) {
	guard := NewTimeout("catalog-enrichment", time.Second)
	boom := errors.New("catalog query failed")

	err := guard.Do(context.Background(), func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}
