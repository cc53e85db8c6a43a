package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		DrainPeriod: 200 * time.Millisecond,
		GracePeriod: 10 * time.Millisecond,
	}
}

func TestShutdownCoordinator_TracksCheckouts(t *testing.T) {
	s := NewShutdownCoordinator(testShutdownConfig())

	require.True(t, s.IncrementActive())
	require.True(t, s.IncrementActive())
	assert.Equal(t, int64(2), s.ActiveCount())

	s.DecrementActive()
	assert.Equal(t, int64(1), s.ActiveCount())
}

func TestShutdownCoordinator_RejectsCheckoutsAfterInitiate(t *testing.T) {
	s := NewShutdownCoordinator(testShutdownConfig())

	require.False(t, s.IsShuttingDown())
	s.InitiateShutdown()
	require.True(t, s.IsShuttingDown())

	assert.False(t, s.IncrementActive())
	assert.Equal(t, int64(0), s.ActiveCount())
}

func TestShutdownCoordinator_DrainCompletesWhenWorkReturns(t *testing.T) {
	s := NewShutdownCoordinator(testShutdownConfig())

	require.True(t, s.IncrementActive())
	s.InitiateShutdown()

	go func() {
		time.Sleep(30 * time.Millisecond)
		s.DecrementActive()
	}()

	require.NoError(t, s.WaitForDrain(context.Background()))
	assert.Equal(t, int64(0), s.ActiveCount())
}

func TestShutdownCoordinator_DrainTimesOutOnStuckWork(t *testing.T) {
	s := NewShutdownCoordinator(ShutdownConfig{
		DrainPeriod: 50 * time.Millisecond,
		GracePeriod: 10 * time.Millisecond,
	})

	require.True(t, s.IncrementActive())
	s.InitiateShutdown()

	err := s.WaitForDrain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 checkouts still outstanding")
}

func TestShutdownCoordinator_DecrementClampsAtZero(t *testing.T) {
	s := NewShutdownCoordinator(testShutdownConfig())

	s.DecrementActive()
	assert.Equal(t, int64(0), s.ActiveCount())
}

func TestShutdownCoordinator_InitiateIsIdempotent(t *testing.T) {
	s := NewShutdownCoordinator(testShutdownConfig())
	s.InitiateShutdown()
	s.InitiateShutdown()
	assert.True(t, s.IsShuttingDown())
}

func TestShutdownCoordinator_ConfigExposesGracePeriod(t *testing.T) {
	cfg := testShutdownConfig()
	s := NewShutdownCoordinator(cfg)
	assert.Equal(t, cfg.GracePeriod, s.Config().GracePeriod)
}

func TestNewShutdownCoordinator_PanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewShutdownCoordinator(ShutdownConfig{DrainPeriod: 0})
	})
}
