package app

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGracefulShutdown_CleanExit(t *testing.T) {
	done := make(chan error, 1)
	var invoked bool

	go func() {
		// Give GracefulShutdown time to install the signal handler.
		time.Sleep(50 * time.Millisecond)
		if err := syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
			t.Errorf("failed to send signal: %v", err)
		}
	}()

	go GracefulShutdown(func(ctx context.Context) error {
		invoked = true
		return nil
	}, done)

	select {
	case err := <-done:
		assert.NoError(t, err, "shutdown should complete without error")
		assert.True(t, invoked, "shutdown callback should have been invoked")
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown timed out")
	}
}

func TestGracefulShutdown_PropagatesError(t *testing.T) {
	done := make(chan error, 1)
	boom := assert.AnError

	go func() {
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	}()

	go GracefulShutdown(func(ctx context.Context) error {
		return boom
	}, done)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown timed out")
	}
}

func TestShutdownTimeout_IsCorrect(t *testing.T) {
	require.Equal(t, 30*time.Second, ShutdownTimeout, "ShutdownTimeout should bound pool teardown")
}
