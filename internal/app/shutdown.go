// Package app provides application shutdown handling.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ShutdownTimeout is the maximum time allowed to close every open pool
// once a termination signal arrives.
const ShutdownTimeout = 30 * time.Second

// GracefulShutdown blocks until SIGINT or SIGTERM is received, then invokes
// shutdown with a context bounded by ShutdownTimeout, closing every open
// registry pool and their Connections' background tasks. The done channel
// receives shutdown's result.
func GracefulShutdown(shutdown func(ctx context.Context) error, done chan<- error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit) // Clean up signal handler to prevent goroutine leak

	<-quit // Block until signal received

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	done <- shutdown(ctx)
}
