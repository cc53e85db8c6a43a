package poolcore

import (
	"testing"

	"go.uber.org/goleak"
)

// Leaked background tasks are exactly the defect class this package
// exists to prevent: every Connection spawns a goroutine, every Pool an
// idle watcher, and each must observe its kill or cancel signal.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("github.com/testcontainers/testcontainers-go.(*Reaper).connect.func1"),
	)
}
