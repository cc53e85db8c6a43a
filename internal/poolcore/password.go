package poolcore

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	domainerrors "github.com/iruldev/dbcore/internal/domain/errors"
	"github.com/iruldev/dbcore/internal/eventbus"
)

// passwordCmdTimeout bounds how long a password-producing executable may
// run before materialization fails.
const passwordCmdTimeout = 10 * time.Second

// materializePassword resolves a literal password or, when cmd is set,
// runs it and captures stdout (trimmed of trailing newlines) as the
// password. stderr is streamed line by line to bus as it is produced so a
// subscriber can watch a failing credential helper live.
func materializePassword(ctx context.Context, literal string, cmd []string, subject string, bus *eventbus.Bus) (string, error) {
	if len(cmd) == 0 {
		return literal, nil
	}

	ctx, cancel := context.WithTimeout(ctx, passwordCmdTimeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)

	stderrPipe, err := c.StderrPipe()
	if err != nil {
		return "", domainerrors.NewDomainWithCause(domainerrors.CodePasswordLoadFailed, "failed to attach stderr to password command", err)
	}
	stdoutPipe, err := c.StdoutPipe()
	if err != nil {
		return "", domainerrors.NewDomainWithCause(domainerrors.CodePasswordLoadFailed, "failed to attach stdout to password command", err)
	}

	if err := c.Start(); err != nil {
		return "", domainerrors.NewDomainWithCause(domainerrors.CodePasswordLoadFailed, "failed to start password command", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			if bus != nil {
				bus.Publish(eventbus.Event{
					Kind:    eventbus.KindPasswordCmdLine,
					Subject: subject,
					Message: scanner.Text(),
				})
			}
		}
	}()

	stdout, readErr := io.ReadAll(stdoutPipe)

	<-done
	waitErr := c.Wait()
	if waitErr != nil {
		return "", domainerrors.NewDomainWithCause(domainerrors.CodePasswordLoadFailed, "password command exited with failure", waitErr)
	}
	if ctx.Err() != nil {
		return "", domainerrors.NewDomain(domainerrors.CodePasswordLoadFailed, "password command timed out")
	}
	if readErr != nil {
		return "", domainerrors.NewDomainWithCause(domainerrors.CodePasswordLoadFailed, "failed to read password command output", readErr)
	}

	return strings.TrimRight(string(stdout), "\n"), nil
}
