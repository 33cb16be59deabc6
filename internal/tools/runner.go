package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// DefaultTimeout bounds an external tool invocation when the runner is
// not configured with an explicit timeout.
const DefaultTimeout = 5 * time.Minute

// Runner executes an external tool and captures its output. It is the
// injection point that lets pipeline stages run without real binaries.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs tools as subprocesses. Every invocation is bounded by
// a timeout; the process is killed when the deadline expires.
type ExecRunner struct {
	Timeout time.Duration
}

var _ Runner = (*ExecRunner)(nil)

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s timed out after %s", name, timeout)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
