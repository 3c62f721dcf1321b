package command

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pavelc4/auriya/internal/errors"
)

// Runner executes an external program and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Exec runs commands with os/exec. The context deadline bounds each call.
type Exec struct{}

func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.New().Wrap(errors.ErrTimeout, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return stdout.Bytes(), errors.New().WithData(errors.ErrTelemetryUnavailable, name+": "+msg)
	}

	return stdout.Bytes(), nil
}

// Func adapts a function to Runner.
type Func func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f Func) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}
