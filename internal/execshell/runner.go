// Package execshell runs external tools with captured output.
package execshell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  map[string]string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Name, c.Args)
}

// Result is the captured outcome of a command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// OSRunner executes commands with os/exec. A non-zero exit status is not an
// error; it is reported in Result.ExitCode. Failing to start the command or
// exceeding the timeout is.
type OSRunner struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewOSRunner creates a runner. A zero timeout disables the limit.
func NewOSRunner(timeout time.Duration, logger *zap.Logger) *OSRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OSRunner{timeout: timeout, logger: logger}
}

// Run executes cmd and waits for it to finish.
func (r *OSRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		env := append([]string{}, os.Environ()...)
		for k, v := range cmd.Env {
			env = append(env, k+"="+v)
		}
		c.Env = env
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	r.logger.Debug("running command", zap.String("command", cmd.String()), zap.String("dir", cmd.Dir))
	err := c.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s: %w", cmd.Name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug("command exited non-zero",
				zap.String("command", cmd.Name), zap.Int("exit_code", result.ExitCode))
			return result, nil
		}
		return result, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return result, nil
}
