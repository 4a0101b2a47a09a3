// Package command is the subprocess capability shared by the transformation
// trigger and the backup dumper. Callers depend on Runner so tests can
// substitute a fake instead of spawning processes.
package command

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/pkg/logger"
)

// Spec describes one invocation
type Spec struct {
	Name string
	Args []string
	// Env is appended to the parent environment
	Env []string
	Dir string
}

// String renders the command line for logs. Env is never included.
func (s Spec) String() string {
	return strings.Join(append([]string{s.Name}, s.Args...), " ")
}

// Result holds the captured streams and exit status of a finished command
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Success reports whether the command exited with status zero
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Runner runs external commands and captures their output
type Runner interface {
	// Run blocks until the command exits. A non-zero exit is reported through
	// Result.ExitCode with a nil error; the error is reserved for commands
	// that could not be started or waited on.
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// ExecRunner runs commands on the local host
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates a runner backed by os/exec
func NewExecRunner(log *zap.Logger) *ExecRunner {
	return &ExecRunner{logger: logger.Component(log, "command")}
}

// Run executes spec, capturing stdout and stderr in full
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running command", zap.String("command", spec.String()))

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return res, err
		}
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			// killed by a signal, usually context cancellation
			res.ExitCode = -1
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
		}
	}

	r.logger.Debug("command finished",
		zap.String("command", spec.Name),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration))

	return res, nil
}
