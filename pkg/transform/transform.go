// Package transform triggers the external SQL transformation toolchain
// (dbt by default) after a successful load.
package transform

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/pkg/command"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	stringpool "github.com/ajitpratap0/snowlift/pkg/strings"
)

// DetailStderr holds the captured error stream of a failed transformation
const DetailStderr = "stderr"

// Trigger runs the transformation command
type Trigger struct {
	runner command.Runner
	cfg    config.TransformConfig
	logger *zap.Logger
}

// NewTrigger creates a trigger for cfg using runner
func NewTrigger(runner command.Runner, cfg config.TransformConfig, log *zap.Logger) *Trigger {
	if cfg.Command == "" {
		cfg.Command = "dbt"
	}
	if cfg.Subcommand == "" {
		cfg.Subcommand = "run"
	}
	return &Trigger{
		runner: runner,
		cfg:    cfg,
		logger: logger.Component(log, "transform"),
	}
}

// Spec returns the command line the trigger executes
func (t *Trigger) Spec() command.Spec {
	args := []string{t.cfg.Subcommand}
	if t.cfg.ProjectDir != "" {
		args = append(args, "--project-dir", t.cfg.ProjectDir)
	}
	if t.cfg.ProfilesDir != "" {
		args = append(args, "--profiles-dir", t.cfg.ProfilesDir)
	}
	if t.cfg.Target != "" {
		args = append(args, "--target", t.cfg.Target)
	}
	return command.Spec{Name: t.cfg.Command, Args: args}
}

// Run executes the transformation and succeeds only on exit status zero.
// Any other outcome is a transformation_failed error carrying stderr.
func (t *Trigger) Run(ctx context.Context) (*command.Result, error) {
	spec := t.Spec()
	t.logger.Info("running transformations", zap.String("command", spec.String()))

	res, err := t.runner.Run(ctx, spec)
	if err != nil {
		e := errors.Wrap(err, errors.ErrorTypeTransformation, "failed to start transformation command").
			WithDetail("command", spec.String())
		if res != nil {
			e.WithDetail(DetailStderr, res.Stderr)
		}
		return res, e
	}

	if res == nil {
		return nil, errors.New(errors.ErrorTypeTransformation, "transformation command reported no result").
			WithDetail("command", spec.String())
	}

	if !res.Success() {
		stderr := strings.TrimSpace(res.Stderr)
		msg := stringpool.Sprintf("transformation command exited with status %d", res.ExitCode)
		if stderr != "" {
			msg += ": " + stderr
		}
		return res, errors.New(errors.ErrorTypeTransformation, msg).
			WithDetail("command", spec.String()).
			WithDetail("exit_code", res.ExitCode).
			WithDetail(DetailStderr, res.Stderr)
	}

	t.logger.Info("transformations completed",
		zap.Duration("duration", res.Duration),
		zap.Int("stdout_bytes", len(res.Stdout)))
	return res, nil
}

// Stderr returns the captured error stream attached to a transformation error
func Stderr(err error) string {
	var e *errors.Error
	if !errors.As(err, &e) {
		return ""
	}
	if v, ok := e.Detail(DetailStderr); ok {
		s, _ := v.(string)
		return s
	}
	return ""
}
