package app

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/pkg/command"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/transform"
)

// NewTransformer returns the trigger for the configured transformation
// command, run as a child process.
func NewTransformer(cfg *config.Config, log *zap.Logger) *transform.Trigger {
	return transform.NewTrigger(command.NewExecRunner(log), cfg.Transform, log)
}
