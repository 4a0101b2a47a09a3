package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/internal/app"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	"github.com/ajitpratap0/snowlift/pkg/metrics"
	"github.com/ajitpratap0/snowlift/pkg/observability"
)

func newRunCommand(g *globals) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one migration",
		Long: `Run one migration: validate the configuration, extract the query result
from PostgreSQL, stage it as CSV, load it into Snowflake and run the
transformation command.

Exit status is 0 when the run succeeds or the query returns no rows,
and 1 for any failed stage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return runMigration(ctx, cfg, log, metrics.NewRecorder())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long (0 disables)")
	return cmd
}

// runMigration executes one run, records it on rec, writes the metrics file
// and maps the outcome onto an exit code.
func runMigration(ctx context.Context, cfg *config.Config, log *zap.Logger, rec *metrics.Recorder) error {
	tracing, err := observability.NewTracing(observability.TracingConfig{
		Enabled:        cfg.Observability.TracingEnabled,
		ServiceName:    "snowlift",
		ServiceVersion: version,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			log.Warn("failed to shut down tracing", zap.Error(err))
		}
	}()

	report := app.Migration(cfg, log, rec, tracing.Tracer("snowlift")).Run(ctx)
	writeMetrics(rec, cfg, log)

	if code := report.ExitCode(); code != 0 {
		return &exitError{code: code, err: report.Err}
	}
	return nil
}
