package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/internal/schedule"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	"github.com/ajitpratap0/snowlift/pkg/metrics"
)

func newScheduleCommand(g *globals) *cobra.Command {
	var migrationCron, backupCron string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run migrations (and backups) on a cron schedule",
		Long: `Run the migration on a cron schedule until interrupted. The expression
comes from --cron or SCHEDULE; standard five-field expressions and
descriptors such as @daily or "@every 6h" are accepted. A run that is
still in progress when the next one is due causes that tick to be skipped.

Example:
  snowlift schedule --cron "0 2 * * *" --backup-cron "@weekly"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			if migrationCron == "" {
				migrationCron = cfg.Schedule
			}
			if migrationCron == "" {
				return errors.MissingConfiguration([]string{"SCHEDULE"})
			}
			if err := cfg.Validate(); err != nil {
				log.Error("invalid configuration", zap.Error(err))
				return &exitError{code: 1, err: err}
			}

			s, err := newScheduler(cfg, log, metrics.NewRecorder(), migrationCron, backupCron)
			if err != nil {
				return err
			}
			s.Run(cmd.Context())
			return nil
		},
	}

	cmd.Flags().StringVar(&migrationCron, "cron", "", "Cron expression for the migration (default SCHEDULE)")
	cmd.Flags().StringVar(&backupCron, "backup-cron", "", "Cron expression for pg_dump backups (disabled when empty)")
	return cmd
}

// newScheduler registers the migration job and, when backupCron is set, the
// backup job. Both record on rec, which outlives every run.
func newScheduler(cfg *config.Config, log *zap.Logger, rec *metrics.Recorder, migrationCron, backupCron string) (*schedule.Scheduler, error) {
	s := schedule.New(log)
	if err := s.Add("migration", migrationCron, migrationJob(cfg, log, rec)); err != nil {
		return nil, err
	}
	if backupCron != "" {
		if err := s.Add("backup", backupCron, backupJob(cfg, log, rec)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func migrationJob(cfg *config.Config, log *zap.Logger, rec *metrics.Recorder) schedule.Job {
	return func(ctx context.Context) {
		// failures are logged by the run itself
		_ = runMigration(ctx, cfg, log, rec)
	}
}

func backupJob(cfg *config.Config, log *zap.Logger, rec *metrics.Recorder) schedule.Job {
	return func(ctx context.Context) {
		_, _ = runBackup(ctx, cfg, log, rec)
	}
}
