package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/internal/app"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	"github.com/ajitpratap0/snowlift/pkg/metrics"
)

func newBackupCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Dump the source database with pg_dump",
		Long: `Dump the source database with pg_dump into BACKUP_DIR
(postgres_backup_YYYYMMDD_HHMMSS.sql), optionally compressing it and
copying it to S3 and/or GCS. Prints the path of the dump.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			path, err := runBackup(cmd.Context(), cfg, log, metrics.NewRecorder())
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// runBackup dumps the database, records the run on rec and writes the
// metrics file.
func runBackup(ctx context.Context, cfg *config.Config, log *zap.Logger, rec *metrics.Recorder) (string, error) {
	res, err := app.Backup(ctx, cfg, log, rec)

	outcome := "success"
	if err != nil {
		outcome = "failed"
		log.Error("backup failed", zap.Error(err))
	}
	rec.RecordRun("backup", outcome, time.Now())
	writeMetrics(rec, cfg, log)

	if res == nil {
		return "", err
	}
	return res.Path, err
}
