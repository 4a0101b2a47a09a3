// Package app wires configuration into the concrete collaborators used by
// the command line: the PostgreSQL extractor, the staging serializer, the
// Snowflake loader, the transformation trigger and the backup dumper.
package app

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/internal/pipeline"
	"github.com/ajitpratap0/snowlift/pkg/backup"
	"github.com/ajitpratap0/snowlift/pkg/command"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/connector/destinations/snowflake"
	"github.com/ajitpratap0/snowlift/pkg/connector/sources/postgresql"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	"github.com/ajitpratap0/snowlift/pkg/metrics"
	"github.com/ajitpratap0/snowlift/pkg/models"
	"github.com/ajitpratap0/snowlift/pkg/staging"
)

// LoggerConfig maps the observability section onto logger settings. An
// explicit level overrides the configured one.
func LoggerConfig(cfg config.ObservabilityConfig, level string) logger.Config {
	lc := logger.DefaultConfig()
	if cfg.LogLevel != "" {
		lc.Level = cfg.LogLevel
	}
	if level != "" {
		lc.Level = level
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "console", "text":
		lc.Encoding = "console"
	case "json", "":
	default:
		lc.Encoding = cfg.LogFormat
	}
	return lc
}

// Migration builds a migration backed by real connections. Nothing is
// opened until the migration runs.
func Migration(cfg *config.Config, log *zap.Logger, rec *metrics.Recorder, tracer trace.Tracer) *pipeline.Migration {
	deps := pipeline.Deps{
		OpenSource: func(ctx context.Context) (pipeline.Source, error) {
			e, err := postgresql.Open(ctx, &cfg.Source, log)
			if err != nil {
				return nil, err
			}
			return e, nil
		},
		Stager: &lazyStager{dir: cfg.Staging.Dir, codec: cfg.Staging.Compression, logger: log},
		OpenWarehouse: func(ctx context.Context) (pipeline.Warehouse, error) {
			l, err := snowflake.Open(ctx, &cfg.Warehouse, log)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
		Recorder: rec,
		Tracer:   tracer,
	}
	if cfg.Transform.Enabled {
		deps.Transformer = NewTransformer(cfg, log)
	}
	return pipeline.New(cfg, deps, log)
}

// Backup validates the source settings, dumps the database and records the
// dump size.
func Backup(ctx context.Context, cfg *config.Config, log *zap.Logger, rec *metrics.Recorder) (*backup.Result, error) {
	if err := cfg.ValidateSource(); err != nil {
		return nil, err
	}

	uploaders, err := backup.NewUploaders(ctx, cfg.Backup)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := backup.CloseAll(uploaders); err != nil {
			log.Warn("failed to close uploader", zap.Error(err))
		}
	}()

	d := backup.NewDumper(command.NewExecRunner(log), cfg.Source, cfg.Backup, log, uploaders...)
	res, err := d.Dump(ctx)
	if res != nil {
		rec.SetBackupBytes(res.Bytes)
	}
	return res, err
}

// lazyStager builds the serializer on first write. An invalid codec is
// reported by validation before that.
type lazyStager struct {
	dir    string
	codec  string
	logger *zap.Logger

	once sync.Once
	s    *staging.Serializer
	err  error
}

func (l *lazyStager) Write(ds *models.Dataset) (*staging.Artifact, error) {
	l.once.Do(func() {
		l.s, l.err = staging.NewSerializer(l.dir, l.codec, l.logger)
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.s.Write(ds)
}
