// Package pipeline runs one PostgreSQL to Snowflake migration: validate,
// extract, stage, load, transform.
//
// # Overview
//
// A run is strictly sequential and never retries. Each stage either succeeds
// or moves the run to a terminal outcome carrying the originating error:
//
//	validate -> extract -> (stop if empty) -> stage -> load -> transform
//
// Connections are scoped to the stage that uses them and the staged file is
// removed once the load has finished, whatever its result. A failed
// transformation does not undo the load.
//
// # Basic Usage
//
//	m := pipeline.New(cfg, pipeline.Deps{
//		OpenSource:    openSource,
//		Stager:        serializer,
//		OpenWarehouse: openWarehouse,
//		Transformer:   trigger,
//	}, logger)
//
//	report := m.Run(ctx)
//	os.Exit(report.ExitCode())
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/pkg/command"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/connector/destinations/snowflake"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	"github.com/ajitpratap0/snowlift/pkg/metrics"
	"github.com/ajitpratap0/snowlift/pkg/models"
	"github.com/ajitpratap0/snowlift/pkg/observability"
	"github.com/ajitpratap0/snowlift/pkg/staging"
	"github.com/ajitpratap0/snowlift/pkg/transform"
)

// Source is an open connection to the operational database
type Source interface {
	Extract(ctx context.Context, query string) (*models.Dataset, error)
	Close() error
}

// SourceOpener connects to the source database
type SourceOpener func(ctx context.Context) (Source, error)

// Stager writes a dataset to a staged artifact
type Stager interface {
	Write(ds *models.Dataset) (*staging.Artifact, error)
}

// Warehouse is an open connection to the warehouse
type Warehouse interface {
	Load(ctx context.Context, a *staging.Artifact) (*snowflake.LoadResult, error)
	Close() error
}

// WarehouseOpener connects to the warehouse
type WarehouseOpener func(ctx context.Context) (Warehouse, error)

// Transformer runs the post-load transformation
type Transformer interface {
	Run(ctx context.Context) (*command.Result, error)
}

// Deps are the collaborators of a migration. Transformer may be nil, which
// disables the transform stage. Recorder and Tracer default to private,
// discarded instances.
type Deps struct {
	OpenSource    SourceOpener
	Stager        Stager
	OpenWarehouse WarehouseOpener
	Transformer   Transformer
	Recorder      *metrics.Recorder
	Tracer        trace.Tracer
}

// Migration orchestrates one run
type Migration struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger

	newRunID func() string
}

// New creates a migration for cfg
func New(cfg *config.Config, deps Deps, log *zap.Logger) *Migration {
	if deps.Recorder == nil {
		deps.Recorder = metrics.NewRecorder()
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Migration{
		cfg:      cfg,
		deps:     deps,
		logger:   logger.Component(log, "pipeline"),
		newRunID: uuid.NewString,
	}
}

// Run executes the migration. It never returns an error: every stage
// failure becomes a terminal outcome on the report and is logged with the
// failing stage and its cause.
func (m *Migration) Run(ctx context.Context) *Report {
	report := &Report{
		RunID:     m.newRunID(),
		Durations: make(map[Stage]time.Duration, len(Stages)),
		Started:   time.Now(),
	}
	log := m.logger.With(zap.String("run_id", report.RunID))

	ctx, span := m.deps.Tracer.Start(ctx, "migration",
		trace.WithAttributes(attribute.String("run_id", report.RunID)))
	defer func() {
		report.Finished = time.Now()
		span.SetAttributes(attribute.String("outcome", string(report.Outcome)))
		observability.EndSpan(span, report.Err)
		m.deps.Recorder.RecordRun("run", string(report.Outcome), report.Finished)
		m.logFinal(log, report)
	}()

	log.Info("migration started")

	if err := m.runStage(ctx, report, StageValidate, func(context.Context) error {
		return m.cfg.Validate()
	}); err != nil {
		return report.fail(StageValidate, err)
	}

	var ds *models.Dataset
	if err := m.runStage(ctx, report, StageExtract, func(ctx context.Context) error {
		var err error
		ds, err = m.extract(ctx, log)
		return err
	}); err != nil {
		return report.fail(StageExtract, err)
	}
	report.RowsExtracted = ds.Len()
	m.deps.Recorder.SetRowsExtracted(ds.Len())
	m.sampleMemory(log)

	if ds.Empty() {
		log.Info("no data extracted, skipping load and transform")
		report.Outcome = OutcomeExtractionEmpty
		return report
	}

	var artifact *staging.Artifact
	if err := m.runStage(ctx, report, StageStage, func(context.Context) error {
		var err error
		artifact, err = m.deps.Stager.Write(ds)
		return err
	}); err != nil {
		return report.fail(StageStage, err)
	}
	report.StagedBytes = artifact.Bytes
	m.deps.Recorder.SetStagedBytes(artifact.Bytes)
	// Remove is idempotent
	defer m.removeArtifact(log, artifact)

	loadErr := m.runStage(ctx, report, StageLoad, func(ctx context.Context) error {
		res, err := m.load(ctx, log, artifact)
		if err != nil {
			return err
		}
		report.RowsLoaded = res.RowsLoaded
		report.StagePath = res.StagePath
		m.deps.Recorder.SetRowsLoaded(res.RowsLoaded)
		return nil
	})
	m.removeArtifact(log, artifact)
	if loadErr != nil {
		return report.fail(StageLoad, loadErr)
	}

	if m.deps.Transformer == nil || !m.cfg.Transform.Enabled {
		log.Info("transformations disabled, skipping")
		report.Outcome = OutcomeSuccess
		return report
	}

	if err := m.runStage(ctx, report, StageTransform, func(ctx context.Context) error {
		_, err := m.deps.Transformer.Run(ctx)
		return err
	}); err != nil {
		report.TransformStderr = transform.Stderr(err)
		return report.fail(StageTransform, err)
	}

	report.Outcome = OutcomeSuccess
	return report
}

// runStage times fn, wraps it in a span and converts a panic into an
// internal error.
func (m *Migration) runStage(ctx context.Context, report *Report, stage Stage, fn func(context.Context) error) (err error) {
	ctx, span := m.deps.Tracer.Start(ctx, string(stage))
	timer := metrics.NewTimer(string(stage))

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrorTypeInternal, "panic in %s stage: %v", stage, r)
		}
		report.Durations[stage] = m.deps.Recorder.ObserveTimer(timer)
		observability.EndSpan(span, err)
	}()

	return fn(ctx)
}

// extract opens the source, runs the query and releases the connection
// before returning, whatever happened.
func (m *Migration) extract(ctx context.Context, log *zap.Logger) (*models.Dataset, error) {
	src, err := m.deps.OpenSource(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn("failed to close source connection", zap.Error(cerr))
		}
	}()

	ds, err := src.Extract(ctx, m.cfg.Migration.Query)
	if err != nil {
		return nil, err
	}
	log.Info("extraction complete", zap.Int("rows", ds.Len()), zap.Strings("columns", ds.Columns))
	return ds, nil
}

// load opens the warehouse, loads the artifact and releases the connection
func (m *Migration) load(ctx context.Context, log *zap.Logger, a *staging.Artifact) (*snowflake.LoadResult, error) {
	wh, err := m.deps.OpenWarehouse(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := wh.Close(); cerr != nil {
			log.Warn("failed to close warehouse connection", zap.Error(cerr))
		}
	}()

	return wh.Load(ctx, a)
}

func (m *Migration) removeArtifact(log *zap.Logger, a *staging.Artifact) {
	if err := a.Remove(); err != nil {
		log.Warn("failed to remove staged file", zap.String("path", a.Path), zap.Error(err))
	}
}

func (m *Migration) sampleMemory(log *zap.Logger) {
	rss, err := observability.ResidentMemory()
	if err != nil {
		log.Debug("memory sample unavailable", zap.Error(err))
		return
	}
	m.deps.Recorder.SetMemoryRSS(rss)
	log.Debug("memory after extraction", zap.Uint64("rss_bytes", rss))
}

func (m *Migration) logFinal(log *zap.Logger, r *Report) {
	duration := r.Finished.Sub(r.Started)
	if r.Outcome.Failed() {
		log.Error("migration failed",
			zap.String("outcome", string(r.Outcome)),
			zap.String("stage", string(r.FailedStage)),
			zap.String("error_type", string(errors.TypeOf(r.Err))),
			zap.Error(r.Err),
			zap.Int("rows_extracted", r.RowsExtracted),
			zap.Int64("rows_loaded", r.RowsLoaded),
			zap.Duration("duration", duration))
		return
	}
	log.Info("migration finished",
		zap.String("outcome", string(r.Outcome)),
		zap.Int("rows_extracted", r.RowsExtracted),
		zap.Int64("rows_loaded", r.RowsLoaded),
		zap.Duration("duration", duration))
}
