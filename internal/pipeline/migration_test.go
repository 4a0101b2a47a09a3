package pipeline

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/snowlift/pkg/command"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/connector/destinations/snowflake"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/models"
	"github.com/ajitpratap0/snowlift/pkg/staging"
	"github.com/ajitpratap0/snowlift/pkg/transform"
)

func validConfig() *config.Config {
	return &config.Config{
		Source: config.SourceConfig{
			Host: "db.internal", Port: "5432", User: "etl", Password: "pg-secret", Database: "hr",
		},
		Warehouse: config.WarehouseConfig{
			User: "loader", Password: "sf-secret", Account: "abc123.east-1",
			Database: "ANALYTICS", Schema: "RAW", Table: "employee",
		},
		Migration: config.MigrationConfig{Query: config.DefaultQuery},
		Staging:   config.StagingConfig{Compression: "none"},
		Transform: config.TransformConfig{Enabled: true, Command: "dbt", Subcommand: "run"},
	}
}

type fakeSource struct {
	ds      *models.Dataset
	err     error
	query   string
	closed  int
	openErr error
	opened  int
}

func (f *fakeSource) open(context.Context) (Source, error) {
	f.opened++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f, nil
}

func (f *fakeSource) Extract(_ context.Context, query string) (*models.Dataset, error) {
	f.query = query
	return f.ds, f.err
}

func (f *fakeSource) Close() error {
	f.closed++
	return nil
}

type recordingStager struct {
	inner     *staging.Serializer
	artifacts []*staging.Artifact
	err       error
}

func (s *recordingStager) Write(ds *models.Dataset) (*staging.Artifact, error) {
	if s.err != nil {
		return nil, s.err
	}
	a, err := s.inner.Write(ds)
	if a != nil {
		s.artifacts = append(s.artifacts, a)
	}
	return a, err
}

type fakeWarehouse struct {
	openErr error
	loadErr error
	opened  int
	closed  int
	loaded  []*staging.Artifact
	// fileExisted records whether the staged file was on disk during Load
	fileExisted bool
}

func (f *fakeWarehouse) open(context.Context) (Warehouse, error) {
	f.opened++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f, nil
}

func (f *fakeWarehouse) Load(_ context.Context, a *staging.Artifact) (*snowflake.LoadResult, error) {
	f.loaded = append(f.loaded, a)
	_, err := os.Stat(a.Path)
	f.fileExisted = err == nil
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &snowflake.LoadResult{Table: "employee", StagePath: "@%employee/run", RowsLoaded: int64(a.Rows), Files: 1}, nil
}

func (f *fakeWarehouse) Close() error {
	f.closed++
	return nil
}

type harness struct {
	cfg       *config.Config
	source    *fakeSource
	stager    *recordingStager
	warehouse *fakeWarehouse
	runner    *command.FakeRunner
	logs      *observer.ObservedLogs
	migration *Migration
}

func newHarness(t *testing.T, ds *models.Dataset) *harness {
	t.Helper()
	ser, err := staging.NewSerializer(t.TempDir(), "none", zaptest.NewLogger(t))
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	h := &harness{
		cfg:       validConfig(),
		source:    &fakeSource{ds: ds},
		stager:    &recordingStager{inner: ser},
		warehouse: &fakeWarehouse{},
		runner:    &command.FakeRunner{Result: &command.Result{Stdout: "Done. PASS=3"}},
		logs:      logs,
	}
	h.build(zap.New(core))
	return h
}

func (h *harness) build(log *zap.Logger) {
	h.migration = New(h.cfg, Deps{
		OpenSource:    h.source.open,
		Stager:        h.stager,
		OpenWarehouse: h.warehouse.open,
		Transformer:   transform.NewTrigger(h.runner, h.cfg.Transform, log),
	}, log)
	h.migration.newRunID = func() string { return "run-1" }
}

func sampleDataset(t *testing.T, n int) *models.Dataset {
	t.Helper()
	ds := models.NewDataset("a", "b")
	for i := 0; i < n; i++ {
		var b interface{}
		if i%2 == 0 {
			b = fmt.Sprintf("row-%d", i)
		}
		require.NoError(t, ds.Append(i, b))
	}
	return ds
}

func TestRunSuccess(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 3))

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.NoError(t, report.Err)
	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 3, report.RowsExtracted)
	assert.Equal(t, int64(3), report.RowsLoaded)
	assert.Equal(t, "@%employee/run", report.StagePath)
	for _, s := range Stages {
		assert.True(t, report.Attempted(s), string(s))
	}

	assert.Equal(t, config.DefaultQuery, h.source.query)
	assert.Equal(t, 1, h.source.closed)
	assert.Equal(t, 1, h.warehouse.closed)
	assert.True(t, h.warehouse.fileExisted)
	require.Len(t, h.runner.Calls(), 1)
	assert.Equal(t, "dbt run", h.runner.Calls()[0].String())

	require.Len(t, h.stager.artifacts, 1)
	_, err := os.Stat(h.stager.artifacts[0].Path)
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, 1, h.logs.FilterMessage("migration finished").Len())
}

func TestRunValidationFailsBeforeAnyConnection(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 3))
	h.cfg.Source.Host = ""
	h.cfg.Warehouse.Account = ""

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeValidationFailed, report.Outcome)
	assert.Equal(t, StageValidate, report.FailedStage)
	assert.True(t, errors.IsType(report.Err, errors.ErrorTypeMissingConfig))
	assert.Equal(t, []string{"POSTGRES_HOST", "SNOWFLAKE_ACCOUNT"}, errors.MissingKeys(report.Err))
	assert.Equal(t, 1, report.ExitCode())

	assert.Zero(t, h.source.opened)
	assert.Zero(t, h.warehouse.opened)
	assert.Empty(t, h.runner.Calls())
}

func TestRunInvalidAccountFormat(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 3))
	h.cfg.Warehouse.Account = "abc_123"

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeValidationFailed, report.Outcome)
	assert.True(t, errors.IsType(report.Err, errors.ErrorTypeInvalidConfigFormat))
	assert.Contains(t, report.Err.Error(), "abc_123")
	assert.Zero(t, h.source.opened)
}

func TestRunEmptyExtraction(t *testing.T) {
	h := newHarness(t, models.NewDataset("a", "b"))

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeExtractionEmpty, report.Outcome)
	assert.NoError(t, report.Err)
	assert.Equal(t, 0, report.ExitCode())
	assert.Empty(t, h.stager.artifacts)
	assert.Zero(t, h.warehouse.opened)
	assert.Empty(t, h.runner.Calls())
	assert.Equal(t, 1, h.source.closed)
	assert.False(t, report.Attempted(StageStage))
	assert.False(t, report.Attempted(StageLoad))
}

func TestRunSourceConnectionFailure(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 3))
	h.source.openErr = errors.New(errors.ErrorTypeSourceConnection, "password authentication failed")

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeExtractionFailed, report.Outcome)
	assert.Equal(t, StageExtract, report.FailedStage)
	assert.True(t, errors.IsType(report.Err, errors.ErrorTypeSourceConnection))
	assert.Zero(t, h.source.closed)
	assert.Zero(t, h.warehouse.opened)
}

func TestRunQueryFailureReleasesSource(t *testing.T) {
	h := newHarness(t, nil)
	h.source.err = errors.New(errors.ErrorTypeQuery, "syntax error")

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeExtractionFailed, report.Outcome)
	assert.Equal(t, 1, h.source.closed)
	assert.Empty(t, h.stager.artifacts)

	failed := h.logs.FilterMessage("migration failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "extract", fields["stage"])
	assert.Equal(t, "query", fields["error_type"])
}

func TestRunSerializationFailure(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 2))
	h.stager.err = errors.New(errors.ErrorTypeSerialization, "no space left on device")

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeLoadFailed, report.Outcome)
	assert.Equal(t, StageStage, report.FailedStage)
	assert.Zero(t, h.warehouse.opened)
}

func TestRunWarehouseConnectionFailure(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 2))
	h.warehouse.openErr = errors.New(errors.ErrorTypeTargetConnection, "incorrect username or password")

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeLoadFailed, report.Outcome)
	assert.Equal(t, StageLoad, report.FailedStage)
	assert.True(t, errors.IsType(report.Err, errors.ErrorTypeTargetConnection))

	require.Len(t, h.stager.artifacts, 1)
	_, err := os.Stat(h.stager.artifacts[0].Path)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, h.runner.Calls())
}

func TestRunLoadFailureCleansUpAndSkipsTransform(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 5))
	h.warehouse.loadErr = errors.Wrap(fmt.Errorf("Numeric value 'abc' is not recognized"),
		errors.ErrorTypeLoad, "COPY INTO failed")

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeLoadFailed, report.Outcome)
	assert.Equal(t, StageLoad, report.FailedStage)
	assert.True(t, errors.IsType(report.Err, errors.ErrorTypeLoad))
	assert.Contains(t, report.Err.Error(), "is not recognized")
	assert.Equal(t, 1, report.ExitCode())

	assert.True(t, h.warehouse.fileExisted)
	assert.Equal(t, 1, h.warehouse.closed)
	require.Len(t, h.stager.artifacts, 1)
	_, err := os.Stat(h.stager.artifacts[0].Path)
	assert.True(t, os.IsNotExist(err))

	assert.Empty(t, h.runner.Calls())
	assert.False(t, report.Attempted(StageTransform))
}

func TestRunTransformFailureKeepsLoad(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 4))
	h.runner.Result = &command.Result{
		ExitCode: 2,
		Stderr:   "Database Error in model dim_employee\n",
	}

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeTransformFailed, report.Outcome)
	assert.Equal(t, StageTransform, report.FailedStage)
	assert.True(t, errors.IsType(report.Err, errors.ErrorTypeTransformation))
	assert.Equal(t, "Database Error in model dim_employee\n", report.TransformStderr)
	assert.Equal(t, 1, report.ExitCode())

	// the load happened exactly once and nothing was issued afterwards
	assert.Len(t, h.warehouse.loaded, 1)
	assert.Equal(t, 1, h.warehouse.opened)
	assert.Equal(t, int64(4), report.RowsLoaded)
}

func TestRunTransformDisabled(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 1))
	h.cfg.Transform.Enabled = false

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Empty(t, h.runner.Calls())
	assert.False(t, report.Attempted(StageTransform))
}

func TestRunCustomQuery(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 1))
	h.cfg.Migration.Query = "SELECT id, name FROM staff WHERE active"

	h.migration.Run(context.Background())
	assert.Equal(t, "SELECT id, name FROM staff WHERE active", h.source.query)
}

type panickingStager struct{}

func (panickingStager) Write(*models.Dataset) (*staging.Artifact, error) {
	panic("disk driver exploded")
}

func TestRunRecoversFromStagePanic(t *testing.T) {
	h := newHarness(t, sampleDataset(t, 1))
	h.migration.deps.Stager = panickingStager{}

	report := h.migration.Run(context.Background())

	assert.Equal(t, OutcomeLoadFailed, report.Outcome)
	assert.True(t, errors.IsType(report.Err, errors.ErrorTypeInternal))
	assert.Contains(t, report.Err.Error(), "disk driver exploded")
}

func TestOutcomeFailed(t *testing.T) {
	assert.False(t, OutcomeSuccess.Failed())
	assert.False(t, OutcomeExtractionEmpty.Failed())
	for _, o := range []Outcome{OutcomeValidationFailed, OutcomeExtractionFailed, OutcomeLoadFailed, OutcomeTransformFailed} {
		assert.True(t, o.Failed(), string(o))
	}
}
