// Package snowflake implements the warehouse loader: a staged file is PUT
// into the target table's internal stage and ingested with COPY INTO.
package snowflake

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/pkg/compression"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	"github.com/ajitpratap0/snowlift/pkg/staging"
	stringpool "github.com/ajitpratap0/snowlift/pkg/strings"
)

// Load steps, reported in the "step" detail of a load_failed error
const (
	StepPut  = "put"
	StepCopy = "copy"
)

// LoadResult summarizes one bulk load
type LoadResult struct {
	Table      string
	StagePath  string
	RowsLoaded int64
	Files      int
	Duration   time.Duration
}

// Loader bulk loads staged artifacts into one fixed table
type Loader struct {
	db     *sql.DB
	table  string
	purge  bool
	logger *zap.Logger

	// newStageID names the per-load stage sub-path
	newStageID func() string
}

// DSN builds the driver connection string for a warehouse descriptor
func DSN(cfg *config.WarehouseConfig) (string, error) {
	sfConfig := &gosnowflake.Config{
		Account:     cfg.Account,
		User:        cfg.User,
		Password:    cfg.Password,
		Database:    cfg.Database,
		Schema:      cfg.Schema,
		Warehouse:   cfg.Warehouse,
		Role:        cfg.Role,
		Application: "snowlift",
	}
	return gosnowflake.DSN(sfConfig)
}

// Open connects to Snowflake and verifies the session. Any failure is a
// target_connection error.
func Open(ctx context.Context, cfg *config.WarehouseConfig, log *zap.Logger) (*Loader, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTargetConnection, "failed to build Snowflake DSN").
			WithDetail("account", cfg.Account)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTargetConnection, "failed to open Snowflake connection").
			WithDetail("account", cfg.Account)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeTargetConnection, "failed to ping Snowflake").
			WithDetail("account", cfg.Account).
			WithDetail("database", cfg.Database)
	}

	l, err := NewLoader(db, cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	l.logger.Info("connected to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema))

	return l, nil
}

// NewLoader wraps an open handle. The table name must be a plain identifier;
// it is written into SQL unquoted so it resolves the same way as in
// hand-written statements.
func NewLoader(db *sql.DB, cfg *config.WarehouseConfig, log *zap.Logger) (*Loader, error) {
	table := cfg.Table
	if table == "" {
		table = config.DefaultTable
	}
	if err := config.ValidateIdentifier("SNOWFLAKE_TABLE", table); err != nil {
		return nil, err
	}

	return &Loader{
		db:         db,
		table:      table,
		purge:      cfg.Purge,
		logger:     logger.Component(log, "loader"),
		newStageID: uuid.NewString,
	}, nil
}

// Load uploads the artifact to the table stage and ingests it. Both steps
// run on one session; a failure in either is a load_failed error carrying a
// step detail. The session is released on every path.
func (l *Loader) Load(ctx context.Context, a *staging.Artifact) (*LoadResult, error) {
	if a == nil {
		return nil, errors.New(errors.ErrorTypeLoad, "no staged artifact")
	}

	start := time.Now()
	stagePath := stringpool.Concat("@%", l.table, "/", l.newStageID())

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLoad, "failed to acquire Snowflake session").
			WithDetail("table", l.table)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			l.logger.Warn("failed to release Snowflake session", zap.Error(cerr))
		}
	}()

	putSQL := l.buildPutSQL(a, stagePath)
	if _, err := conn.ExecContext(ctx, putSQL); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLoad, "failed to upload staged file").
			WithDetail("step", StepPut).
			WithDetail("table", l.table).
			WithDetail("stage", stagePath)
	}
	l.logger.Debug("uploaded staged file", zap.String("stage", stagePath), zap.Int64("bytes", a.Bytes))

	rowsLoaded, files, err := l.copyInto(ctx, conn, a, stagePath)
	if err != nil {
		l.removeStaged(ctx, conn, stagePath)
		return nil, errors.Wrap(err, errors.ErrorTypeLoad, "COPY INTO failed").
			WithDetail("step", StepCopy).
			WithDetail("table", l.table).
			WithDetail("stage", stagePath)
	}

	result := &LoadResult{
		Table:      l.table,
		StagePath:  stagePath,
		RowsLoaded: rowsLoaded,
		Files:      files,
		Duration:   time.Since(start),
	}

	l.logger.Info("loaded staged file into Snowflake",
		zap.String("table", l.table),
		zap.String("stage", stagePath),
		zap.Int64("rows_loaded", rowsLoaded),
		zap.Int("rows_staged", a.Rows),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Close releases the connection handle
func (l *Loader) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func (l *Loader) copyInto(ctx context.Context, conn *sql.Conn, a *staging.Artifact, stagePath string) (int64, int, error) {
	rows, err := conn.QueryContext(ctx, l.buildCopySQL(a, stagePath))
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, 0, err
	}
	loadedIdx := -1
	for i, c := range columns {
		if strings.EqualFold(c, "rows_loaded") {
			loadedIdx = i
		}
	}

	var total int64
	files := 0
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return 0, 0, err
		}
		if loadedIdx < 0 {
			continue
		}
		files++
		if n, err := strconv.ParseInt(stringpool.ValueToString(values[loadedIdx]), 10, 64); err == nil {
			total += n
		}
	}
	return total, files, rows.Err()
}

// removeStaged drops this load's files from the table stage after a failed
// COPY. Loaded data is never touched.
func (l *Loader) removeStaged(ctx context.Context, conn *sql.Conn, stagePath string) {
	removeSQL := stringpool.Concat("REMOVE ", stagePath)
	if _, err := conn.ExecContext(ctx, removeSQL); err != nil {
		l.logger.Warn("failed to remove staged file from table stage",
			zap.String("stage", stagePath), zap.Error(err))
	}
}

func (l *Loader) buildPutSQL(a *staging.Artifact, stagePath string) string {
	sb := stringpool.NewSQLBuilder(256)
	defer sb.Close()

	autoCompress := "FALSE"
	if a.Compression == compression.None || a.Compression == "" {
		autoCompress = "TRUE"
	}

	return sb.WriteQuery("PUT ").
		WriteStringLiteral("file://" + a.Path).
		WriteSpace().WriteQuery(stagePath).
		WriteQuery(" AUTO_COMPRESS = ").WriteQuery(autoCompress).
		WriteQuery(" OVERWRITE = TRUE").String()
}

func (l *Loader) buildCopySQL(a *staging.Artifact, stagePath string) string {
	sb := stringpool.NewSQLBuilder(512)
	defer sb.Close()

	sb.WriteQuery("COPY INTO ").WriteQuery(l.table).
		WriteQuery(" FROM ").WriteQuery(stagePath).
		WriteQuery(" FILE_FORMAT = (TYPE = 'CSV' FIELD_DELIMITER = ',' SKIP_HEADER = 1").
		WriteQuery(" FIELD_OPTIONALLY_ENCLOSED_BY = '\"' EMPTY_FIELD_AS_NULL = TRUE").
		WriteQuery(" COMPRESSION = '").WriteQuery(copyCompression(a.Compression)).WriteQuery("')")
	if l.purge {
		sb.WriteQuery(" PURGE = TRUE")
	}
	return sb.String()
}

// copyCompression maps a staging codec onto the COPY file format option
func copyCompression(a compression.Algorithm) string {
	switch a {
	case compression.Gzip:
		return "GZIP"
	case compression.Zstd:
		return "ZSTD"
	default:
		return "AUTO"
	}
}
