// Package postgresql implements the source extractor: it opens one
// connection to the operational database, runs a single query and
// materializes the full result set in memory.
package postgresql

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	"github.com/ajitpratap0/snowlift/pkg/models"
)

// Extractor reads a snapshot from PostgreSQL. It holds exactly one
// connection for the duration of a run.
type Extractor struct {
	db     *sql.DB
	logger *zap.Logger

	recordsRead int64
}

// ConnString builds a postgres:// URL from the source descriptor
func ConnString(cfg *config.SourceConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	q.Set("application_name", "snowlift")
	u.RawQuery = q.Encode()
	return u.String()
}

// Open connects to PostgreSQL and verifies the connection. Authentication,
// DNS and network failures are reported as source_connection errors.
func Open(ctx context.Context, cfg *config.SourceConfig, log *zap.Logger) (*Extractor, error) {
	connConfig, err := pgx.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceConnection, "failed to parse connection settings").
			WithDetail("host", cfg.Host).
			WithDetail("database", cfg.Database)
	}

	db := stdlib.OpenDB(*connConfig)
	// A run needs one connection; keep the pool from growing past it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	e := NewExtractor(db, log)

	var version string
	if err := e.validateConnection(ctx, &version); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeSourceConnection, "failed to connect to PostgreSQL").
			WithDetail("host", cfg.Host).
			WithDetail("port", cfg.Port).
			WithDetail("database", cfg.Database)
	}

	e.logger.Info("connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("version", version))

	return e, nil
}

// NewExtractor wraps an already opened handle
func NewExtractor(db *sql.DB, log *zap.Logger) *Extractor {
	return &Extractor{
		db:     db,
		logger: logger.Component(log, "extractor"),
	}
}

// Extract runs query and returns every row. An empty query falls back to
// config.DefaultQuery. The whole result set is held in memory; an empty
// result is returned as an empty dataset, not an error.
func (e *Extractor) Extract(ctx context.Context, query string) (*models.Dataset, error) {
	if query == "" {
		query = config.DefaultQuery
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "extraction query failed").
			WithDetail("query", query)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read result columns")
	}

	ds := models.NewDataset(columns...)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan row").
				WithDetail("row", ds.Len())
		}
		for i, v := range values {
			values[i] = convertPostgreSQLValue(v)
		}
		ds.Rows = append(ds.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed while reading result set").
			WithDetail("rows_read", ds.Len())
	}

	e.recordsRead += int64(ds.Len())
	e.logger.Info("fetched rows from PostgreSQL",
		zap.Int("rows", ds.Len()),
		zap.Int("columns", len(columns)),
		zap.Duration("duration", time.Since(start)))

	return ds, nil
}

// Close releases the connection
func (e *Extractor) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil

	e.logger.Debug("PostgreSQL source closed", zap.Int64("records_read", e.recordsRead))
	return err
}

// validateConnection pings the server and optionally retrieves its version
func (e *Extractor) validateConnection(ctx context.Context, version *string) error {
	if err := e.db.PingContext(ctx); err != nil {
		return err
	}
	if version != nil {
		if err := e.db.QueryRowContext(ctx, "SELECT version()").Scan(version); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to get server version")
		}
	}
	return nil
}

// convertPostgreSQLValue normalizes driver values; byte slices are copied
// into strings because the driver may reuse the buffer.
func convertPostgreSQLValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	default:
		return v
	}
}
