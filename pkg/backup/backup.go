// Package backup produces full logical dumps of the source database with
// pg_dump and optionally copies them off-site.
//
// A dump lands in <dir>/postgres_backup_YYYYMMDD_HHMMSS.sql (plus a codec
// suffix when compressed). The dumper reports success or failure through its
// return value and a single log line; it never touches the migration
// pipeline.
package backup

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/pkg/command"
	"github.com/ajitpratap0/snowlift/pkg/compression"
	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/logger"
)

// timestampLayout is the file name timestamp, e.g. 20240301_133000
const timestampLayout = "20060102_150405"

// Result describes a finished dump
type Result struct {
	Path        string
	Bytes       int64
	Compression compression.Algorithm
	// Locations lists the off-site copies that were written
	Locations []string
	Duration  time.Duration
}

// Dumper runs pg_dump against the source database
type Dumper struct {
	runner    command.Runner
	source    config.SourceConfig
	cfg       config.BackupConfig
	uploaders []Uploader
	logger    *zap.Logger

	now func() time.Time
}

// NewDumper creates a dumper. Uploaders may be empty.
func NewDumper(runner command.Runner, source config.SourceConfig, cfg config.BackupConfig, log *zap.Logger, uploaders ...Uploader) *Dumper {
	if cfg.Dir == "" {
		cfg.Dir = config.DefaultBackupDir
	}
	if cfg.Command == "" {
		cfg.Command = "pg_dump"
	}
	return &Dumper{
		runner:    runner,
		source:    source,
		cfg:       cfg,
		uploaders: uploaders,
		logger:    logger.Component(log, "backup"),
		now:       time.Now,
	}
}

// FileName returns the dump file name for t
func FileName(t time.Time) string {
	return "postgres_backup_" + t.Format(timestampLayout) + ".sql"
}

// Spec returns the pg_dump invocation writing to path. The password travels
// in PGPASSWORD, never on the command line.
func (d *Dumper) Spec(path string) command.Spec {
	return command.Spec{
		Name: d.cfg.Command,
		Args: []string{
			"--host", d.source.Host,
			"--port", d.source.Port,
			"--username", d.source.User,
			"--dbname", d.source.Database,
			"--file", path,
			"--no-password",
		},
		Env: []string{"PGPASSWORD=" + d.source.Password},
	}
}

// Dump writes a full dump and returns its location. A failed dump leaves no
// partial file behind. Upload failures are reported after the local dump has
// been kept.
func (d *Dumper) Dump(ctx context.Context) (*Result, error) {
	alg, err := compression.Parse(d.cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidConfigFormat, "invalid BACKUP_COMPRESSION")
	}

	if err := os.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeBackup, "failed to create backup directory").
			WithDetail("dir", d.cfg.Dir)
	}

	start := time.Now()
	path := filepath.Join(d.cfg.Dir, FileName(d.now()))
	spec := d.Spec(path)

	res, err := d.runner.Run(ctx, spec)
	if err != nil {
		_ = os.Remove(path)
		d.logger.Error("database dump failed", zap.String("command", spec.String()), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrorTypeBackup, "failed to run pg_dump").
			WithDetail("command", spec.String())
	}
	if !res.Success() {
		_ = os.Remove(path)
		stderr := strings.TrimSpace(res.Stderr)
		d.logger.Error("database dump failed",
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", stderr))
		return nil, errors.Newf(errors.ErrorTypeBackup, "pg_dump exited with status %d: %s", res.ExitCode, stderr).
			WithDetail("exit_code", res.ExitCode).
			WithDetail("stderr", res.Stderr)
	}

	if alg != compression.None {
		path, err = compressFile(path, alg)
		if err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeBackup, "dump file missing after pg_dump").
			WithDetail("path", path)
	}

	result := &Result{
		Path:        path,
		Bytes:       info.Size(),
		Compression: alg,
	}

	var uploadErr error
	for _, u := range d.uploaders {
		location, err := u.Upload(ctx, path, filepath.Base(path))
		if err != nil {
			d.logger.Error("backup upload failed", zap.String("target", u.Name()), zap.Error(err))
			if uploadErr == nil {
				uploadErr = errors.Wrap(err, errors.ErrorTypeBackup, "failed to upload backup").
					WithDetail("target", u.Name()).
					WithDetail("path", path)
			}
			continue
		}
		result.Locations = append(result.Locations, location)
	}
	result.Duration = time.Since(start)

	d.logger.Info("database dump successful",
		zap.String("path", path),
		zap.Int64("bytes", result.Bytes),
		zap.Strings("locations", result.Locations),
		zap.Duration("duration", result.Duration))

	return result, uploadErr
}

// compressFile replaces src with a compressed copy and returns the new path
func compressFile(src string, alg compression.Algorithm) (string, error) {
	dst := src + alg.Extension()

	fail := func(err error, msg string) (string, error) {
		_ = os.Remove(dst)
		return "", errors.Wrap(err, errors.ErrorTypeBackup, msg).WithDetail("path", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return fail(err, "failed to open dump for compression")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fail(err, "failed to create compressed dump")
	}

	buffered := bufio.NewWriterSize(out, 256*1024)
	w, err := compression.NewWriter(buffered, alg)
	if err != nil {
		_ = out.Close()
		return fail(err, "failed to initialize compression")
	}
	if _, err := io.Copy(w, bufio.NewReader(in)); err != nil {
		_ = out.Close()
		return fail(err, "failed to compress dump")
	}
	if err := w.Close(); err != nil {
		_ = out.Close()
		return fail(err, "failed to finish compression")
	}
	if err := buffered.Flush(); err != nil {
		_ = out.Close()
		return fail(err, "failed to flush compressed dump")
	}
	if err := out.Close(); err != nil {
		return fail(err, "failed to close compressed dump")
	}

	_ = in.Close()
	if err := os.Remove(src); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeBackup, "failed to remove uncompressed dump").
			WithDetail("path", src)
	}
	return dst, nil
}
