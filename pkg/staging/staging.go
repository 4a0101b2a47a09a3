// Package staging writes an extracted dataset to the temporary delimited
// file the warehouse bulk loader ingests.
//
// The file is UTF-8 CSV with a header row, comma separated, "\n" line
// endings and RFC 4180 quoting. NULL renders as an empty field. Every
// artifact is private to the process (mode 0600) and must be removed by its
// owner once the load has finished, whatever the outcome.
package staging

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/pkg/compression"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/logger"
	"github.com/ajitpratap0/snowlift/pkg/models"
	stringpool "github.com/ajitpratap0/snowlift/pkg/strings"
)

// Format is the serialization format of staged artifacts
const Format = "csv"

// Artifact is a staged file ready for upload
type Artifact struct {
	Path        string
	Format      string
	Compression compression.Algorithm
	Columns     []string
	Rows        int
	Bytes       int64

	removeOnce sync.Once
	removeErr  error
}

// Remove deletes the file. Only the first call touches the filesystem;
// later calls return the first result.
func (a *Artifact) Remove() error {
	a.removeOnce.Do(func() {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			a.removeErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to remove staged file").
				WithDetail("path", a.Path)
		}
	})
	return a.removeErr
}

// Serializer writes datasets to staged files
type Serializer struct {
	dir         string
	compression compression.Algorithm
	logger      *zap.Logger
}

// NewSerializer creates a serializer writing into dir (the OS temp dir when
// empty) with the given codec name.
func NewSerializer(dir, codec string, log *zap.Logger) (*Serializer, error) {
	alg, err := compression.Parse(codec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidConfigFormat, "invalid STAGING_COMPRESSION")
	}
	return &Serializer{
		dir:         dir,
		compression: alg,
		logger:      logger.Component(log, "staging"),
	}, nil
}

// countingWriter tracks bytes written to the underlying file
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write serializes ds into a new uniquely named file. On failure the partial
// file is removed and a serialization error is returned.
func (s *Serializer) Write(ds *models.Dataset) (*Artifact, error) {
	if ds == nil {
		return nil, errors.New(errors.ErrorTypeSerialization, "nil dataset")
	}

	// CreateTemp opens with 0600.
	f, err := os.CreateTemp(s.dir, "snowlift-*."+Format+s.compression.Extension())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "failed to create staged file").
			WithDetail("dir", s.dir)
	}
	path := f.Name()

	fail := func(err error, msg string) (*Artifact, error) {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, msg).WithDetail("path", path)
	}

	counter := &countingWriter{w: f}
	buffered := bufio.NewWriterSize(counter, 64*1024)
	codec, err := compression.NewWriter(buffered, s.compression)
	if err != nil {
		return fail(err, "failed to initialize compression")
	}

	w := csv.NewWriter(codec)
	if err := w.Write(ds.Columns); err != nil {
		return fail(err, "failed to write header")
	}

	record := make([]string, len(ds.Columns))
	for i, row := range ds.Rows {
		if len(row) != len(ds.Columns) {
			return fail(errors.Newf(errors.ErrorTypeSerialization,
				"row %d has %d values, expected %d", i, len(row), len(ds.Columns)), "malformed dataset")
		}
		for j, v := range row {
			record[j] = stringpool.ValueToString(v)
		}
		if err := w.Write(record); err != nil {
			return fail(err, "failed to write row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fail(err, "failed to flush rows")
	}
	if err := codec.Close(); err != nil {
		return fail(err, "failed to finish compression")
	}
	if err := buffered.Flush(); err != nil {
		return fail(err, "failed to flush staged file")
	}
	if err := f.Sync(); err != nil {
		return fail(err, "failed to sync staged file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "failed to close staged file").
			WithDetail("path", path)
	}

	a := &Artifact{
		Path:        path,
		Format:      Format,
		Compression: s.compression,
		Columns:     append([]string(nil), ds.Columns...),
		Rows:        ds.Len(),
		Bytes:       counter.n,
	}

	s.logger.Info("staged dataset",
		zap.String("path", path),
		zap.Int("rows", a.Rows),
		zap.Int64("bytes", a.Bytes),
		zap.String("compression", string(a.Compression)))

	return a, nil
}

// Read parses a staged file back into its header and records
func Read(path string, alg compression.Algorithm) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open staged file").
			WithDetail("path", path)
	}
	defer f.Close()

	src, err := compression.NewReader(bufio.NewReader(f), alg)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeSerialization, "failed to open compressed stream")
	}
	defer src.Close()

	r := csv.NewReader(src)
	r.ReuseRecord = false
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeSerialization, "failed to parse staged file").
			WithDetail("path", path)
	}
	if len(records) == 0 {
		return nil, nil, errors.New(errors.ErrorTypeSerialization, "staged file has no header row")
	}
	return records[0], records[1:], nil
}
