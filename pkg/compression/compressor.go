// Package compression provides the streaming codecs used for staged files
// and backup dumps.
//
// Only stream operations are offered: staged files and dumps are written
// once, front to back, and can be larger than memory is comfortable with.
//
//	w, err := compression.NewWriter(file, compression.Zstd)
//	if err != nil {
//		return err
//	}
//	defer w.Close()
package compression

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm
type Algorithm string

const (
	// None writes data unchanged
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
)

// Parse maps a configuration value onto an Algorithm. The empty string is None.
func Parse(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "", None:
		return None, nil
	case Gzip, Zstd, LZ4:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %q", s)
	}
}

// Detect infers the algorithm from a file name suffix. Unknown suffixes are None.
func Detect(name string) Algorithm {
	for _, a := range []Algorithm{Gzip, Zstd, LZ4} {
		if strings.HasSuffix(strings.ToLower(name), a.Extension()) {
			return a
		}
	}
	return None
}

// Extension returns the file suffix for the algorithm, including the dot
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

// nopWriteCloser lets None share the WriteCloser contract without closing dst
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// writeOnly hides the lz4 writer's ReadFrom, which fails on inputs such as
// bufio.Reader that hand it an *os.File through WriteTo.
type writeOnly struct {
	w io.WriteCloser
}

func (o writeOnly) Write(p []byte) (int, error) { return o.w.Write(p) }

func (o writeOnly) Close() error { return o.w.Close() }

// NewWriter wraps dst in a compressing writer. Closing the returned writer
// flushes the codec's trailer but never closes dst.
func NewWriter(dst io.Writer, a Algorithm) (io.WriteCloser, error) {
	switch a {
	case "", None:
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriterLevel(dst, gzip.DefaultCompression)
	case Zstd:
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
			return nil, err
		}
		return writeOnly{w}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %q", string(a))
	}
}

// NewReader wraps src in a decompressing reader
func NewReader(src io.Reader, a Algorithm) (io.ReadCloser, error) {
	switch a {
	case "", None:
		return io.NopCloser(src), nil
	case Gzip:
		return gzip.NewReader(src)
	case Zstd:
		d, err := zstd.NewReader(src)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %q", string(a))
	}
}
