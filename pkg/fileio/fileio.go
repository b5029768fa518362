// Package fileio opens input and output streams, transparently handling
// compression chosen by file extension.
//
// Supported extensions:
//   - .gz  gzip (klauspost/compress/gzip)
//   - .zst zstd (klauspost/compress/zstd)
//   - .lz4 lz4 frame format (pierrec/lz4/v4)
//
// The path "-" maps to stdin for Open and stdout for Create.
package fileio

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

// Codec identifies a stream compression.
type Codec string

const (
	CodecNone Codec = "none"
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
)

// CodecFor returns the codec implied by path's extension.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CodecGzip
	case ".zst", ".zstd":
		return CodecZstd
	case ".lz4":
		return CodecLZ4
	default:
		return CodecNone
	}
}

// Open opens path for reading and wraps it in the matching decompressor.
func Open(path string) (io.ReadCloser, error) {
	var f io.ReadCloser
	if path == "-" {
		f = io.NopCloser(os.Stdin)
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		f = file
	}
	return NewReader(f, CodecFor(path))
}

// NewReader wraps rc in the decompressor for codec. Closing the result
// closes rc.
func NewReader(rc io.ReadCloser, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case CodecGzip:
		zr, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, errors.Wrap(err, "gzip reader")
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zr, rc}}, nil
	case CodecZstd:
		zr, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, errors.Wrap(err, "zstd reader")
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{closerFunc(func() error { zr.Close(); return nil }), rc}}, nil
	case CodecLZ4:
		return &stackedReader{Reader: lz4.NewReader(rc), closers: []io.Closer{rc}}, nil
	default:
		return rc, nil
	}
}

// Create creates path for writing and wraps it in the matching compressor.
// Parent directories are created as needed.
func Create(path string) (io.WriteCloser, error) {
	var f io.WriteCloser
	if path == "-" {
		f = nopWriteCloser{os.Stdout}
	} else {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "create directory %s", dir)
			}
		}
		file, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s", path)
		}
		f = file
	}
	return NewWriter(f, CodecFor(path))
}

// NewWriter wraps wc in the compressor for codec. Closing the result flushes
// the compressor and closes wc.
func NewWriter(wc io.WriteCloser, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecGzip:
		zw := gzip.NewWriter(wc)
		return &stackedWriter{Writer: zw, closers: []io.Closer{zw, wc}}, nil
	case CodecZstd:
		zw, err := zstd.NewWriter(wc)
		if err != nil {
			wc.Close()
			return nil, errors.Wrap(err, "zstd writer")
		}
		return &stackedWriter{Writer: zw, closers: []io.Closer{zw, wc}}, nil
	case CodecLZ4:
		zw := lz4.NewWriter(wc)
		return &stackedWriter{Writer: zw, closers: []io.Closer{zw, wc}}, nil
	default:
		return wc, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	return closeAll(s.closers)
}

type stackedWriter struct {
	io.Writer
	closers []io.Closer
}

func (s *stackedWriter) Close() error {
	return closeAll(s.closers)
}

// closeAll closes in order and reports the first failure.
func closeAll(closers []io.Closer) error {
	var first error
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
