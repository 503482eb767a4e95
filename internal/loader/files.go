package loader

import (
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// IsCompressed reports whether path names a compressed stream by extension.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ".zst") || strings.HasSuffix(path, ".gz")
}

type readCloser struct {
	io.Reader
	closers []func() error
}

func (rc *readCloser) Close() error {
	var first error
	for i := len(rc.closers) - 1; i >= 0; i-- {
		if err := rc.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenFile opens path for reading. Files ending in .zst or .gz are
// decompressed on the fly.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rc := &readCloser{Reader: f, closers: []func() error{f.Close}}

	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			f.Close()
			return nil, err
		}
		rc.Reader = zr
		rc.closers = append(rc.closers, func() error {
			zr.Close()
			return nil
		})
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		rc.Reader = gr
		rc.closers = append(rc.closers, gr.Close)
	}
	return rc, nil
}

type writeCloser struct {
	io.Writer
	closers []func() error
}

func (wc *writeCloser) Close() error {
	var first error
	for _, c := range wc.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CreateFile creates path for writing, truncating any existing file. Output
// to a .zst path is zstd compressed; Close flushes the final frame.
func CreateFile(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &writeCloser{Writer: zw, closers: []func() error{zw.Close, f.Close}}, nil
}
