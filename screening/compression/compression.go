// Package compression gzips screening payloads before upload.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Compress returns the gzip stream of data.
func Compress(data []byte) ([]byte, error) {
	return CompressLevel(data, gzip.DefaultCompression)
}

// CompressLevel is Compress with an explicit gzip level.
func CompressLevel(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("write gzip stream: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close gzip stream: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer r.Close() //nolint:errcheck

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gzip stream: %w", err)
	}
	return out, nil
}
