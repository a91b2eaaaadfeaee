// Package compress wraps the gzip framing used for cache payloads and
// namespace snapshots.
package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Level is the compression level used by Gzip. Cached values favour speed
// over ratio since they are compressed on the request path.
var Level = gzip.BestSpeed

// Gzip compresses data into a single gzip member.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, Level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Gunzip decompresses a gzip stream produced by Gzip (or any gzip encoder).
func Gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// IsGzip reports whether data starts with the gzip magic header.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
