package cff

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// DefaultCompressionLevel is the zlib level used unless configured otherwise.
const DefaultCompressionLevel = 6

// maxPrealloc caps the buffer size allocated up front, before the
// decompressed size has been confirmed by the stream itself.
const maxPrealloc = 64 << 20

// compressor compresses column blocks. It is not safe for concurrent use.
type compressor struct {
	buf bytes.Buffer
	zw  *zlib.Writer
}

func newCompressor(level int) (*compressor, error) {
	c := new(compressor)
	zw, err := zlib.NewWriterLevel(&c.buf, level)
	if err != nil {
		return nil, err
	}
	c.zw = zw
	return c, nil
}

// Compress returns the compressed form of p. The returned slice is owned by
// the caller.
func (c *compressor) Compress(p []byte) ([]byte, error) {
	c.buf.Reset()
	c.zw.Reset(&c.buf)

	if _, err := c.zw.Write(p); err != nil {
		return nil, err
	}
	if err := c.zw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), c.buf.Bytes()...), nil
}

// decompress inflates src and verifies that the result has exactly
// expected bytes.
func decompress(src []byte, expected uint64) ([]byte, error) {
	if expected >= math.MaxInt64 {
		return nil, newError(SizeMismatch, fmt.Sprintf("decompressed size %d is too large", expected))
	}

	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, &Error{Kind: DecompressionFailed, Err: err}
	}
	defer zr.Close()

	prealloc := expected
	if prealloc > maxPrealloc {
		prealloc = maxPrealloc
	}

	buf := bytes.NewBuffer(make([]byte, 0, int(prealloc)))
	n, err := buf.ReadFrom(io.LimitReader(zr, int64(expected)+1))
	if err != nil {
		return nil, &Error{Kind: DecompressionFailed, Err: err}
	}
	if uint64(n) != expected {
		return nil, newError(SizeMismatch, fmt.Sprintf("expected %d decompressed bytes, got %d", expected, n))
	}
	return buf.Bytes(), nil
}
