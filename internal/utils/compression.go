package utils

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies how a tarball is compressed
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionXZ
	CompressionZstd
)

// String returns the conventional file suffix for c
func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionXZ:
		return "xz"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

var tarballSuffixes = []struct {
	suffix      string
	compression Compression
}{
	{".tar.gz", CompressionGzip},
	{".tgz", CompressionGzip},
	{".tar.xz", CompressionXZ},
	{".txz", CompressionXZ},
	{".tar.zst", CompressionZstd},
	{".tzst", CompressionZstd},
	{".tar", CompressionNone},
}

// DetectCompression returns the compression implied by a tarball file name.
// The boolean is false when name is not a recognized tarball.
func DetectCompression(name string) (Compression, bool) {
	lower := strings.ToLower(name)
	for _, s := range tarballSuffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.compression, true
		}
	}
	return CompressionNone, false
}

// NewDecompressor wraps r with a reader for compression c
func NewDecompressor(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return gr, nil
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{zr}, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}

// NewCompressor wraps w with a writer for compression c. Closing the
// returned writer flushes it but leaves w open.
func NewCompressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case CompressionXZ:
		return xz.NewWriter(w)
	case CompressionZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
