package source

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies a compressed container by file extension.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGZ   Compression = "gz"
	CompressionBZ2  Compression = "bz2"
	CompressionXZ   Compression = "xz"
	CompressionZSTD Compression = "zst"
)

// DetectCompression picks the compression from the file name suffix.
func DetectCompression(name string) Compression {
	name = strings.ToLower(name)

	switch {
	case strings.HasSuffix(name, ".gz"):
		return CompressionGZ
	case strings.HasSuffix(name, ".bz2"):
		return CompressionBZ2
	case strings.HasSuffix(name, ".xz"):
		return CompressionXZ
	case strings.HasSuffix(name, ".zst"):
		return CompressionZSTD
	default:
		return CompressionNone
	}
}

// Extension returns the suffix including the dot, or "" for no compression.
func (c Compression) Extension() string {
	if c == CompressionNone {
		return ""
	}
	return "." + string(c)
}

// NewReader wraps r with a decompressor. The returned func releases it.
func (c Compression) NewReader(r io.Reader) (io.Reader, func() error, error) {
	switch c {
	case CompressionNone:
		return r, func() error { return nil }, nil

	case CompressionGZ:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gz, gz.Close, nil

	case CompressionBZ2:
		return bzip2.NewReader(r), func() error { return nil }, nil

	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz reader: %w", err)
		}
		return xr, func() error { return nil }, nil

	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return dec, func() error {
			dec.Close()
			return nil
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression %q", string(c))
	}
}
