// Package source turns an uploaded or on-disk reference file into delimited
// text ready for the tokenizer.
//
// Compressed inputs are unwrapped by extension, spreadsheets are flattened to
// comma-separated text, a UTF-8 BOM is dropped and non-UTF-8 bytes are read as
// ISO-8859-1.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrFileTooLarge is returned when the input exceeds the configured limit.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

	// ErrUnsupportedFormat is returned for formats that cannot be converted to text.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Format is the logical content type of an input after decompression.
type Format string

const (
	FormatText Format = "text"
	FormatXLSX Format = "xlsx"
)

// Encoding names the character set the text was decoded from.
const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "iso-8859-1"
)

// File is an opened input, fully decoded.
type File struct {
	Name        string
	Text        string
	Encoding    string
	Format      Format
	Compression Compression
	// Size is the number of bytes read after decompression.
	Size int64
}

// Open reads r completely and converts it to text. name decides the
// compression and format; limit caps both the raw and the decompressed size.
// A limit of zero or less disables the check.
func Open(name string, r io.Reader, limit int64) (*File, error) {
	compression := DetectCompression(name)
	inner := strings.TrimSuffix(strings.ToLower(filepath.Base(name)), compression.Extension())

	format, err := detectFormat(inner)
	if err != nil {
		return nil, err
	}

	raw := newLimitedReader(r, limit)
	decoded, closer, err := compression.NewReader(raw)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = closer() }()

	body := newLimitedReader(decoded, limit)
	data, err := io.ReadAll(body)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, fmt.Errorf("%s: %w (limit %d bytes)", name, ErrFileTooLarge, limit)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	f := &File{
		Name:        name,
		Format:      format,
		Compression: compression,
		Size:        body.n,
	}

	switch format {
	case FormatXLSX:
		text, err := xlsxToText(data)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", name, err)
		}
		f.Text = text
		f.Encoding = EncodingUTF8
	default:
		f.Text, f.Encoding = decodeText(data)
	}

	return f, nil
}

// OpenPath opens the file at path and passes it to Open.
func OpenPath(path string, limit int64) (*File, error) {
	fh, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	return Open(filepath.Base(path), fh, limit)
}

func detectFormat(name string) (Format, error) {
	switch filepath.Ext(name) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls, save the sheet as .xlsx or .csv", ErrUnsupportedFormat)
	default:
		return FormatText, nil
	}
}

// limitedReader counts bytes and fails once more than max have been read.
type limitedReader struct {
	r   io.Reader
	max int64
	n   int64
}

func newLimitedReader(r io.Reader, max int64) *limitedReader {
	return &limitedReader{r: r, max: max}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.max > 0 && l.n > l.max {
		return n, ErrFileTooLarge
	}
	return n, err
}
