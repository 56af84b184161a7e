package source

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
)

const sample = "kod,nama,negeri\nA1,Sekolah Satu,Selangor\n"

func compress(t *testing.T, c Compression, data string) []byte {
	t.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error

	switch c {
	case CompressionGZ:
		w = gzip.NewWriter(&buf)
	case CompressionXZ:
		w, err = xz.NewWriter(&buf)
	case CompressionZSTD:
		w, err = zstd.NewWriter(&buf)
	default:
		t.Fatalf("no writer for %q", c)
	}
	require.NoError(t, err)

	_, err = w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOpen_PlainText(t *testing.T) {
	f, err := Open("schools.csv", strings.NewReader(sample), 0)
	require.NoError(t, err)

	assert.Equal(t, sample, f.Text)
	assert.Equal(t, EncodingUTF8, f.Encoding)
	assert.Equal(t, FormatText, f.Format)
	assert.Equal(t, CompressionNone, f.Compression)
	assert.Equal(t, int64(len(sample)), f.Size)
}

func TestOpen_Compressed(t *testing.T) {
	tests := []struct {
		name        string
		compression Compression
	}{
		{"schools.csv.gz", CompressionGZ},
		{"schools.csv.xz", CompressionXZ},
		{"schools.csv.zst", CompressionZSTD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := compress(t, tt.compression, sample)

			f, err := Open(tt.name, bytes.NewReader(data), 0)
			require.NoError(t, err)
			assert.Equal(t, sample, f.Text)
			assert.Equal(t, tt.compression, f.Compression)
		})
	}
}

func TestOpen_StripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, sample...)

	f, err := Open("bom.csv", bytes.NewReader(data), 0)
	require.NoError(t, err)
	assert.Equal(t, sample, f.Text)
}

func TestOpen_Latin1Fallback(t *testing.T) {
	data := []byte("name,city\nCaf\xe9 School,Ipoh\n")

	f, err := Open("latin.csv", bytes.NewReader(data), 0)
	require.NoError(t, err)
	assert.Equal(t, EncodingLatin1, f.Encoding)
	assert.Contains(t, f.Text, "Café School")
}

func TestOpen_TooLarge(t *testing.T) {
	_, err := Open("big.csv", strings.NewReader(strings.Repeat("a,b\n", 100)), 64)
	require.ErrorIs(t, err, ErrFileTooLarge)
}

func TestOpen_DecompressedTooLarge(t *testing.T) {
	data := compress(t, CompressionGZ, strings.Repeat("a,b\n", 10000))
	require.Less(t, len(data), 4096)

	_, err := Open("bomb.csv.gz", bytes.NewReader(data), 4096)
	require.ErrorIs(t, err, ErrFileTooLarge)
}

func TestOpen_LegacyXLS(t *testing.T) {
	_, err := Open("old.xls", strings.NewReader("whatever"), 0)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpen_XLSX(t *testing.T) {
	wb := excelize.NewFile()
	require.NoError(t, wb.SetSheetRow("Sheet1", "A1", &[]any{"code", "name", "state"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A2", &[]any{"A1", "Sekolah, Satu", "Selangor"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A3", &[]any{"B2"}))
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)

	f, err := Open("schools.xlsx", bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, f.Format)
	assert.Equal(t, "code,name,state\nA1,\"Sekolah, Satu\",Selangor\nB2,,\n", f.Text)
}

func TestOpenPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schools.csv.gz")
	require.NoError(t, os.WriteFile(path, compress(t, CompressionGZ, sample), 0o600))

	f, err := OpenPath(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "schools.csv.gz", f.Name)
	assert.Equal(t, sample, f.Text)
}

func TestDetectCompression(t *testing.T) {
	tests := map[string]Compression{
		"a.csv":     CompressionNone,
		"a.CSV.GZ":  CompressionGZ,
		"a.tsv.bz2": CompressionBZ2,
		"a.csv.xz":  CompressionXZ,
		"a.csv.zst": CompressionZSTD,
	}
	for name, want := range tests {
		assert.Equal(t, want, DetectCompression(name), name)
	}
}
