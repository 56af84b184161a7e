package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/refimport/internal/ingest"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const schoolsCSV = "code,name,level,category,state\n" +
	"A1,SK Satu,Rendah,SK,Selangor\n" +
	"B2,SK Dua,Rendah,SK,Johor\n" +
	"C3,SK Tiga,Rendah,SK,Atlantis\n"

// endpoint creates every record except those in the state Atlantis.
func endpoint(t *testing.T, chunks *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunks.Add(1)
		assert.Equal(t, "k-1", r.Header.Get("X-API-Key"))

		var req struct {
			Records []ingest.Record `json:"records"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		res := ingest.ChunkResult{Errors: []ingest.RowError{}}
		for i, rec := range req.Records {
			if rec.Get(ingest.FieldState) == "Atlantis" {
				res.Skipped++
				res.Errors = append(res.Errors, ingest.RowError{Row: i + 1, Code: rec.Get(ingest.FieldCode), Error: "State 'Atlantis' not found"})
				continue
			}
			res.Created++
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUpload_Text(t *testing.T) {
	var chunks atomic.Int32
	srv := endpoint(t, &chunks)
	path := writeFile(t, "schools.csv", schoolsCSV)

	code, out, errOut := run(t, "upload", path, "--url", srv.URL, "--api-key", "k-1", "--chunk-size", "2")
	require.Equal(t, ExitOK, code, errOut)

	assert.Equal(t, int32(2), chunks.Load())
	assert.Contains(t, out, "Created:  2")
	assert.Contains(t, out, "Skipped:  1")
	assert.Contains(t, out, "row 3 [C3]: State 'Atlantis' not found")
	assert.Contains(t, errOut, "uploading 100%")
}

func TestUpload_JSONFailOnErrors(t *testing.T) {
	var chunks atomic.Int32
	srv := endpoint(t, &chunks)
	path := writeFile(t, "schools.csv", schoolsCSV)

	code, out, _ := run(t, "upload", path, "--url", srv.URL, "--api-key", "k-1", "-o", "json", "-q", "--fail-on-errors")
	assert.Equal(t, ExitHasErrors, code)

	var rep ingest.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Created)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, 3, rep.Errors[0].Row)
}

func TestUpload_Failures(t *testing.T) {
	path := writeFile(t, "schools.csv", schoolsCSV)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no url", []string{"upload", path}, "no upload URL"},
		{"missing file", []string{"upload", filepath.Join(t.TempDir(), "nope.csv"), "--url", "http://127.0.0.1:1"}, "nope.csv"},
		{"bad delimiter", []string{"upload", path, "--url", "http://127.0.0.1:1", "--delimiter", ";;"}, "invalid delimiter"},
		{"bad output", []string{"upload", path, "-o", "yaml"}, "unsupported output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("IMPORT_URL", "")
			code, _, errOut := run(t, tt.args...)
			assert.Equal(t, ExitFailure, code)
			assert.Contains(t, errOut, tt.wantErr)
		})
	}
}

func TestUpload_NotCSV(t *testing.T) {
	var chunks atomic.Int32
	srv := endpoint(t, &chunks)
	path := writeFile(t, "notes.txt", "no commas or semicolons here\nnor here\n")

	code, out, _ := run(t, "upload", path, "--url", srv.URL, "-o", "json")
	assert.Equal(t, ExitFailure, code)
	assert.Zero(t, chunks.Load())

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "FILE002", body["code"])
}

func TestPreview(t *testing.T) {
	path := writeFile(t, "sekolah.csv", "Kod;Nama;Peringkat;Kategori;Negeri;Catatan\nA1;SK Satu;Rendah;SK;Selangor;x\n")

	code, out, errOut := run(t, "preview", path, "-o", "json")
	require.Equal(t, ExitOK, code, errOut)

	var p ingest.PreviewReport
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, ";", p.Delimiter)
	assert.Equal(t, 1, p.TotalRows)
	assert.Equal(t, 1, p.ValidRows)
	assert.Empty(t, p.MissingFields)
	assert.Equal(t, []string{"catatan"}, p.UnknownFields)
}

func TestPreview_Text(t *testing.T) {
	path := writeFile(t, "sekolah.csv", schoolsCSV)

	code, out, _ := run(t, "preview", path, "--sample", "1")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, out, "structured")
	assert.Contains(t, out, "Rows:")
	assert.Equal(t, 1, strings.Count(out, `"code":`))
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", 0, false},
		{";", ';', false},
		{`\t`, '\t', false},
		{"tab", '\t', false},
		{"|", '|', false},
		{",,", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDelimiter(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
