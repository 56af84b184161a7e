package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schoolsCSV(n int) string {
	var b strings.Builder
	b.WriteString("code,name,level,category,state\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "S%04d,School %d,Rendah,Harian,Selangor\n", i, i)
	}
	return b.String()
}

func TestImporter_ChunkTwoReturnsHTML(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes = map[int]int{}
	)
	endpoint := EndpointFunc(func(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
		mu.Lock()
		sizes[req.ChunkNumber] = len(req.Records)
		mu.Unlock()

		assert.Equal(t, 4, req.TotalChunks)
		assert.Equal(t, req.ChunkNumber == 4, req.IsLastChunk)
		assert.NotEmpty(t, req.ImportID)

		if req.ChunkNumber == 2 {
			return ChunkResult{}, &ChunkError{
				Kind:       ChunkNonJSON,
				StatusCode: 200,
				Message:    "Server returned HTML instead of JSON. The server may have timed out.",
			}
		}
		return ChunkResult{
			Created: 240,
			Updated: 10,
			Errors:  []RowError{{Row: 3, Code: "X", Error: "State 'Atlantis' not found"}},
		}, nil
	})

	im := NewImporter(endpoint, Options{ChunkSize: 250, MaxConcurrent: 3})
	rep, err := im.Import(context.Background(), "schools.csv", schoolsCSV(1000))
	require.NoError(t, err)

	assert.Equal(t, map[int]int{1: 250, 2: 250, 3: 250, 4: 250}, sizes)
	assert.Equal(t, 1000, rep.Total)
	assert.Equal(t, 720, rep.Created)
	assert.Equal(t, 30, rep.Updated)
	assert.Equal(t, 1, rep.FailedChunks)

	var chunkErrs, rows []int
	for _, e := range rep.Errors {
		switch e.Kind {
		case ReportChunkError:
			chunkErrs = append(chunkErrs, e.ChunkNumber)
			assert.Contains(t, e.Message, "HTML instead of JSON")
		case ReportRowError:
			rows = append(rows, e.Row)
		}
	}
	assert.Equal(t, []int{2}, chunkErrs)
	assert.Equal(t, []int{3, 503, 753}, rows)
}

func TestImporter_NotCSVFailsBeforeUpload(t *testing.T) {
	called := false
	endpoint := EndpointFunc(func(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
		called = true
		return ChunkResult{}, nil
	})

	_, err := NewImporter(endpoint, Options{}).Import(context.Background(), "x.csv", "no commas or semicolons here")
	require.ErrorIs(t, err, ErrNotCSV)
	assert.Contains(t, err.Error(), "not a valid CSV")
	assert.False(t, called)
}

func TestImporter_FallbackUsesFallbackChunkSize(t *testing.T) {
	var b strings.Builder
	b.WriteString("kod,nama,negeri\n")
	for i := 1; i <= 120; i++ {
		// The stray quote breaks strict CSV parsing on every row.
		fmt.Fprintf(&b, "K%d,Sek \"%d\",Johor\n", i, i)
	}

	var total int
	endpoint := EndpointFunc(func(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
		total = req.TotalChunks
		return ChunkResult{Created: len(req.Records)}, nil
	})

	im := NewImporter(endpoint, Options{ChunkSize: 250, FallbackChunkSize: 50})
	ds, err := im.Parse(context.Background(), "sekolah.csv", b.String())
	require.NoError(t, err)
	assert.Equal(t, PathFallback, ds.Path)
	assert.Equal(t, 50, ds.ChunkSize)
	require.Len(t, ds.Records, 120)
	assert.Equal(t, "Sek 1", ds.Records[0].Get(FieldName))

	rep, err := im.Upload(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 120, rep.Created)
}

func TestImporter_ProgressTwoPhases(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Progress
	)
	endpoint := EndpointFunc(func(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
		return ChunkResult{Created: len(req.Records)}, nil
	})

	im := NewImporter(endpoint, Options{ChunkSize: 10, MaxConcurrent: 2, Progress: func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p)
	}})
	_, err := im.Import(context.Background(), "s.csv", schoolsCSV(35))
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, PhaseParsing, events[0].Phase)
	assert.Equal(t, PhaseUploading, events[len(events)-1].Phase)
	assert.Equal(t, 100, events[len(events)-1].Percent)
	assert.Equal(t, 100, events[len(events)-1].Overall())

	var overall []int
	uploads := 0
	for _, e := range events {
		overall = append(overall, e.Overall())
		if e.Phase == PhaseUploading && e.Completed > 0 {
			uploads++
		}
	}
	assert.IsNonDecreasing(t, overall)
	assert.Equal(t, 4, uploads)
}

func TestImporter_UploadWithoutEndpoint(t *testing.T) {
	im := NewImporter(nil, Options{})
	ds, err := im.Parse(context.Background(), "s.csv", schoolsCSV(2))
	require.NoError(t, err)

	_, err = im.Upload(context.Background(), ds)
	require.ErrorIs(t, err, ErrNoEndpoint)
}

func TestImporter_CancelledUploadReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoint := EndpointFunc(func(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
		cancel()
		return ChunkResult{Created: len(req.Records)}, nil
	})

	im := NewImporter(endpoint, Options{ChunkSize: 10, MaxConcurrent: 1})
	ds, err := im.Parse(context.Background(), "s.csv", schoolsCSV(30))
	require.NoError(t, err)

	rep, err := im.Upload(ctx, ds)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Equal(t, 10, rep.Created)
	assert.Equal(t, 2, rep.FailedChunks)
	assert.Equal(t, 30, rep.Total)
}

func TestPreview(t *testing.T) {
	text := "kod,nama,negeri,catatan\nA1,Satu,Selangor,x\nA2,,Johor,y\n"

	ds, err := NewImporter(nil, Options{}).Parse(context.Background(), "p.csv", text)
	require.NoError(t, err)

	p := Preview(ds, 1)
	assert.Equal(t, 2, p.TotalRows)
	assert.Equal(t, 0, p.ValidRows)
	assert.Equal(t, []Field{FieldLevel, FieldCategory}, p.MissingFields)
	assert.Equal(t, []string{"catatan"}, p.UnknownFields)
	assert.Len(t, p.Sample, 1)
	assert.Equal(t, ds.ID.String(), p.ImportID)
}

func TestProgressOverall(t *testing.T) {
	tests := []struct {
		p    Progress
		want int
	}{
		{Progress{Phase: PhaseParsing, Percent: 0}, 0},
		{Progress{Phase: PhaseParsing, Percent: 50}, 20},
		{Progress{Phase: PhaseParsing, Percent: 100}, 40},
		{Progress{Phase: PhaseUploading, Percent: 0}, 40},
		{Progress{Phase: PhaseUploading, Percent: 50}, 70},
		{Progress{Phase: PhaseUploading, Percent: 100}, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.Overall(), "%s %d", tt.p.Phase, tt.p.Percent)
	}
}
