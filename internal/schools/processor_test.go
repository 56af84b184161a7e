package schools

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/refimport/internal/ingest"
)

func school(code, state string) ingest.Record {
	rec := ingest.NewRecord()
	rec.Set(ingest.FieldCode, code)
	rec.Set(ingest.FieldName, "Sekolah "+code)
	rec.Set(ingest.FieldLevel, "Rendah")
	rec.Set(ingest.FieldCategory, "SK")
	rec.Set(ingest.FieldState, state)
	return rec
}

func TestProcessChunk_CreatesThenUpdates(t *testing.T) {
	store := NewMemoryStore("Selangor", "Johor")
	p := NewProcessor(store, 0, nil)

	payload := Payload{
		Records:     []ingest.Record{school("A1", "Selangor"), school("B2", " johor ")},
		TotalChunks: 2,
		ChunkNumber: 1,
	}

	res, err := p.ProcessChunk(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Created)
	assert.Zero(t, res.Updated)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.ChunkNumber)
	assert.Equal(t, 2, res.TotalChunks)
	assert.False(t, res.IsLastChunk)

	res, err = p.ProcessChunk(context.Background(), payload)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Equal(t, 2, res.Updated)

	s, ok := store.School("B2")
	require.True(t, ok)
	assert.Equal(t, int64(2), s.StateID)
}

func TestProcessChunk_RejectsRows(t *testing.T) {
	store := NewMemoryStore("Selangor")
	p := NewProcessor(store, 2, nil)

	noCode := school("", "Selangor")
	noLevel := school("C3", "Selangor")
	noLevel.Set(ingest.FieldLevel, "")

	res, err := p.ProcessChunk(context.Background(), Payload{Records: []ingest.Record{
		school("A1", "Selangor"),
		noCode,
		noLevel,
		school("D4", "Atlantis"),
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, []ingest.RowError{
		{Row: 2, Code: "unknown", Error: "Missing required fields"},
		{Row: 3, Code: "C3", Error: "Missing required fields"},
		{Row: 4, Code: "D4", Error: "State 'Atlantis' not found"},
	}, res.Errors)
}

func TestProcessChunk_StoreFailureSkipsRow(t *testing.T) {
	store := NewMemoryStore("Selangor")
	store.FailCodes = map[string]error{"B2": errors.New("duplicate key value violates unique constraint")}
	p := NewProcessor(store, 0, nil)

	res, err := p.ProcessChunk(context.Background(), Payload{Records: []ingest.Record{
		school("A1", "Selangor"),
		school("B2", "Selangor"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, "B2", res.Errors[0].Code)
	assert.Equal(t, "A record with this code already exists", res.Errors[0].Error)
}

func TestProcessChunk_StoreDetailNotEchoed(t *testing.T) {
	store := NewMemoryStore("Selangor")
	store.FailCodes = map[string]error{"A1": errors.New(`null value in column "level": Failing row contains (A1, secret)`)}
	p := NewProcessor(store, 0, nil)

	res, err := p.ProcessChunk(context.Background(), Payload{Records: []ingest.Record{school("A1", "Selangor")}})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "An unexpected error occurred", res.Errors[0].Error)
	assert.NotContains(t, res.Errors[0].Error, "secret")
}

func TestProcessChunk_OptionalFields(t *testing.T) {
	store := NewMemoryStore("Selangor")
	p := NewProcessor(store, 0, nil)

	rec := school(" A1 ", "Selangor")
	rec.Set(ingest.FieldCity, "  Shah Alam ")
	rec.Set(ingest.FieldLatitude, "3.0738")
	rec.Set(ingest.FieldLongitude, "n/a")

	_, err := p.ProcessChunk(context.Background(), Payload{Records: []ingest.Record{rec}})
	require.NoError(t, err)

	s, ok := store.School("A1")
	require.True(t, ok)
	require.NotNil(t, s.City)
	assert.Equal(t, "Shah Alam", *s.City)
	assert.Nil(t, s.Address)
	require.NotNil(t, s.Latitude)
	assert.InDelta(t, 3.0738, *s.Latitude, 1e-9)
	assert.Nil(t, s.Longitude)
}

func TestProcessChunk_Empty(t *testing.T) {
	p := NewProcessor(NewMemoryStore(), 0, nil)
	_, err := p.ProcessChunk(context.Background(), Payload{})
	assert.ErrorIs(t, err, ErrInvalidChunk)
}

type countingStore struct {
	*MemoryStore
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *countingStore) UpsertSchool(ctx context.Context, s School) (bool, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return c.MemoryStore.UpsertSchool(ctx, s)
}

func TestProcessChunk_BatchBound(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore("Selangor")}
	p := NewProcessor(store, 4, nil)

	recs := make([]ingest.Record, 30)
	for i := range recs {
		recs[i] = school(fmt.Sprintf("S%02d", i), "Selangor")
	}

	res, err := p.ProcessChunk(context.Background(), Payload{Records: recs})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Created)
	assert.LessOrEqual(t, store.peak.Load(), int32(4))
	assert.Equal(t, 30, store.Len())
}

type brokenStore struct{ *MemoryStore }

func (*brokenStore) StateIDs(context.Context) (map[string]int64, error) {
	return nil, errors.New("connection refused")
}

func TestProcessChunk_StatesUnavailable(t *testing.T) {
	p := NewProcessor(&brokenStore{NewMemoryStore()}, 0, nil)
	_, err := p.ProcessChunk(context.Background(), Payload{Records: []ingest.Record{school("A1", "X")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
