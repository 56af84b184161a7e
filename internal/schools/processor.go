// Package schools implements the server side of the chunked import: it
// validates each record of a chunk, resolves its state and upserts it by
// school code.
package schools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/refimport/internal/ingest"
)

// DefaultRowBatchSize is the number of rows upserted concurrently.
const DefaultRowBatchSize = 25

// ErrInvalidChunk is returned for a payload with no records.
var ErrInvalidChunk = errors.New("Invalid chunk data structure")

// School is one validated row ready for storage.
type School struct {
	Code      string
	Name      string
	Level     string
	Category  string
	StateID   int64
	PPD       *string
	Address   *string
	City      *string
	Postcode  *string
	Latitude  *float64
	Longitude *float64
}

// Store persists schools and resolves states.
type Store interface {
	// StateIDs maps lower-cased state names to their ids.
	StateIDs(ctx context.Context) (map[string]int64, error)
	// UpsertSchool inserts or updates by code and reports whether a new
	// row was created.
	UpsertSchool(ctx context.Context, s School) (created bool, err error)
}

// Payload is the request body of one chunk.
type Payload struct {
	Records     []ingest.Record `json:"records"`
	TotalChunks int             `json:"totalChunks"`
	ChunkNumber int             `json:"chunkNumber"`
	IsLastChunk bool            `json:"isLastChunk"`
}

// Result is the response body for one chunk.
type Result struct {
	Total       int               `json:"total"`
	Created     int               `json:"created"`
	Updated     int               `json:"updated"`
	Skipped     int               `json:"skipped"`
	Errors      []ingest.RowError `json:"errors"`
	ChunkNumber int               `json:"chunkNumber"`
	TotalChunks int               `json:"totalChunks"`
	IsLastChunk bool              `json:"isLastChunk"`
}

// Processor validates and stores chunks.
type Processor struct {
	store     Store
	batchSize int
	logger    *slog.Logger
}

// NewProcessor returns a processor writing to store. A batchSize of zero or
// less uses DefaultRowBatchSize.
func NewProcessor(store Store, batchSize int, logger *slog.Logger) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultRowBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, batchSize: batchSize, logger: logger}
}

// ProcessChunk handles every record of p. Rows are handled in sub-batches of
// the configured size, the rows of a sub-batch concurrently. Row failures are
// collected in the result; only a failure to load states aborts the chunk.
func (p *Processor) ProcessChunk(ctx context.Context, payload Payload) (*Result, error) {
	if len(payload.Records) == 0 {
		return nil, ErrInvalidChunk
	}

	states, err := p.store.StateIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}

	res := &Result{
		Total:       len(payload.Records),
		Errors:      []ingest.RowError{},
		ChunkNumber: payload.ChunkNumber,
		TotalChunks: payload.TotalChunks,
		IsLastChunk: payload.IsLastChunk,
	}

	var mu sync.Mutex
	reject := func(row int, code, msg string) {
		mu.Lock()
		defer mu.Unlock()
		res.Skipped++
		res.Errors = append(res.Errors, ingest.RowError{Row: row, Code: code, Error: msg})
	}

	for start := 0; start < len(payload.Records); start += p.batchSize {
		end := min(start+p.batchSize, len(payload.Records))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				row := i + 1
				rec := payload.Records[i]

				school, code, msg := validate(rec, states)
				if msg != "" {
					reject(row, code, msg)
					return nil
				}

				created, err := p.store.UpsertSchool(ctx, school)
				if err != nil {
					p.logger.Error("upsert failed", "chunk", payload.ChunkNumber, "row", row, "code", code, "error", err)
					reject(row, code, ingest.MapError(err).Message)
					return nil
				}

				mu.Lock()
				if created {
					res.Created++
				} else {
					res.Updated++
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Row < res.Errors[j].Row })

	p.logger.Info("chunk processed",
		"chunk", payload.ChunkNumber,
		"total_chunks", payload.TotalChunks,
		"records", res.Total,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
	)
	return res, nil
}

// validate turns a record into a School. On rejection it returns the code to
// report and a message.
func validate(rec ingest.Record, states map[string]int64) (School, string, string) {
	code := strings.TrimSpace(rec.Get(ingest.FieldCode))
	if len(rec.Missing()) > 0 {
		if code == "" {
			code = "unknown"
		}
		return School{}, code, "Missing required fields"
	}

	state := rec.Get(ingest.FieldState)
	stateID, ok := states[strings.ToLower(strings.TrimSpace(state))]
	if !ok {
		return School{}, code, fmt.Sprintf("State '%s' not found", state)
	}

	return School{
		Code:      code,
		Name:      strings.TrimSpace(rec.Get(ingest.FieldName)),
		Level:     strings.TrimSpace(rec.Get(ingest.FieldLevel)),
		Category:  strings.TrimSpace(rec.Get(ingest.FieldCategory)),
		StateID:   stateID,
		PPD:       optional(rec.Get(ingest.FieldPPD)),
		Address:   optional(rec.Get(ingest.FieldAddress)),
		City:      optional(rec.Get(ingest.FieldCity)),
		Postcode:  optional(rec.Get(ingest.FieldPostcode)),
		Latitude:  coordinate(rec.Get(ingest.FieldLatitude)),
		Longitude: coordinate(rec.Get(ingest.FieldLongitude)),
	}, code, ""
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func coordinate(v string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return &f
}
