package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrent is the default batch width.
const DefaultMaxConcurrent = 3

// ChunkRequest is the wire body for one chunk.
type ChunkRequest struct {
	ImportID    string   `json:"-"`
	Records     []Record `json:"records"`
	TotalChunks int      `json:"totalChunks"`
	ChunkNumber int      `json:"chunkNumber"`
	IsLastChunk bool     `json:"isLastChunk"`
}

// RowError is a per-row rejection reported by the endpoint. Row is local to
// the chunk and 1-based.
type RowError struct {
	Row   int    `json:"row"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// ChunkResult is the endpoint's answer for one chunk.
type ChunkResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors,omitempty"`
}

// Endpoint receives chunks. Implementations should return a *ChunkError for
// transport failures; any other error is treated as a network failure.
type Endpoint interface {
	SendChunk(ctx context.Context, req ChunkRequest) (ChunkResult, error)
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context, req ChunkRequest) (ChunkResult, error)

func (f EndpointFunc) SendChunk(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
	return f(ctx, req)
}

// Outcome is what happened to one chunk. Exactly one of Result and Err is
// meaningful: Err is nil on success.
type Outcome struct {
	ChunkNumber int
	ChunkSize   int
	Result      ChunkResult
	Err         *ChunkError
}

// Scheduler sends chunks in sequential batches of at most MaxConcurrent
// concurrent requests and waits for each batch to settle before the next.
type Scheduler struct {
	Endpoint      Endpoint
	MaxConcurrent int
	ImportID      string
	Logger        *slog.Logger
}

// Upload dispatches chunks and returns one Outcome per chunk, in chunk order.
// onProgress is called once per settled chunk with the completed count; calls
// never overlap.
//
// Failed chunks never stop the run. If ctx is cancelled, batches that have
// not started are skipped, their chunks are recorded as cancelled, and the
// context error is returned alongside the outcomes.
func (s *Scheduler) Upload(ctx context.Context, chunks []Chunk, onProgress func(completed, total int)) ([]Outcome, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	k := s.MaxConcurrent
	if k <= 0 {
		k = DefaultMaxConcurrent
	}

	outcomes := make([]Outcome, len(chunks))

	var (
		mu        sync.Mutex
		completed int
	)
	settle := func(i int, o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[i] = o
		completed++
		if onProgress != nil {
			onProgress(completed, len(chunks))
		}
	}

	for start := 0; start < len(chunks); start += k {
		if err := ctx.Err(); err != nil {
			for i := start; i < len(chunks); i++ {
				settle(i, Outcome{
					ChunkNumber: chunks[i].Number,
					ChunkSize:   chunks[i].Size,
					Err: &ChunkError{
						ChunkNumber: chunks[i].Number,
						Kind:        ChunkCancelled,
						Message:     "upload cancelled before chunk was sent",
						Err:         err,
					},
				})
			}
			logger.Warn("upload cancelled", "import_id", s.ImportID, "skipped_chunks", len(chunks)-start)
			return outcomes, err
		}

		end := min(start+k, len(chunks))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				settle(i, s.send(ctx, logger, chunks[i]))
				return nil
			})
		}
		_ = g.Wait()
	}

	return outcomes, nil
}

func (s *Scheduler) send(ctx context.Context, logger *slog.Logger, c Chunk) Outcome {
	o := Outcome{ChunkNumber: c.Number, ChunkSize: c.Size}

	res, err := s.Endpoint.SendChunk(ctx, ChunkRequest{
		ImportID:    s.ImportID,
		Records:     c.Records,
		TotalChunks: c.Total,
		ChunkNumber: c.Number,
		IsLastChunk: c.IsLast,
	})
	if err != nil {
		ce := asChunkError(c.Number, err)
		if errors.Is(err, context.Canceled) {
			ce.Kind = ChunkCancelled
		}
		logger.Warn("chunk failed",
			"import_id", s.ImportID,
			"chunk", c.Number,
			"kind", ce.Kind,
			"status", ce.StatusCode,
			"error", ce.Error(),
		)
		o.Err = ce
		return o
	}

	logger.Debug("chunk uploaded",
		"import_id", s.ImportID,
		"chunk", c.Number,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"errors", len(res.Errors),
	)
	o.Result = res
	return o
}
