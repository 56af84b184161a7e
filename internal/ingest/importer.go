package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Default chunk sizes. The fallback path sees smaller, messier files.
const (
	DefaultChunkSize         = 250
	DefaultFallbackChunkSize = 50
)

// ErrNoEndpoint is returned by Upload on an importer built without one.
var ErrNoEndpoint = errors.New("importer has no endpoint")

// Options configure an Importer. Zero values take the defaults.
type Options struct {
	ChunkSize         int
	FallbackChunkSize int
	MaxConcurrent     int
	// Lenient keeps structurally odd rows on the structured path.
	Lenient bool
	// Delimiter forces a separator on the structured path.
	Delimiter rune
	// LayoutMarker is passed to the fallback parser.
	LayoutMarker string
	Progress     ProgressFunc
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.FallbackChunkSize <= 0 {
		o.FallbackChunkSize = DefaultFallbackChunkSize
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Dataset is a parsed file waiting to be uploaded. It is the only state
// carried between Parse and Upload.
type Dataset struct {
	ID          uuid.UUID       `json:"id"`
	FileName    string          `json:"fileName"`
	Path        Path            `json:"path"`
	Delimiter   string          `json:"delimiter"`
	Headers     []string        `json:"headers"`
	Mapping     []ColumnMapping `json:"mapping"`
	Records     []Record        `json:"-"`
	ParseErrors []ParseError    `json:"parseErrors,omitempty"`
	ChunkSize   int             `json:"chunkSize"`
}

// Importer runs the parse, plan, upload and aggregate steps.
type Importer struct {
	endpoint Endpoint
	opts     Options
}

// NewImporter returns an importer sending to endpoint. endpoint may be nil
// for an importer used only to parse and preview.
func NewImporter(endpoint Endpoint, opts Options) *Importer {
	return &Importer{endpoint: endpoint, opts: opts.withDefaults()}
}

// Import parses text and uploads the result.
func (im *Importer) Import(ctx context.Context, name, text string) (*Report, error) {
	ds, err := im.Parse(ctx, name, text)
	if err != nil {
		return nil, err
	}
	return im.Upload(ctx, ds)
}

// Parse runs the structured tokenizer and falls back to the heuristic parser
// on a structural failure. If both fail, the fallback's error is returned.
func (im *Importer) Parse(ctx context.Context, name, text string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress := newProgressReporter(im.opts.Progress)
	progress.report(PhaseParsing, 0, 1, false)
	onParse := func(done, total int) {
		progress.report(PhaseParsing, done, total, false)
	}

	logger := im.opts.Logger.With("file", name)

	res, err := Tokenize(text, TokenizeOptions{
		Delimiter: im.opts.Delimiter,
		Lenient:   im.opts.Lenient,
		Progress:  onParse,
		Logger:    logger,
	})
	chunkSize := im.opts.ChunkSize

	if err != nil {
		if !IsStructural(err) {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		logger.Warn("structured parse failed, using fallback parser", "error", err)

		res, err = ParseFallback(text, FallbackOptions{
			FileName:     name,
			LayoutMarker: im.opts.LayoutMarker,
			Progress:     onParse,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		chunkSize = im.opts.FallbackChunkSize
	}

	progress.report(PhaseParsing, 1, 1, false)

	ds := &Dataset{
		ID:          uuid.New(),
		FileName:    name,
		Path:        res.Path,
		Delimiter:   string(res.Delimiter),
		Headers:     res.Headers,
		Mapping:     res.Mapping,
		Records:     res.Records,
		ParseErrors: res.Errors,
		ChunkSize:   chunkSize,
	}

	logger.Info("file parsed",
		"import_id", ds.ID,
		"path", ds.Path,
		"records", len(ds.Records),
		"parse_errors", len(ds.ParseErrors),
	)
	return ds, nil
}

// Upload plans ds into chunks and sends them. On cancellation the partial
// report is returned together with the context error.
func (im *Importer) Upload(ctx context.Context, ds *Dataset) (*Report, error) {
	if im.endpoint == nil {
		return nil, ErrNoEndpoint
	}
	if ds == nil || len(ds.Records) == 0 {
		return nil, ErrNoRecords
	}

	size := ds.ChunkSize
	if size <= 0 {
		size = im.opts.ChunkSize
	}
	chunks, err := Plan(ds.Records, size)
	if err != nil {
		return nil, err
	}

	logger := im.opts.Logger.With("import_id", ds.ID.String(), "file", ds.FileName)
	logger.Info("import started", "records", len(ds.Records), "chunks", len(chunks), "chunk_size", size)
	start := time.Now()

	progress := newProgressReporter(im.opts.Progress)
	progress.report(PhaseUploading, 0, len(chunks), true)

	sched := &Scheduler{
		Endpoint:      im.endpoint,
		MaxConcurrent: im.opts.MaxConcurrent,
		ImportID:      ds.ID.String(),
		Logger:        logger,
	}
	outcomes, upErr := sched.Upload(ctx, chunks, func(completed, total int) {
		progress.report(PhaseUploading, completed, total, true)
	})

	rep := Aggregate(len(ds.Records), outcomes)
	rep.ImportID = ds.ID.String()
	rep.ParseErrors = ds.ParseErrors

	logger.Info("import finished",
		"created", rep.Created,
		"updated", rep.Updated,
		"skipped", rep.Skipped,
		"errors", len(rep.Errors),
		"failed_chunks", rep.FailedChunks,
		"duration", time.Since(start),
	)
	return rep, upErr
}
