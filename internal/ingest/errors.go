package ingest

import (
	"errors"
	"fmt"
)

// Structural parse failures. They abort the current parse attempt.
var (
	ErrNotCSV          = errors.New("not a valid CSV file: no delimiter found")
	ErrEmptyInput      = errors.New("empty file")
	ErrNoRecords       = errors.New("file contains no data records")
	ErrMalformedHeader = errors.New("malformed header row: first row is not key/value shaped")
)

// ErrInvalidChunkSize is returned by Plan for a non-positive size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Path identifies which parser produced a result.
type Path string

const (
	PathStructured Path = "structured"
	PathFallback   Path = "fallback"
)

// StructuralError wraps a structural sentinel with the parser that hit it.
type StructuralError struct {
	Path Path
	Err  error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s parse: %v", e.Path, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// IsStructural reports whether err is a structural parse failure.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

func structural(path Path, err error) error {
	return &StructuralError{Path: path, Err: err}
}

// ChunkErrorKind classifies a transport failure.
type ChunkErrorKind string

const (
	ChunkNonJSON    ChunkErrorKind = "non_json"
	ChunkHTTPStatus ChunkErrorKind = "http_status"
	ChunkNetwork    ChunkErrorKind = "network"
	ChunkDecode     ChunkErrorKind = "decode"
	ChunkCancelled  ChunkErrorKind = "cancelled"
)

// ChunkError is a failed chunk request. Endpoints return it; the scheduler
// records it in the report instead of propagating it.
type ChunkError struct {
	ChunkNumber int
	Kind        ChunkErrorKind
	StatusCode  int
	Message     string
	Err         error
}

func (e *ChunkError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// asChunkError normalises any endpoint error into a *ChunkError.
func asChunkError(chunkNumber int, err error) *ChunkError {
	var ce *ChunkError
	if errors.As(err, &ce) {
		if ce.ChunkNumber == 0 {
			ce.ChunkNumber = chunkNumber
		}
		return ce
	}
	return &ChunkError{ChunkNumber: chunkNumber, Kind: ChunkNetwork, Message: err.Error(), Err: err}
}
