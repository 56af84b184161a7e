package ingest

import "sort"

// ReportErrorKind distinguishes endpoint row rejections from failed chunks.
type ReportErrorKind string

const (
	ReportRowError   ReportErrorKind = "row"
	ReportChunkError ReportErrorKind = "chunk"
)

// ReportError is one entry of the final error list. Row is file-global and
// 1-based for row errors, zero for chunk errors.
type ReportError struct {
	Kind        ReportErrorKind `json:"kind"`
	Row         int             `json:"row,omitempty"`
	ChunkNumber int             `json:"chunkNumber"`
	Code        string          `json:"code,omitempty"`
	Message     string          `json:"error"`
}

// Report is the aggregate outcome of one import.
type Report struct {
	ImportID     string        `json:"importId,omitempty"`
	Total        int           `json:"total"`
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Skipped      int           `json:"skipped"`
	Errors       []ReportError `json:"errors"`
	ParseErrors  []ParseError  `json:"parseErrors,omitempty"`
	Chunks       int           `json:"chunks"`
	FailedChunks int           `json:"failedChunks"`
}

// HasErrors reports whether any row or chunk failed.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// Aggregate folds outcomes into a report. total is the pre-chunking record
// count and is never derived from the outcomes. Outcomes are merged in chunk
// order whatever order they arrive in.
func Aggregate(total int, outcomes []Outcome) *Report {
	sorted := make([]Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ChunkNumber < sorted[j].ChunkNumber
	})

	rep := &Report{
		Total:  total,
		Errors: []ReportError{},
		Chunks: len(sorted),
	}

	for _, o := range sorted {
		if o.Err != nil {
			rep.FailedChunks++
			rep.Errors = append(rep.Errors, ReportError{
				Kind:        ReportChunkError,
				ChunkNumber: o.ChunkNumber,
				Message:     o.Err.Error(),
			})
			continue
		}

		rep.Created += o.Result.Created
		rep.Updated += o.Result.Updated
		rep.Skipped += o.Result.Skipped

		offset := (o.ChunkNumber - 1) * o.ChunkSize
		for _, e := range o.Result.Errors {
			rep.Errors = append(rep.Errors, ReportError{
				Kind:        ReportRowError,
				Row:         e.Row + offset,
				ChunkNumber: o.ChunkNumber,
				Code:        e.Code,
				Message:     e.Error,
			})
		}
	}

	return rep
}
