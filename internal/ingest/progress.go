package ingest

import "sync"

// Phase is the stage an import is in.
type Phase string

const (
	PhaseParsing   Phase = "parsing"
	PhaseUploading Phase = "uploading"
)

// parseShare is the part of the overall bar given to parsing.
const parseShare = 40

// Progress is a snapshot passed to a ProgressFunc. Percent is local to the
// phase and rounded down.
type Progress struct {
	Phase     Phase `json:"phase"`
	Percent   int   `json:"percent"`
	Completed int   `json:"completed"`
	Total     int   `json:"total"`
}

// Overall maps the phase-local percentage onto one 0..100 scale: parsing
// covers 0..40, uploading 40..100.
func (p Progress) Overall() int {
	switch p.Phase {
	case PhaseParsing:
		return p.Percent * parseShare / 100
	case PhaseUploading:
		return parseShare + p.Percent*(100-parseShare)/100
	default:
		return 0
	}
}

// ProgressFunc receives progress updates.
type ProgressFunc func(Progress)

// progressReporter serialises callbacks and keeps Percent from going
// backwards within a phase.
type progressReporter struct {
	mu    sync.Mutex
	fn    ProgressFunc
	phase Phase
	last  int
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn, last: -1}
}

func percentOf(completed, total int) int {
	if total <= 0 {
		return 100
	}
	p := completed * 100 / total
	return max(0, min(p, 100))
}

// report emits an update. With every unset, an update that does not raise
// the percentage is dropped.
func (r *progressReporter) report(phase Phase, completed, total int, every bool) {
	if r == nil || r.fn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pct := percentOf(completed, total)
	if phase != r.phase {
		r.phase = phase
		r.last = -1
	}
	if pct < r.last || (pct == r.last && !every) {
		return
	}
	r.last = pct
	r.fn(Progress{Phase: phase, Percent: pct, Completed: completed, Total: total})
}
