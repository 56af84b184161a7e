package schools

// limiter.go bounds how many chunks the server processes at once.
//
// Each chunk holds a slot for the duration of its upserts. When all slots are
// taken, a request waits up to maxWait before failing with ErrTooManyChunks,
// which the client may retry. Drain blocks shutdown until in-flight chunks
// finish.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyChunks is returned when no slot frees up within the wait time.
var ErrTooManyChunks = errors.New("too many concurrent uploads, please try again later")

const (
	DefaultMaxConcurrentChunks = 5
	DefaultMaxWait             = 30 * time.Second
)

// Limiter is a counting semaphore over chunk processing.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.RWMutex
	active  int
	handled int64
	refused int64
}

// NewLimiter allows at most maxConcurrent chunks at once.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentChunks
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most the configured time. Callers must
// Release after a nil return.
func (l *Limiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.handled++
		l.mu.Unlock()
		return nil
	case <-timer.C:
		l.mu.Lock()
		l.refused++
		l.mu.Unlock()
		return ErrTooManyChunks
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.slots
}

// Drain blocks until no chunk is in flight or ctx is done.
func (l *Limiter) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.Status().Active == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active        int   `json:"active"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"max_concurrent"`
	Handled       int64 `json:"handled"`
	Refused       int64 `json:"refused"`
}

func (l *Limiter) Status() LimiterStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LimiterStatus{
		Active:        l.active,
		Available:     cap(l.slots) - l.active,
		MaxConcurrent: cap(l.slots),
		Handled:       l.handled,
		Refused:       l.refused,
	}
}
