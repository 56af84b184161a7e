package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEndpoint tracks how many requests are in flight and answers each
// chunk with one created row per record unless fail says otherwise.
type recordingEndpoint struct {
	delay time.Duration
	fail  func(req ChunkRequest) error

	inFlight atomic.Int32
	peak     atomic.Int32
	finished atomic.Int32

	mu              sync.Mutex
	seen            []int
	finishedAtStart map[int]int32
}

func (e *recordingEndpoint) SendChunk(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}

	e.mu.Lock()
	e.seen = append(e.seen, req.ChunkNumber)
	if e.finishedAtStart == nil {
		e.finishedAtStart = make(map[int]int32)
	}
	e.finishedAtStart[req.ChunkNumber] = e.finished.Load()
	e.mu.Unlock()

	defer e.finished.Add(1)

	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.fail != nil {
		if err := e.fail(req); err != nil {
			return ChunkResult{}, err
		}
	}
	return ChunkResult{Created: len(req.Records)}, nil
}

func TestScheduler_InFlightBound(t *testing.T) {
	for _, k := range []int{1, 2, 3, 5} {
		for _, n := range []int{1, 4, 7, 12} {
			ep := &recordingEndpoint{delay: 2 * time.Millisecond}
			chunks, err := Plan(makeRecords(n*10), 10)
			require.NoError(t, err)

			s := &Scheduler{Endpoint: ep, MaxConcurrent: k}
			outcomes, err := s.Upload(context.Background(), chunks, nil)
			require.NoError(t, err)

			require.Len(t, outcomes, n)
			assert.LessOrEqual(t, int(ep.peak.Load()), k, "k=%d n=%d", k, n)
			assert.Len(t, ep.seen, n)
		}
	}
}

func TestScheduler_BatchesSettleBeforeNext(t *testing.T) {
	ep := &recordingEndpoint{delay: 5 * time.Millisecond}
	chunks, err := Plan(makeRecords(1000), 250)
	require.NoError(t, err)

	s := &Scheduler{Endpoint: ep, MaxConcurrent: 3}
	_, err = s.Upload(context.Background(), chunks, nil)
	require.NoError(t, err)

	for _, c := range []int{1, 2, 3} {
		assert.Less(t, ep.finishedAtStart[c], int32(3), "chunk %d belongs to the first batch", c)
	}
	assert.Equal(t, int32(3), ep.finishedAtStart[4])
}

func TestScheduler_FailureDoesNotAbort(t *testing.T) {
	ep := &recordingEndpoint{fail: func(req ChunkRequest) error {
		if req.ChunkNumber == 2 {
			return errors.New("connection reset by peer")
		}
		return nil
	}}
	chunks, err := Plan(makeRecords(50), 10)
	require.NoError(t, err)

	s := &Scheduler{Endpoint: ep, MaxConcurrent: 2}
	outcomes, err := s.Upload(context.Background(), chunks, nil)
	require.NoError(t, err)

	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.Equal(t, i+1, o.ChunkNumber)
		if o.ChunkNumber == 2 {
			require.NotNil(t, o.Err)
			assert.Equal(t, ChunkNetwork, o.Err.Kind)
			assert.Equal(t, 2, o.Err.ChunkNumber)
			continue
		}
		assert.Nil(t, o.Err)
		assert.Equal(t, 10, o.Result.Created)
	}
}

func TestScheduler_ProgressOncePerChunk(t *testing.T) {
	ep := &recordingEndpoint{delay: time.Millisecond}
	chunks, err := Plan(makeRecords(70), 10)
	require.NoError(t, err)

	var (
		calls  []int
		active atomic.Int32
	)
	s := &Scheduler{Endpoint: ep, MaxConcurrent: 3}
	_, err = s.Upload(context.Background(), chunks, func(completed, total int) {
		assert.Equal(t, int32(1), active.Add(1), "progress callbacks overlap")
		defer active.Add(-1)
		assert.Equal(t, 7, total)
		calls = append(calls, completed)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, calls)
}

func TestScheduler_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep := &recordingEndpoint{fail: func(req ChunkRequest) error {
		if req.ChunkNumber == 1 {
			cancel()
		}
		return nil
	}}
	chunks, err := Plan(makeRecords(40), 10)
	require.NoError(t, err)

	s := &Scheduler{Endpoint: ep, MaxConcurrent: 2}
	outcomes, err := s.Upload(ctx, chunks, nil)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, outcomes, 4)
	assert.Nil(t, outcomes[0].Err)
	assert.Nil(t, outcomes[1].Err)
	for _, o := range outcomes[2:] {
		require.NotNil(t, o.Err)
		assert.Equal(t, ChunkCancelled, o.Err.Kind)
	}
	assert.ElementsMatch(t, []int{1, 2}, ep.seen)
}

func TestScheduler_ChunkErrorPassThrough(t *testing.T) {
	want := &ChunkError{Kind: ChunkNonJSON, StatusCode: 504, Message: "Server returned HTML instead of JSON"}
	s := &Scheduler{
		Endpoint: EndpointFunc(func(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
			return ChunkResult{}, want
		}),
	}
	chunks, err := Plan(makeRecords(1), 1)
	require.NoError(t, err)

	outcomes, err := s.Upload(context.Background(), chunks, nil)
	require.NoError(t, err)
	assert.Same(t, want, outcomes[0].Err)
	assert.Equal(t, 1, outcomes[0].Err.ChunkNumber)
}
