package store

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

func TestMemoryArchive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, round.Record{RoundID: "r-1", Sequence: 1}))
	require.NoError(t, m.Append(ctx, round.Record{RoundID: "r-2", Sequence: 2}))

	records := m.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "r-1", records[0].RoundID)
	assert.Equal(t, "r-2", records[1].RoundID)
}

// flakyArchive fails the first failures appends, then succeeds.
type flakyArchive struct {
	failures int32
	appended chan round.Record
}

func (a *flakyArchive) Append(_ context.Context, rec round.Record) error {
	if atomic.AddInt32(&a.failures, -1) >= 0 {
		return errors.New("archive unavailable")
	}
	a.appended <- rec
	return nil
}

func TestRetryWriterDeliversImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := &flakyArchive{appended: make(chan round.Record, 1)}
	w := NewRetryWriter(inner, quartz.NewMock(t), zerolog.New(io.Discard))
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, w.Append(ctx, round.Record{RoundID: "r-1"}))

	select {
	case rec := <-inner.appended:
		assert.Equal(t, "r-1", rec.RoundID)
	case <-time.After(time.Second):
		t.Fatal("record never reached the archive")
	}
}

func TestRetryWriterRetriesWithBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mClock := quartz.NewMock(t)
	inner := &flakyArchive{failures: 2, appended: make(chan round.Record, 1)}
	w := NewRetryWriter(inner, mClock, zerolog.New(io.Discard))
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, w.Append(ctx, round.Record{RoundID: "r-1"}))

	// The worker sleeps on the mock clock between attempts; keep nudging time
	// forward until the record lands.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case rec := <-inner.appended:
			assert.Equal(t, "r-1", rec.RoundID)
			assert.Equal(t, int32(-1), atomic.LoadInt32(&inner.failures))
			return
		case <-deadline:
			t.Fatal("record never reached the archive")
		default:
			mClock.Advance(retryInitialDelay).MustWait(ctx)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestRetryWriterShedsOldestWhenFull(t *testing.T) {
	ctx := context.Background()

	// No worker running: the queue fills up and the oldest records are shed.
	inner := &flakyArchive{appended: make(chan round.Record, retryQueueDepth+16)}
	w := NewRetryWriter(inner, quartz.NewMock(t), zerolog.New(io.Discard))

	for i := 0; i < retryQueueDepth+10; i++ {
		require.NoError(t, w.Append(ctx, round.Record{Sequence: uint64(i)}))
	}

	// Drain directly; the first records must be the shed survivors.
	first := <-w.queue
	assert.Equal(t, uint64(10), first.Sequence)
	assert.Len(t, w.queue, retryQueueDepth-1)
}
