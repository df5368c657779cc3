package store

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

const (
	retryQueueDepth   = 256
	retryInitialDelay = 500 * time.Millisecond
	retryMaxDelay     = 30 * time.Second
	retryMaxAttempts  = 8
)

// RetryWriter decouples the scheduler from archive latency: Append only
// enqueues, and a background worker writes with exponential backoff. A full
// queue drops the oldest pending record rather than ever blocking a caller.
type RetryWriter struct {
	inner  round.Archiver
	clock  quartz.Clock
	logger zerolog.Logger
	queue  chan round.Record
}

// NewRetryWriter wraps an archive. Call Run to start the worker.
func NewRetryWriter(inner round.Archiver, clock quartz.Clock, logger zerolog.Logger) *RetryWriter {
	return &RetryWriter{
		inner:  inner,
		clock:  clock,
		logger: logger.With().Str("component", "archive_writer").Logger(),
		queue:  make(chan round.Record, retryQueueDepth),
	}
}

// Append enqueues a record and returns immediately.
func (w *RetryWriter) Append(_ context.Context, rec round.Record) error {
	for {
		select {
		case w.queue <- rec:
			return nil
		default:
		}
		// Queue full: shed the oldest record so the newest always lands.
		select {
		case dropped := <-w.queue:
			w.logger.Error().
				Str("round_id", dropped.RoundID).
				Msg("Archive queue full, dropping oldest pending round")
		default:
		}
	}
}

// Run drains the queue until ctx is cancelled. Each record is retried with
// exponential backoff; a record that exhausts its attempts is logged and
// abandoned so the queue keeps moving.
func (w *RetryWriter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-w.queue:
			w.writeWithRetry(ctx, rec)
		}
	}
}

func (w *RetryWriter) writeWithRetry(ctx context.Context, rec round.Record) {
	delay := retryInitialDelay

	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		err := w.inner.Append(ctx, rec)
		if err == nil {
			if attempt > 1 {
				w.logger.Info().
					Str("round_id", rec.RoundID).
					Int("attempt", attempt).
					Msg("Round archived after retry")
			}
			return
		}

		w.logger.Warn().Err(err).
			Str("round_id", rec.RoundID).
			Int("attempt", attempt).
			Dur("next_retry", delay).
			Msg("Archive append failed")

		timer := w.clock.NewTimer(delay, "archive_retry")
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	w.logger.Error().
		Str("round_id", rec.RoundID).
		Int("attempts", retryMaxAttempts).
		Msg("Giving up archiving round")
}
