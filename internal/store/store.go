// Package store persists completed rounds as an append-only archive for
// audit and replay. The Postgres implementation backs production; the memory
// implementation backs tests and standalone mode. The retry writer wraps
// either so a slow or failing archive never blocks the scheduler.
package store

import (
	"context"
	"sync"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

// Memory is an in-memory archive.
type Memory struct {
	mu      sync.Mutex
	records []round.Record
}

// NewMemory creates an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{}
}

// Append stores the record.
func (m *Memory) Append(_ context.Context, rec round.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything archived so far.
func (m *Memory) Records() []round.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]round.Record, len(m.records))
	copy(out, m.records)
	return out
}
