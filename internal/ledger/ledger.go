// Package ledger defines the wallet collaborator interface the round engine
// settles against. Real payout math lives in the wallet service; the
// in-memory implementation here exists so the engine runs standalone and the
// settlement path is exercised in tests.
package ledger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

// Ledger settles one bet against a round outcome. Implementations must
// tolerate being called concurrently.
type Ledger interface {
	Settle(ctx context.Context, outcome round.Outcome, bet round.Bet) (payout float64, err error)
}

// Settlement is one recorded settlement in the memory ledger.
type Settlement struct {
	Bet     round.Bet
	Outcome round.Outcome
	Payout  float64
}

// Memory is a bookkeeping-only ledger: it records every settlement and
// computes a placeholder payout. Used in standalone mode and in tests.
type Memory struct {
	logger zerolog.Logger

	mu          sync.Mutex
	settlements []Settlement
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(logger zerolog.Logger) *Memory {
	return &Memory{logger: logger.With().Str("component", "ledger").Logger()}
}

// Settle records the settlement. The placeholder payout is the crash point
// for escalating rounds and 1.0 for wheel rounds; real multipliers belong to
// the wallet service.
func (m *Memory) Settle(_ context.Context, outcome round.Outcome, bet round.Bet) (float64, error) {
	payout := 1.0
	if outcome.CrashPoint > 0 {
		payout = outcome.CrashPoint
	}

	m.mu.Lock()
	m.settlements = append(m.settlements, Settlement{Bet: bet, Outcome: outcome, Payout: payout})
	m.mu.Unlock()

	m.logger.Debug().
		Str("round_id", bet.RoundID).
		Str("bet_id", bet.ID).
		Float64("payout", payout).
		Msg("Bet settled")
	return payout, nil
}

// Settlements returns a copy of everything settled so far.
func (m *Memory) Settlements() []Settlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Settlement, len(m.settlements))
	copy(out, m.settlements)
	return out
}
