package round

import (
	"context"
	"time"
)

// Bet identifies one wager inside a round. Stake and payout amounts live in
// the ledger; the engine only tracks identity.
type Bet struct {
	ID            string
	ParticipantID string
	RoundID       string
}

// Settler is the ledger collaborator. Called once per bet after a round
// settles; an error is reported but never rolls back the phase transition.
type Settler interface {
	Settle(ctx context.Context, outcome Outcome, bet Bet) (payout float64, err error)
}

// Record is the durable, append-only form of a completed round: everything a
// third party needs to replay and verify it.
type Record struct {
	RoundID        string    `json:"round_id"`
	Sequence       uint64    `json:"sequence"`
	Kind           Kind      `json:"kind"`
	CommitmentHash string    `json:"commitment_hash"`
	Secret         string    `json:"secret"`
	Outcome        Outcome   `json:"outcome"`
	Bets           int       `json:"bets"`
	Participants   int       `json:"participants"`
	TriggeredBy    string    `json:"triggered_by"`
	StartedAt      time.Time `json:"started_at"`
	SettledAt      time.Time `json:"settled_at"`
}

// Archiver persists completed rounds. A failed append must not block the next
// round from starting; the store package ships a retrying implementation.
type Archiver interface {
	Append(ctx context.Context, rec Record) error
}
