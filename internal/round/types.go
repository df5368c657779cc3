// Package round implements the live round engine: the phase state machines
// for the wheel and crash games, provably-fair outcome generation, bet
// bookkeeping, and the scheduler that drives a single current round under
// one lock.
package round

import "time"

// Kind selects which phase machine a scheduler runs.
type Kind string

const (
	// KindFixedPhase is the discrete betting/reveal/cleanup cycle (wheel).
	KindFixedPhase Kind = "fixed_phase"
	// KindEscalating is the continuously-growing multiplier game (crash).
	KindEscalating Kind = "escalating"
)

func (k Kind) String() string { return string(k) }

// Phase is a named stage in a round's lifecycle.
type Phase string

// Fixed-phase (wheel) phases.
const (
	PhaseBetting  Phase = "betting"
	PhaseSpinning Phase = "spinning"
	PhaseResults  Phase = "results"
	PhaseCleanup  Phase = "cleanup"
)

// Escalating (crash) phases.
const (
	PhaseIdle     Phase = "idle"
	PhaseWaiting  Phase = "waiting"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseCrashed  Phase = "crashed"
)

func (p Phase) String() string { return string(p) }

// InitiatorAutomatic is recorded as TriggeredBy when a deadline tick, rather
// than a participant, advanced the round. Kept distinct so fairness audits can
// tell timer-driven advances from manual ones.
const InitiatorAutomatic = "automatic"

// Outcome is the settled result of a round. Exactly one of the fields is
// meaningful depending on the round kind.
type Outcome struct {
	// Index is the winning slot for fixed-phase rounds.
	Index int `json:"index,omitempty"`
	// CrashPoint is the multiplier at which an escalating round busts.
	CrashPoint float64 `json:"crash_point,omitempty"`
}

// Commitment is the provably-fair envelope bound to a round. The secret stays
// private until the round settles; the hash is published before the round
// accepts its first bet.
type Commitment struct {
	secret     string
	Hash       string
	RevealedAt time.Time
}

// Secret returns the committed secret. Empty until Reveal is called.
func (c *Commitment) Secret() string {
	if c.RevealedAt.IsZero() {
		return ""
	}
	return c.secret
}

// Reveal marks the secret public as of now.
func (c *Commitment) Reveal(now time.Time) string {
	if c.RevealedAt.IsZero() {
		c.RevealedAt = now
	}
	return c.secret
}

// Round is the unit of game state. It is owned exclusively by a Scheduler and
// mutated only under the scheduler's lock.
type Round struct {
	ID            string
	Sequence      uint64
	Kind          Kind
	Phase         Phase
	StartedAt     time.Time
	PhaseDeadline time.Time
	Outcome       *Outcome
	TriggeredBy   string
	Commitment    *Commitment

	// Populated only while the phase permits registration.
	Participants map[string]struct{}
	Bets         map[string]struct{}
}

// Snapshot is a read-only copy of the current round, safe to hand to polling
// clients without touching the scheduler lock again.
type Snapshot struct {
	RoundID        string    `json:"round_id"`
	Sequence       uint64    `json:"sequence"`
	Kind           Kind      `json:"kind"`
	Phase          Phase     `json:"phase"`
	StartedAt      time.Time `json:"started_at"`
	PhaseDeadline  time.Time `json:"phase_deadline,omitempty"`
	CommitmentHash string    `json:"commitment_hash"`
	Outcome        *Outcome  `json:"outcome,omitempty"`
	Secret         string    `json:"secret,omitempty"`
	Multiplier     float64   `json:"multiplier,omitempty"`
	TriggeredBy    string    `json:"triggered_by,omitempty"`
	Participants   int       `json:"participants"`
	Bets           int       `json:"bets"`
}

// EventType identifies a broadcast event.
type EventType string

const (
	EventRoundStarted EventType = "round_started"
	EventPhaseChanged EventType = "phase_changed"
	EventMultiplier   EventType = "multiplier"
	EventRoundResults EventType = "round_results"
	EventRoundEnded   EventType = "round_ended"
	EventSnapshot     EventType = "snapshot"
)

func (et EventType) String() string { return string(et) }

// Event is produced once per transition and fanned out to subscribers.
type Event struct {
	Type           EventType `json:"type"`
	RoundID        string    `json:"round_id"`
	Sequence       uint64    `json:"sequence"`
	Kind           Kind      `json:"kind"`
	Phase          Phase     `json:"phase"`
	CommitmentHash string    `json:"commitment_hash,omitempty"`
	Outcome        *Outcome  `json:"outcome,omitempty"`
	Secret         string    `json:"secret,omitempty"`
	Multiplier     float64   `json:"multiplier,omitempty"`
	Deadline       time.Time `json:"deadline,omitempty"`
	TriggeredBy    string    `json:"triggered_by,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Broadcaster receives one event per transition, in transition order.
// The hub implements it; tests substitute a recorder.
type Broadcaster interface {
	Broadcast(Event)
}
