package round

import "errors"

var (
	// ErrInvalidPhase is returned when an operation is attempted outside the
	// phase that permits it, e.g. a bet after the betting window closed.
	ErrInvalidPhase = errors.New("operation not permitted in current phase")

	// ErrAlreadyAdvancing is returned to the loser of a race between two
	// advance attempts for the same phase. Callers treat it as a no-op.
	ErrAlreadyAdvancing = errors.New("round is already advancing")

	// ErrRoundNotFound is returned when a caller references a round that is
	// no longer (or never was) the scheduler's current round.
	ErrRoundNotFound = errors.New("round not found")

	// ErrNoRound is returned when the scheduler has no current round, e.g.
	// an escalating scheduler sitting idle with no subscribers.
	ErrNoRound = errors.New("no round in progress")
)
