package round

import (
	"sync"

	"github.com/rs/zerolog"
)

// ActivityGate suppresses round creation while nobody is watching. The hub
// reports subscriber-count transitions; the escalating scheduler consults the
// gate before starting a new round, so an empty casino sits in the idle phase
// instead of burning rounds.
type ActivityGate struct {
	mu     sync.Mutex
	active bool
	logger zerolog.Logger
}

// NewActivityGate creates a gate that starts inactive.
func NewActivityGate(logger zerolog.Logger) *ActivityGate {
	return &ActivityGate{
		logger: logger.With().Str("component", "activity_gate").Logger(),
	}
}

// SetSubscriberCount records the current subscriber count. Only the
// zero/non-zero transitions matter.
func (g *ActivityGate) SetSubscriberCount(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	active := n > 0
	if active == g.active {
		return
	}
	g.active = active
	if active {
		g.logger.Info().Int("subscribers", n).Msg("First subscriber connected, rounds resume")
	} else {
		g.logger.Info().Msg("Last subscriber disconnected, rounds pause")
	}
}

// Active reports whether at least one subscriber is connected.
func (g *ActivityGate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
