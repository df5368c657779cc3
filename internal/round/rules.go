package round

import "time"

// phaseRule describes how a phase exits. Both game kinds run on the same
// scheduler; only the rule table and the outcome strategy differ.
type phaseRule struct {
	next Phase

	// hold selects the phase duration from the config. Zero means the phase
	// has no deadline (the running phase is advanced by its step function).
	hold func(Config) time.Duration

	// deadline marks phases the tick loop advances once the hold elapses.
	deadline bool

	// manual marks phases a participant may advance early ("spin now").
	manual bool
}

func rulesFor(kind Kind) map[Phase]phaseRule {
	switch kind {
	case KindFixedPhase:
		return map[Phase]phaseRule{
			PhaseBetting:  {next: PhaseSpinning, hold: func(c Config) time.Duration { return c.BettingWindow }, deadline: true, manual: true},
			PhaseSpinning: {next: PhaseResults, hold: func(c Config) time.Duration { return c.RevealDelay }, deadline: true},
			PhaseResults:  {next: PhaseCleanup, hold: func(c Config) time.Duration { return c.ResultsHold }, deadline: true},
		}
	case KindEscalating:
		return map[Phase]phaseRule{
			PhaseWaiting:  {next: PhaseStarting, hold: func(c Config) time.Duration { return c.BettingWindow }, deadline: true, manual: true},
			PhaseStarting: {next: PhaseRunning, hold: func(c Config) time.Duration { return c.StartingDelay }, deadline: true},
			PhaseRunning:  {next: PhaseCrashed},
			PhaseCrashed:  {next: PhaseIdle, hold: func(c Config) time.Duration { return c.CrashedHold }, deadline: true},
		}
	default:
		return nil
	}
}

// bettingPhaseFor returns the single phase in which RegisterBet succeeds.
func bettingPhaseFor(kind Kind) Phase {
	if kind == KindEscalating {
		return PhaseWaiting
	}
	return PhaseBetting
}

// initialPhaseFor returns the phase a freshly created round enters.
func initialPhaseFor(kind Kind) Phase {
	return bettingPhaseFor(kind)
}
