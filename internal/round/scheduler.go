package round

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/wheelhouse-gg/wheelhouse/internal/roundid"
)

// Config holds the timing and outcome parameters for one scheduler.
type Config struct {
	Game         string // name used in logs and routes
	Kind         Kind
	TickInterval time.Duration

	// Phase durations.
	BettingWindow time.Duration
	RevealDelay   time.Duration // wheel: spin animation hold
	ResultsHold   time.Duration // wheel: results display hold
	StartingDelay time.Duration // crash: countdown before running
	CrashedHold   time.Duration // crash: bust display hold

	// Outcome parameters.
	Slots         int     // wheel
	GrowthFloor   float64 // crash: multiplier at tick zero
	GrowthRate    float64 // crash: fractional growth per tick
	HouseEdge     float64 // crash
	MaxCrashPoint float64 // crash
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 250 * time.Millisecond
	}
	if c.BettingWindow <= 0 {
		c.BettingWindow = 15 * time.Second
	}
	if c.RevealDelay <= 0 {
		c.RevealDelay = 4 * time.Second
	}
	if c.ResultsHold <= 0 {
		c.ResultsHold = 5 * time.Second
	}
	if c.StartingDelay <= 0 {
		c.StartingDelay = 3 * time.Second
	}
	if c.CrashedHold <= 0 {
		c.CrashedHold = 4 * time.Second
	}
	if c.Slots <= 0 {
		c.Slots = 37
	}
	if c.GrowthFloor < 1 {
		c.GrowthFloor = 1.0
	}
	if c.GrowthRate <= 0 {
		c.GrowthRate = 0.01
	}
	if c.HouseEdge <= 0 || c.HouseEdge >= 1 {
		c.HouseEdge = 0.03
	}
	if c.MaxCrashPoint < 1 {
		c.MaxCrashPoint = 1000
	}
	return c
}

// strategyFor builds the outcome strategy matching the config's kind.
func strategyFor(cfg Config) Strategy {
	if cfg.Kind == KindEscalating {
		return CrashStrategy{HouseEdge: cfg.HouseEdge, MaxPoint: cfg.MaxCrashPoint}
	}
	return WheelStrategy{Slots: cfg.Slots}
}

// Scheduler owns the single current round for one game and drives it through
// its phase graph. The two advancement sources, the periodic tick and
// external triggers, serialize on one mutex held only for the duration of a
// state transition, never across I/O.
type Scheduler struct {
	logger      zerolog.Logger
	clock       quartz.Clock
	cfg         Config
	rules       map[Phase]phaseRule
	betPhase    Phase
	strategy    Strategy
	broadcaster Broadcaster
	registry    *Registry
	gate        *ActivityGate
	archiver    Archiver
	ledger      Settler

	mu         sync.Mutex
	current    *Round
	seq        uint64
	runTicks   uint64
	multiplier float64
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithRegistry replaces the internal bet registry.
func WithRegistry(r *Registry) Option {
	return func(s *Scheduler) { s.registry = r }
}

// WithArchiver sets the round archive collaborator.
func WithArchiver(a Archiver) Option {
	return func(s *Scheduler) { s.archiver = a }
}

// WithLedger sets the ledger collaborator.
func WithLedger(l Settler) Option {
	return func(s *Scheduler) { s.ledger = l }
}

// WithStrategy overrides the outcome strategy. Tests use it to pin outcomes.
func WithStrategy(st Strategy) Option {
	return func(s *Scheduler) { s.strategy = st }
}

// NewScheduler builds a scheduler for one game. Escalating schedulers get an
// activity gate automatically; wire it to the hub via Gate().
func NewScheduler(logger zerolog.Logger, clock quartz.Clock, cfg Config, bc Broadcaster, opts ...Option) *Scheduler {
	cfg = cfg.withDefaults()

	s := &Scheduler{
		logger:      logger.With().Str("component", "scheduler").Str("game", cfg.Game).Logger(),
		clock:       clock,
		cfg:         cfg,
		rules:       rulesFor(cfg.Kind),
		betPhase:    bettingPhaseFor(cfg.Kind),
		strategy:    strategyFor(cfg),
		broadcaster: bc,
		registry:    NewRegistry(),
	}
	if cfg.Kind == KindEscalating {
		s.gate = NewActivityGate(logger)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Gate returns the activity gate, or nil for fixed-phase schedulers.
func (s *Scheduler) Gate() *ActivityGate { return s.gate }

// Registry returns the bet registry this scheduler records into.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Config returns the scheduler's effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Run creates the first round (for fixed-phase games) and drives the tick
// loop until ctx is cancelled. Cancellation stops the ticks without touching
// in-flight round state.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.cfg.Kind == KindFixedPhase {
		s.startRoundLocked()
	} else if s.gate.Active() {
		s.startRoundLocked()
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("kind", s.cfg.Kind.String()).
		Dur("tick_interval", s.cfg.TickInterval).
		Dur("betting_window", s.cfg.BettingWindow).
		Msg("Scheduler running")

	waiter := s.clock.TickerFunc(ctx, s.cfg.TickInterval, func() error {
		s.Tick()
		return nil
	}, "scheduler", s.cfg.Game)

	if err := waiter.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Tick advances the current round if its phase deadline has elapsed, steps
// the multiplier for a running escalating round, and starts a fresh round
// when the activity gate opens. Called by the tick loop; exported so tests
// can drive the machine directly.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil {
		// Fixed-phase games always restart; escalating games only while the
		// gate reports subscribers.
		if s.gate == nil || s.gate.Active() {
			s.startRoundLocked()
		}
		return
	}

	if r.Phase == PhaseRunning {
		s.stepRunningLocked()
		return
	}

	rule, ok := s.rules[r.Phase]
	if !ok || !rule.deadline {
		return
	}
	if !s.clock.Now().Before(r.PhaseDeadline) {
		s.advanceLocked(InitiatorAutomatic)
	}
}

// TriggerAdvance moves the current round out of its betting phase
// immediately, crediting initiator, and returns the ID of the round acted
// on. The loser of a race against another advance gets ErrAlreadyAdvancing,
// no state changes, and the ID of the round that is already moving.
func (s *Scheduler) TriggerAdvance(initiator string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil {
		return "", ErrNoRound
	}

	rule := s.rules[r.Phase]
	if !rule.manual {
		// A round one phase past betting means another advance just won.
		if r.Phase == s.rules[s.betPhase].next {
			return r.ID, ErrAlreadyAdvancing
		}
		return "", ErrInvalidPhase
	}

	s.advanceLocked(initiator)
	return r.ID, nil
}

// RegisterBet records a bet against the current round. Accepted only while
// the round is in its betting phase.
func (s *Scheduler) RegisterBet(roundID, participantID, betID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil {
		return ErrNoRound
	}
	if r.ID != roundID {
		return ErrRoundNotFound
	}
	if r.Phase != s.betPhase {
		return ErrInvalidPhase
	}

	r.Participants[participantID] = struct{}{}
	r.Bets[betID] = struct{}{}
	s.registry.Register(roundID, betID, participantID)
	return nil
}

// Snapshot returns a read-only copy of the current round for polling clients.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SnapshotEvent packages the snapshot as the event delivered to a subscriber
// immediately on subscribe.
func (s *Scheduler) SnapshotEvent() Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	return Event{
		Type:           EventSnapshot,
		RoundID:        snap.RoundID,
		Sequence:       snap.Sequence,
		Kind:           snap.Kind,
		Phase:          snap.Phase,
		CommitmentHash: snap.CommitmentHash,
		Outcome:        snap.Outcome,
		Secret:         snap.Secret,
		Multiplier:     snap.Multiplier,
		Deadline:       snap.PhaseDeadline,
		TriggeredBy:    snap.TriggeredBy,
		Timestamp:      s.clock.Now(),
	}
}

func (s *Scheduler) snapshotLocked() Snapshot {
	r := s.current
	if r == nil {
		return Snapshot{Kind: s.cfg.Kind, Phase: PhaseIdle}
	}

	snap := Snapshot{
		RoundID:        r.ID,
		Sequence:       r.Sequence,
		Kind:           r.Kind,
		Phase:          r.Phase,
		StartedAt:      r.StartedAt,
		PhaseDeadline:  r.PhaseDeadline,
		CommitmentHash: r.Commitment.Hash,
		Secret:         r.Commitment.Secret(),
		TriggeredBy:    r.TriggeredBy,
		Participants:   len(r.Participants),
		Bets:           len(r.Bets),
	}
	if !r.Commitment.RevealedAt.IsZero() {
		snap.Outcome = r.Outcome
	}
	if r.Phase == PhaseRunning || r.Phase == PhaseCrashed {
		snap.Multiplier = roundCents(s.multiplier)
	}
	return snap
}

// startRoundLocked creates the next round in its betting phase. The
// commitment hash is generated here, before any bet can possibly be
// accepted, and published in the round_started event.
func (s *Scheduler) startRoundLocked() {
	commitment, err := s.strategy.Commit()
	if err != nil {
		// crypto/rand failure. The previous round, if any, is already
		// finalized, so drop it and let the next tick retry a fresh start;
		// holding onto it would replay its terminal phase.
		s.current = nil
		s.logger.Error().Err(err).Msg("Failed to generate commitment, round delayed")
		return
	}

	now := s.clock.Now()
	s.seq++
	r := &Round{
		ID:            roundid.New(),
		Sequence:      s.seq,
		Kind:          s.cfg.Kind,
		Phase:         initialPhaseFor(s.cfg.Kind),
		StartedAt:     now,
		PhaseDeadline: now.Add(s.cfg.BettingWindow),
		Commitment:    commitment,
		Participants:  make(map[string]struct{}),
		Bets:          make(map[string]struct{}),
	}
	s.current = r
	s.runTicks = 0
	s.multiplier = 0

	s.logger.Info().
		Str("round_id", r.ID).
		Uint64("sequence", r.Sequence).
		Str("commitment_hash", commitment.Hash).
		Time("betting_deadline", r.PhaseDeadline).
		Msg("Round started")

	ev := s.eventLocked(EventRoundStarted)
	ev.Deadline = r.PhaseDeadline
	s.broadcaster.Broadcast(ev)
}

// advanceLocked performs the transition out of the current phase. The
// broadcast happens after the mutation is fully committed and still under the
// lock, so no subscriber can observe transitions out of order.
func (s *Scheduler) advanceLocked(initiator string) {
	r := s.current
	now := s.clock.Now()

	switch r.Phase {
	case PhaseBetting:
		r.TriggeredBy = initiator
		out := s.strategy.Settle(r.Commitment.secret, PublicInputs{RoundID: r.ID, Sequence: r.Sequence})
		r.Outcome = &out
		s.enterPhaseLocked(PhaseSpinning, now)
		s.scheduleDeferredAdvance(r.Sequence, PhaseSpinning, s.cfg.RevealDelay)

		s.logger.Info().
			Str("round_id", r.ID).
			Str("initiator", initiator).
			Int("bets", len(r.Bets)).
			Msg("Betting closed, wheel spinning")

		ev := s.eventLocked(EventPhaseChanged)
		ev.Deadline = r.PhaseDeadline
		ev.TriggeredBy = initiator
		s.broadcaster.Broadcast(ev)

	case PhaseSpinning:
		r.Commitment.Reveal(now)
		s.enterPhaseLocked(PhaseResults, now)

		s.logger.Info().
			Str("round_id", r.ID).
			Int("outcome", r.Outcome.Index).
			Msg("Wheel landed")

		ev := s.eventLocked(EventRoundResults)
		ev.Outcome = r.Outcome
		ev.Secret = r.Commitment.Secret()
		ev.Deadline = r.PhaseDeadline
		s.broadcaster.Broadcast(ev)

	case PhaseResults:
		r.Phase = PhaseCleanup
		r.PhaseDeadline = time.Time{}
		s.broadcaster.Broadcast(s.eventLocked(EventRoundEnded))
		s.finalizeLocked(now)
		s.startRoundLocked()

	case PhaseWaiting:
		r.TriggeredBy = initiator
		out := s.strategy.Settle(r.Commitment.secret, PublicInputs{RoundID: r.ID, Sequence: r.Sequence})
		r.Outcome = &out
		s.enterPhaseLocked(PhaseStarting, now)

		s.logger.Info().
			Str("round_id", r.ID).
			Str("initiator", initiator).
			Int("bets", len(r.Bets)).
			Msg("Betting closed, launch countdown")

		ev := s.eventLocked(EventPhaseChanged)
		ev.Deadline = r.PhaseDeadline
		ev.TriggeredBy = initiator
		s.broadcaster.Broadcast(ev)

	case PhaseStarting:
		r.Phase = PhaseRunning
		r.PhaseDeadline = time.Time{} // advanced by the step function, not a deadline
		s.runTicks = 0
		s.multiplier = s.cfg.GrowthFloor

		ev := s.eventLocked(EventPhaseChanged)
		ev.Multiplier = roundCents(s.multiplier)
		s.broadcaster.Broadcast(ev)

	case PhaseCrashed:
		s.broadcaster.Broadcast(s.eventLocked(EventRoundEnded))
		s.finalizeLocked(now)
		if s.gate != nil && !s.gate.Active() {
			s.current = nil
			s.logger.Info().Msg("No subscribers connected, going idle")
			return
		}
		s.startRoundLocked()
	}
}

// stepRunningLocked advances the multiplier one tick and crashes the round on
// the first tick where it reaches the pre-generated crash point. No further
// multiplier events follow the crash.
func (s *Scheduler) stepRunningLocked() {
	r := s.current
	now := s.clock.Now()

	s.runTicks++
	m := GrowthAt(s.cfg.GrowthFloor, s.cfg.GrowthRate, s.runTicks)

	if m >= r.Outcome.CrashPoint {
		s.multiplier = r.Outcome.CrashPoint
		r.Commitment.Reveal(now)
		r.Phase = PhaseCrashed
		r.PhaseDeadline = now.Add(s.cfg.CrashedHold)

		s.logger.Info().
			Str("round_id", r.ID).
			Float64("crash_point", r.Outcome.CrashPoint).
			Uint64("ticks", s.runTicks).
			Msg("Round crashed")

		ev := s.eventLocked(EventRoundResults)
		ev.Outcome = r.Outcome
		ev.Secret = r.Commitment.Secret()
		ev.Multiplier = r.Outcome.CrashPoint
		ev.Deadline = r.PhaseDeadline
		s.broadcaster.Broadcast(ev)
		return
	}

	s.multiplier = m
	ev := s.eventLocked(EventMultiplier)
	ev.Multiplier = roundCents(m)
	s.broadcaster.Broadcast(ev)
}

// enterPhaseLocked moves the current round into phase and stamps the next
// deadline from the rule table.
func (s *Scheduler) enterPhaseLocked(phase Phase, now time.Time) {
	r := s.current
	r.Phase = phase
	if rule, ok := s.rules[phase]; ok && rule.hold != nil {
		r.PhaseDeadline = now.Add(rule.hold(s.cfg))
	} else {
		r.PhaseDeadline = time.Time{}
	}
}

// scheduleDeferredAdvance arms a one-shot transition as an independent unit
// of work, so the lock is never held across the delay. The sequence and phase
// guard makes it a no-op if a tick or trigger advanced the round first.
func (s *Scheduler) scheduleDeferredAdvance(sequence uint64, phase Phase, delay time.Duration) {
	s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		r := s.current
		if r == nil || r.Sequence != sequence || r.Phase != phase {
			return
		}
		s.advanceLocked(InitiatorAutomatic)
	}, "deferred", s.cfg.Game, string(phase))
}

// finalizeLocked snapshots the finished round and hands settlement and
// archiving to a detached goroutine. The lock is released before any I/O.
func (s *Scheduler) finalizeLocked(now time.Time) {
	r := s.current
	r.Commitment.Reveal(now)

	rec := Record{
		RoundID:        r.ID,
		Sequence:       r.Sequence,
		Kind:           r.Kind,
		CommitmentHash: r.Commitment.Hash,
		Secret:         r.Commitment.Secret(),
		Bets:           len(r.Bets),
		Participants:   len(r.Participants),
		TriggeredBy:    r.TriggeredBy,
		StartedAt:      r.StartedAt,
		SettledAt:      now,
	}
	if r.Outcome != nil {
		rec.Outcome = *r.Outcome
	}

	bets := s.registry.Bets(r.ID)
	go s.settleAndArchive(rec, bets)
}

// settleAndArchive invokes the ledger once per bet, appends the round record,
// and drops the registry entry. Failures here are reported, never propagated
// back into the phase machine.
func (s *Scheduler) settleAndArchive(rec Record, bets map[string]string) {
	ctx := context.Background()

	if s.ledger != nil {
		for betID, participantID := range bets {
			bet := Bet{ID: betID, ParticipantID: participantID, RoundID: rec.RoundID}
			if _, err := s.ledger.Settle(ctx, rec.Outcome, bet); err != nil {
				s.logger.Error().Err(err).
					Str("round_id", rec.RoundID).
					Str("bet_id", betID).
					Msg("Ledger settlement failed")
			}
		}
	}

	if s.archiver != nil {
		if err := s.archiver.Append(ctx, rec); err != nil {
			s.logger.Error().Err(err).
				Str("round_id", rec.RoundID).
				Msg("Round archive append failed")
		}
	}

	s.registry.Drop(rec.RoundID)
}

func (s *Scheduler) eventLocked(t EventType) Event {
	r := s.current
	return Event{
		Type:           t,
		RoundID:        r.ID,
		Sequence:       r.Sequence,
		Kind:           r.Kind,
		Phase:          r.Phase,
		CommitmentHash: r.Commitment.Hash,
		Timestamp:      s.clock.Now(),
	}
}

func roundCents(v float64) float64 {
	return math.Floor(v*100) / 100
}
