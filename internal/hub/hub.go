// Package hub fans broadcast events out to live subscribers. Every
// subscriber owns a bounded channel; a subscriber that stops draining is
// evicted during the broadcast pass rather than ever blocking the producer.
package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

// DefaultCapacity is the per-subscriber channel depth. Deep enough to absorb
// a burst of multiplier ticks, shallow enough that a dead consumer is caught
// within a round or two.
const DefaultCapacity = 64

// ErrDuplicateSubscriber is returned when a subscriber ID is already taken.
var ErrDuplicateSubscriber = errors.New("subscriber id already registered")

// SnapshotFunc produces the current-round snapshot event delivered to every
// new subscriber so it doesn't wait for the next transition.
type SnapshotFunc func() round.Event

// CountFunc is notified after every subscriber-count change. The activity
// gate hangs off this.
type CountFunc func(n int)

type subscriber struct {
	id          string
	ch          chan round.Event
	connectedAt time.Time
}

// Hub is the fan-out broadcaster for one game.
type Hub struct {
	logger   zerolog.Logger
	clock    quartz.Clock
	capacity int
	snapshot SnapshotFunc
	onCount  CountFunc

	mu   sync.RWMutex
	subs map[string]*subscriber
}

// Option customizes a Hub.
type Option func(*Hub)

// WithCapacity sets the per-subscriber channel depth.
func WithCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithSnapshot sets the snapshot delivered on subscribe.
func WithSnapshot(fn SnapshotFunc) Option {
	return func(h *Hub) { h.snapshot = fn }
}

// WithCountFunc sets the subscriber-count observer.
func WithCountFunc(fn CountFunc) Option {
	return func(h *Hub) { h.onCount = fn }
}

// New creates an empty hub.
func New(logger zerolog.Logger, clock quartz.Clock, opts ...Option) *Hub {
	h := &Hub{
		logger:   logger.With().Str("component", "hub").Logger(),
		clock:    clock,
		capacity: DefaultCapacity,
		subs:     make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a listener and returns its delivery channel. The
// channel is closed by the hub on Unsubscribe or eviction; receivers must
// treat a closed channel as end-of-stream. The current-round snapshot is
// already buffered when Subscribe returns.
func (h *Hub) Subscribe(id string) (<-chan round.Event, error) {
	h.mu.Lock()
	if _, ok := h.subs[id]; ok {
		h.mu.Unlock()
		return nil, ErrDuplicateSubscriber
	}

	sub := &subscriber{
		id:          id,
		ch:          make(chan round.Event, h.capacity),
		connectedAt: h.clock.Now(),
	}
	h.subs[id] = sub
	n := len(h.subs)
	// Deliver the count before releasing the lock so racing membership
	// changes report in the order they happened; the gate only takes its own
	// mutex and never calls back into the hub.
	h.notifyCount(n)
	h.mu.Unlock()

	// Snapshot is fetched outside the hub lock: the snapshot source takes the
	// scheduler lock, and the scheduler broadcasts into the hub, so nesting
	// the two the other way here would invert the lock order. A transition
	// racing this window lands in the channel ahead of the newer snapshot.
	if h.snapshot != nil {
		ev := h.snapshot()
		// Re-check membership under the read lock: eviction closes the
		// channel under the write lock, so holding the read lock makes the
		// send safe against a racing close.
		h.mu.RLock()
		if _, ok := h.subs[id]; ok {
			select {
			case sub.ch <- ev:
			default:
			}
		}
		h.mu.RUnlock()
	}

	h.logger.Info().Str("subscriber", id).Int("total", n).Msg("Subscriber connected")
	return sub.ch, nil
}

// Unsubscribe removes a listener and closes its channel. Safe to call for an
// already-removed id.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.ch)
	}
	n := len(h.subs)
	if ok {
		h.notifyCount(n)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.logger.Info().Str("subscriber", id).Int("total", n).Msg("Subscriber disconnected")
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast delivers an event to every subscriber without blocking. Any
// subscriber whose channel is full is evicted in the same pass and never
// retried, so a single stuck consumer costs one map delete, not a stall.
func (h *Hub) Broadcast(ev round.Event) {
	var evicted []string

	h.mu.RLock()
	for id, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			evicted = append(evicted, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range evicted {
		h.logger.Warn().
			Str("subscriber", id).
			Str("event", ev.Type.String()).
			Msg("Subscriber channel full, evicting")
		h.Unsubscribe(id)
	}
}

func (h *Hub) notifyCount(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}
