package round

import "sync"

// Registry is the in-memory association between rounds and the bets placed
// within them. It knows nothing about money; settlement is the ledger's job.
type Registry struct {
	mu     sync.RWMutex
	rounds map[string]*registryEntry
}

type registryEntry struct {
	bets         map[string]string // bet ID -> participant ID
	participants map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rounds: make(map[string]*registryEntry)}
}

// Register records a bet for a round. Duplicate bet IDs overwrite silently;
// the scheduler guards phase eligibility before calling.
func (r *Registry) Register(roundID, betID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rounds[roundID]
	if !ok {
		entry = &registryEntry{
			bets:         make(map[string]string),
			participants: make(map[string]struct{}),
		}
		r.rounds[roundID] = entry
	}
	entry.bets[betID] = participantID
	entry.participants[participantID] = struct{}{}
}

// Counts returns how many bets and distinct participants a round holds.
func (r *Registry) Counts(roundID string) (bets, participants int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.rounds[roundID]
	if !ok {
		return 0, 0
	}
	return len(entry.bets), len(entry.participants)
}

// Bets returns a copy of the bet ID -> participant ID mapping for a round.
// Used by the scheduler to hand bets to the ledger at settlement.
func (r *Registry) Bets(roundID string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.rounds[roundID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(entry.bets))
	for id, pid := range entry.bets {
		out[id] = pid
	}
	return out
}

// Drop forgets a round once it has been settled and archived.
func (r *Registry) Drop(roundID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rounds, roundID)
}
