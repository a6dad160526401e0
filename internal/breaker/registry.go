package breaker

import "sync"

// Registry is a concurrent get-or-create map of per-broker-id breakers,
// shaped after the teacher's threshold-map-plus-mutex pattern so that one
// broker tripping its breaker never blocks lookups for any other broker.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty Registry. Every breaker it creates on demand
// uses cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for brokerID, creating one in the CLOSED state on
// first use.
func (r *Registry) Get(brokerID string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[brokerID]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[brokerID]; ok {
		return b
	}
	b = New(r.cfg)
	r.breakers[brokerID] = b
	return b
}

// States returns a snapshot of every known broker's current state, for
// metrics export.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.State()
	}
	return out
}
