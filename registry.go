package faulty

import "sync"

// Registry memoizes Circuits by name within a process (spec §4.1 step 1's
// "a registry-level hook ensures that if another in-process circuit with
// the same name has already executed, its options win"). GetOrCreate gives
// put-if-absent semantics: the first caller to ask for a given name builds
// it, every later caller gets the same instance back.
type Registry struct {
	mu       sync.Mutex
	circuits map[string]*Circuit
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{circuits: make(map[string]*Circuit)}
}

// GetOrCreate returns the Circuit memoized under name, building one via
// factory if none exists yet. factory runs at most once per name, under
// the registry's lock, so concurrent first-callers never create two
// Circuits for the same name.
func (r *Registry) GetOrCreate(name string, factory func() (*Circuit, error)) (*Circuit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.circuits[name]; ok {
		return c, nil
	}
	c, err := factory()
	if err != nil {
		return nil, err
	}
	r.circuits[name] = c
	return c, nil
}

// Clear removes every memoized circuit. Does not affect circuits already
// obtained by callers holding a reference.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circuits = make(map[string]*Circuit)
}

// Names returns the names of all currently memoized circuits.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.circuits))
	for n := range r.circuits {
		names = append(names, n)
	}
	return names
}
