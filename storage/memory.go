package storage

import (
	"context"
	"sync"

	"github.com/ParentSquare/faulty"
)

// circuitRecord is one circuit's process-local state: atomics guarded by a
// single mutex (not lock-free atomics) because every field transitions
// together under CAS semantics that span more than one word — grounded in
// the teacher's atomic.Value state field, generalized to the full record
// spec §4.2.1 requires.
type circuitRecord struct {
	mu          sync.Mutex
	state       faulty.State
	openedAt    float64
	hasOpenedAt bool
	lock        faulty.LockState
	sample      *faulty.Sample
	options     map[string]interface{}
}

// MemoryStorage is the process-local Storage backend: per-circuit records
// in a name-keyed map, each guarded by its own mutex, with a bounded
// sample ring holding raw history entries (spec §4.2.1).
type MemoryStorage struct {
	mu       sync.Mutex
	circuits map[string]*circuitRecord
}

// NewMemoryStorage builds an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{circuits: make(map[string]*circuitRecord)}
}

func (m *MemoryStorage) record(name string, opts *faulty.Options) *circuitRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.circuits[name]
	if !ok {
		max := 100
		if opts != nil && opts.MaxSampleSize > 0 {
			max = opts.MaxSampleSize
		}
		r = &circuitRecord{state: faulty.StateClosed, sample: faulty.NewSample(max)}
		m.circuits[name] = r
	}
	return r
}

func (m *MemoryStorage) GetOptions(_ context.Context, c CircuitView) (map[string]interface{}, bool, error) {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.options == nil {
		return nil, false, nil
	}
	out := make(map[string]interface{}, len(r.options))
	for k, v := range r.options {
		out[k] = v
	}
	return out, true, nil
}

func (m *MemoryStorage) SetOptions(_ context.Context, c CircuitView, opts map[string]interface{}) error {
	r := m.record(c.Name, c.Options)
	out := make(map[string]interface{}, len(opts))
	for k, v := range opts {
		out[k] = v
	}
	r.mu.Lock()
	r.options = out
	r.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Entry(_ context.Context, c CircuitView, at float64, success bool, prev *Status) (*Status, error) {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	r.sample.Push(faulty.Entry{At: at, Success: success})
	entries := r.sample.Entries()
	state, openedAt, hasOpenedAt, lock := r.state, r.openedAt, r.hasOpenedAt, r.lock
	r.mu.Unlock()

	if prev == nil {
		return nil, nil
	}
	return computeStatus(c, entries, state, openedAt, hasOpenedAt, lock, at), nil
}

func (m *MemoryStorage) Open(_ context.Context, c CircuitView, openedAt float64) (bool, error) {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == faulty.StateOpen {
		return false, nil
	}
	r.state = faulty.StateOpen
	r.openedAt = openedAt
	r.hasOpenedAt = true
	return true, nil
}

func (m *MemoryStorage) Reopen(_ context.Context, c CircuitView, newOpenedAt, expectedPrevOpenedAt float64) (bool, error) {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasOpenedAt && r.openedAt != expectedPrevOpenedAt {
		return false, nil
	}
	r.state = faulty.StateOpen
	r.openedAt = newOpenedAt
	r.hasOpenedAt = true
	return true, nil
}

func (m *MemoryStorage) Close(_ context.Context, c CircuitView) (bool, error) {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != faulty.StateOpen {
		return false, nil
	}
	r.state = faulty.StateClosed
	r.hasOpenedAt = false
	r.openedAt = 0
	r.sample.Clear()
	return true, nil
}

func (m *MemoryStorage) Lock(_ context.Context, c CircuitView, state faulty.LockState) error {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	r.lock = state
	r.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Unlock(_ context.Context, c CircuitView) error {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	r.lock = faulty.LockNone
	r.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Reset(_ context.Context, c CircuitView) error {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	r.state = faulty.StateClosed
	r.openedAt = 0
	r.hasOpenedAt = false
	r.lock = faulty.LockNone
	r.sample.Clear()
	r.options = nil
	r.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Status(_ context.Context, c CircuitView) (*Status, error) {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	entries := r.sample.Entries()
	state, openedAt, hasOpenedAt, lock := r.state, r.openedAt, r.hasOpenedAt, r.lock
	r.mu.Unlock()
	return computeStatus(c, entries, state, openedAt, hasOpenedAt, lock, nowSeconds(c.Options)), nil
}

func (m *MemoryStorage) History(_ context.Context, c CircuitView) ([]Entry, error) {
	r := m.record(c.Name, c.Options)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sample.Entries(), nil
}

func (m *MemoryStorage) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.circuits))
	for n := range m.circuits {
		names = append(names, n)
	}
	return names, nil
}

// FaultTolerant reports true: MemoryStorage cannot network-fail, even
// though it has no fallback of its own (spec §4.2.1).
func (m *MemoryStorage) FaultTolerant() bool { return true }
