package cache

import (
	"context"
	"time"

	"github.com/ParentSquare/faulty"
)

// CircuitProxy wraps a Cache backend in its own internal circuit, so that
// a misbehaving cache (slow, erroring) is short-circuited instead of
// being retried on every call (spec §4.3's "CircuitProxy with its own
// internal circuit protects against a misbehaving cache backend"). The
// internal circuit keeps its state in the Storage passed to
// NewCircuitProxy, never in the cache it is guarding.
type CircuitProxy struct {
	inner   faulty.Cache
	circuit *faulty.Circuit
}

// NewCircuitProxy wraps inner. notifier receives the internal circuit's
// failure/trip/skip events, never its circuit_success; notifier may be
// nil. storage is the Storage backend the internal guarding circuit uses
// for its own state (typically a dedicated in-process MemoryStorage).
func NewCircuitProxy(inner faulty.Cache, storage faulty.Storage, opts *faulty.Options, notifier faulty.Notifier) (*CircuitProxy, error) {
	if notifier == nil {
		notifier = faulty.NewEventNotifier()
	}
	filtered := faulty.NewFilterNotifier(notifier,
		faulty.EventCircuitFailure, faulty.EventCircuitOpened, faulty.EventCircuitReopened,
		faulty.EventCircuitClosed, faulty.EventCircuitSkipped, faulty.EventCacheFailure)
	circuit, err := faulty.NewCircuit("internal:cache-guard", storage, nil, filtered, opts)
	if err != nil {
		return nil, err
	}
	return &CircuitProxy{inner: inner, circuit: circuit}, nil
}

func (p *CircuitProxy) Read(ctx context.Context, key string) (Entry, error) {
	v, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return p.inner.Read(ctx, key)
	})
	if err != nil {
		return Entry{}, err
	}
	entry, _ := v.(Entry)
	return entry, nil
}

func (p *CircuitProxy) Write(ctx context.Context, key string, value interface{}, expiresIn time.Duration) error {
	_, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return nil, p.inner.Write(ctx, key, value, expiresIn)
	})
	return err
}

// FaultTolerant passes through the wrapped backend's own tolerance, same
// reasoning as storage.CircuitProxy.
func (p *CircuitProxy) FaultTolerant() bool { return p.inner.FaultTolerant() }
