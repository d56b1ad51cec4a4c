package storage

import (
	"context"

	"github.com/ParentSquare/faulty"
)

// CircuitProxy wraps a Storage backend in its own internal circuit so that
// repeated failures against a sick backend short-circuit immediately
// instead of paying a full round-trip on every call (spec §4.2.4). The
// internal circuit uses a dedicated MemoryStorage — never the wrapped
// backend itself — to avoid recursing into the thing it is guarding.
type CircuitProxy struct {
	inner   faulty.Storage
	circuit *faulty.Circuit
}

// NewCircuitProxy wraps inner. notifier receives the internal circuit's
// failure/trip/skip events (but never its circuit_success, which would
// just be log noise for a guard that is supposed to be invisible when
// healthy); notifier may be nil.
func NewCircuitProxy(inner faulty.Storage, opts *faulty.Options, notifier faulty.Notifier) (*CircuitProxy, error) {
	if notifier == nil {
		notifier = faulty.NewEventNotifier()
	}
	filtered := faulty.NewFilterNotifier(notifier,
		faulty.EventCircuitFailure, faulty.EventCircuitOpened, faulty.EventCircuitReopened,
		faulty.EventCircuitClosed, faulty.EventCircuitSkipped, faulty.EventStorageFailure)
	guard := NewMemoryStorage()
	circuit, err := faulty.NewCircuit("internal:storage-guard", guard, nil, filtered, opts)
	if err != nil {
		return nil, err
	}
	return &CircuitProxy{inner: inner, circuit: circuit}, nil
}

type optionsResult struct {
	opts  map[string]interface{}
	found bool
}

func (p *CircuitProxy) GetOptions(ctx context.Context, c CircuitView) (map[string]interface{}, bool, error) {
	v, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		opts, found, err := p.inner.GetOptions(ctx, c)
		if err != nil {
			return nil, err
		}
		return optionsResult{opts: opts, found: found}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(optionsResult)
	return r.opts, r.found, nil
}

func (p *CircuitProxy) SetOptions(ctx context.Context, c CircuitView, opts map[string]interface{}) error {
	_, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return nil, p.inner.SetOptions(ctx, c, opts)
	})
	return err
}

func (p *CircuitProxy) Entry(ctx context.Context, c CircuitView, at float64, success bool, prev *Status) (*Status, error) {
	v, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return p.inner.Entry(ctx, c, at, success, prev)
	})
	if err != nil {
		return nil, err
	}
	status, _ := v.(*Status)
	return status, nil
}

type boolResult struct{ ok bool }

func (p *CircuitProxy) Open(ctx context.Context, c CircuitView, openedAt float64) (bool, error) {
	v, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		ok, err := p.inner.Open(ctx, c, openedAt)
		return boolResult{ok}, err
	})
	if err != nil {
		return false, err
	}
	return v.(boolResult).ok, nil
}

func (p *CircuitProxy) Reopen(ctx context.Context, c CircuitView, newOpenedAt, expectedPrevOpenedAt float64) (bool, error) {
	v, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		ok, err := p.inner.Reopen(ctx, c, newOpenedAt, expectedPrevOpenedAt)
		return boolResult{ok}, err
	})
	if err != nil {
		return false, err
	}
	return v.(boolResult).ok, nil
}

func (p *CircuitProxy) Close(ctx context.Context, c CircuitView) (bool, error) {
	v, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		ok, err := p.inner.Close(ctx, c)
		return boolResult{ok}, err
	})
	if err != nil {
		return false, err
	}
	return v.(boolResult).ok, nil
}

func (p *CircuitProxy) Lock(ctx context.Context, c CircuitView, state faulty.LockState) error {
	_, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return nil, p.inner.Lock(ctx, c, state)
	})
	return err
}

func (p *CircuitProxy) Unlock(ctx context.Context, c CircuitView) error {
	_, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return nil, p.inner.Unlock(ctx, c)
	})
	return err
}

func (p *CircuitProxy) Reset(ctx context.Context, c CircuitView) error {
	_, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return nil, p.inner.Reset(ctx, c)
	})
	return err
}

func (p *CircuitProxy) Status(ctx context.Context, c CircuitView) (*Status, error) {
	v, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return p.inner.Status(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	status, _ := v.(*Status)
	return status, nil
}

func (p *CircuitProxy) History(ctx context.Context, c CircuitView) ([]Entry, error) {
	v, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return p.inner.History(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	entries, _ := v.([]Entry)
	return entries, nil
}

func (p *CircuitProxy) List(ctx context.Context) ([]string, error) {
	v, err := p.circuit.Run(ctx, "", func(ctx context.Context) (interface{}, error) {
		return p.inner.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	names, _ := v.([]string)
	return names, nil
}

// FaultTolerant passes through the wrapped backend's own tolerance: the
// guard circuit prevents pile-ups on a sick backend but does not by
// itself absorb errors, which is why AutoWire nests CircuitProxy inside a
// FaultTolerantProxy (spec §4.2.6).
func (p *CircuitProxy) FaultTolerant() bool { return p.inner.FaultTolerant() }
