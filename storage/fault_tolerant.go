package storage

import (
	"context"

	"github.com/ParentSquare/faulty"
)

// FaultTolerantProxy wraps any Storage and guarantees it never raises on
// the normal execution path: every error is caught, reported via notify,
// and replaced with a conservative safe value (spec §4.2.3). Administrative
// operations (Lock, Unlock, Reset, GetOptions, SetOptions) rethrow instead
// of swallowing, because an operator driving those calls needs to know
// they failed — the spec requires this to be a deliberate, consistent
// choice rather than mixed per-call behavior.
type FaultTolerantProxy struct {
	inner  faulty.Storage
	notify func(event string, payload map[string]interface{})
}

// NewFaultTolerantProxy wraps inner. notify may be nil, in which case
// storage_failure events are simply dropped.
func NewFaultTolerantProxy(inner faulty.Storage, notify func(event string, payload map[string]interface{})) *FaultTolerantProxy {
	return &FaultTolerantProxy{inner: inner, notify: notify}
}

func (p *FaultTolerantProxy) report(c CircuitView, action string, err error) {
	if p.notify == nil {
		return
	}
	p.notify(faulty.EventStorageFailure, map[string]interface{}{
		"circuit": c.Name, "action": action, "error": err,
	})
}

func (p *FaultTolerantProxy) GetOptions(ctx context.Context, c CircuitView) (map[string]interface{}, bool, error) {
	opts, found, err := p.inner.GetOptions(ctx, c)
	if err != nil {
		return nil, false, err
	}
	return opts, found, nil
}

func (p *FaultTolerantProxy) SetOptions(ctx context.Context, c CircuitView, opts map[string]interface{}) error {
	return p.inner.SetOptions(ctx, c, opts)
}

func (p *FaultTolerantProxy) Entry(ctx context.Context, c CircuitView, at float64, success bool, prev *Status) (*Status, error) {
	status, err := p.inner.Entry(ctx, c, at, success, prev)
	if err != nil {
		p.report(c, "entry", err)
		return stubStatus(c), nil
	}
	return status, nil
}

func (p *FaultTolerantProxy) Open(ctx context.Context, c CircuitView, openedAt float64) (bool, error) {
	ok, err := p.inner.Open(ctx, c, openedAt)
	if err != nil {
		p.report(c, "open", err)
		return false, nil
	}
	return ok, nil
}

func (p *FaultTolerantProxy) Reopen(ctx context.Context, c CircuitView, newOpenedAt, expectedPrevOpenedAt float64) (bool, error) {
	ok, err := p.inner.Reopen(ctx, c, newOpenedAt, expectedPrevOpenedAt)
	if err != nil {
		p.report(c, "reopen", err)
		return false, nil
	}
	return ok, nil
}

func (p *FaultTolerantProxy) Close(ctx context.Context, c CircuitView) (bool, error) {
	ok, err := p.inner.Close(ctx, c)
	if err != nil {
		p.report(c, "close", err)
		return false, nil
	}
	return ok, nil
}

func (p *FaultTolerantProxy) Lock(ctx context.Context, c CircuitView, state faulty.LockState) error {
	return p.inner.Lock(ctx, c, state)
}

func (p *FaultTolerantProxy) Unlock(ctx context.Context, c CircuitView) error {
	return p.inner.Unlock(ctx, c)
}

func (p *FaultTolerantProxy) Reset(ctx context.Context, c CircuitView) error {
	return p.inner.Reset(ctx, c)
}

func (p *FaultTolerantProxy) Status(ctx context.Context, c CircuitView) (*Status, error) {
	status, err := p.inner.Status(ctx, c)
	if err != nil {
		p.report(c, "status", err)
		return stubStatus(c), nil
	}
	return status, nil
}

func (p *FaultTolerantProxy) History(ctx context.Context, c CircuitView) ([]Entry, error) {
	entries, err := p.inner.History(ctx, c)
	if err != nil {
		p.report(c, "history", err)
		return nil, nil
	}
	return entries, nil
}

func (p *FaultTolerantProxy) List(ctx context.Context) ([]string, error) {
	names, err := p.inner.List(ctx)
	if err != nil {
		if p.notify != nil {
			p.notify(faulty.EventStorageFailure, map[string]interface{}{"action": "list", "error": err})
		}
		return nil, nil
	}
	return names, nil
}

// FaultTolerant always reports true: that is the whole point of the proxy.
func (p *FaultTolerantProxy) FaultTolerant() bool { return true }

func stubStatus(c CircuitView) *Status {
	return &Status{Name: c.Name, State: StateClosed, Options: c.Options, Stub: true}
}
