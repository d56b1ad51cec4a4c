package storage

import (
	"context"

	"github.com/ParentSquare/faulty"
)

// FallbackChain is an ordered list of Storage backends (spec §4.2.5).
// Read-like operations try each backend in order and return the first
// success. Write-like operations that must stay consistent across
// replicas fan out to every backend and aggregate failures.
type FallbackChain struct {
	backends []faulty.Storage
}

// NewFallbackChain builds a chain trying backends in the given order.
func NewFallbackChain(backends ...faulty.Storage) *FallbackChain {
	return &FallbackChain{backends: backends}
}

func allFailed(errs []error) error {
	if len(errs) == 0 {
		return faulty.ErrAllFailed
	}
	return &faulty.ChainError{Kind: faulty.KindAllFailed, Errors: errs}
}

func (f *FallbackChain) GetOptions(ctx context.Context, c CircuitView) (map[string]interface{}, bool, error) {
	var errs []error
	for _, b := range f.backends {
		opts, found, err := b.GetOptions(ctx, c)
		if err == nil {
			return opts, found, nil
		}
		errs = append(errs, err)
	}
	return nil, false, allFailed(errs)
}

func (f *FallbackChain) Entry(ctx context.Context, c CircuitView, at float64, success bool, prev *Status) (*Status, error) {
	var errs []error
	for _, b := range f.backends {
		status, err := b.Entry(ctx, c, at, success, prev)
		if err == nil {
			return status, nil
		}
		errs = append(errs, err)
	}
	return nil, allFailed(errs)
}

func (f *FallbackChain) Open(ctx context.Context, c CircuitView, openedAt float64) (bool, error) {
	var errs []error
	for _, b := range f.backends {
		ok, err := b.Open(ctx, c, openedAt)
		if err == nil {
			return ok, nil
		}
		errs = append(errs, err)
	}
	return false, allFailed(errs)
}

func (f *FallbackChain) Reopen(ctx context.Context, c CircuitView, newOpenedAt, expectedPrevOpenedAt float64) (bool, error) {
	var errs []error
	for _, b := range f.backends {
		ok, err := b.Reopen(ctx, c, newOpenedAt, expectedPrevOpenedAt)
		if err == nil {
			return ok, nil
		}
		errs = append(errs, err)
	}
	return false, allFailed(errs)
}

func (f *FallbackChain) Close(ctx context.Context, c CircuitView) (bool, error) {
	var errs []error
	for _, b := range f.backends {
		ok, err := b.Close(ctx, c)
		if err == nil {
			return ok, nil
		}
		errs = append(errs, err)
	}
	return false, allFailed(errs)
}

func (f *FallbackChain) Status(ctx context.Context, c CircuitView) (*Status, error) {
	var errs []error
	for _, b := range f.backends {
		status, err := b.Status(ctx, c)
		if err == nil {
			return status, nil
		}
		errs = append(errs, err)
	}
	return nil, allFailed(errs)
}

func (f *FallbackChain) History(ctx context.Context, c CircuitView) ([]Entry, error) {
	var errs []error
	for _, b := range f.backends {
		entries, err := b.History(ctx, c)
		if err == nil {
			return entries, nil
		}
		errs = append(errs, err)
	}
	return nil, allFailed(errs)
}

func (f *FallbackChain) List(ctx context.Context) ([]string, error) {
	var errs []error
	for _, b := range f.backends {
		names, err := b.List(ctx)
		if err == nil {
			return names, nil
		}
		errs = append(errs, err)
	}
	return nil, allFailed(errs)
}

// fanOut calls call against every backend, returning nil if all succeed, a
// KindAllFailed ChainError if none do, or a KindPartialFailure ChainError
// if some succeed and some fail.
func (f *FallbackChain) fanOut(call func(faulty.Storage) error) error {
	var errs []error
	succeeded := 0
	for _, b := range f.backends {
		if err := call(b); err != nil {
			errs = append(errs, err)
		} else {
			succeeded++
		}
	}
	switch {
	case len(errs) == 0:
		return nil
	case succeeded == 0:
		return &faulty.ChainError{Kind: faulty.KindAllFailed, Errors: errs}
	default:
		return &faulty.ChainError{Kind: faulty.KindPartialFailure, Errors: errs}
	}
}

func (f *FallbackChain) SetOptions(ctx context.Context, c CircuitView, opts map[string]interface{}) error {
	return f.fanOut(func(b faulty.Storage) error { return b.SetOptions(ctx, c, opts) })
}

func (f *FallbackChain) Lock(ctx context.Context, c CircuitView, state faulty.LockState) error {
	return f.fanOut(func(b faulty.Storage) error { return b.Lock(ctx, c, state) })
}

func (f *FallbackChain) Unlock(ctx context.Context, c CircuitView) error {
	return f.fanOut(func(b faulty.Storage) error { return b.Unlock(ctx, c) })
}

func (f *FallbackChain) Reset(ctx context.Context, c CircuitView) error {
	return f.fanOut(func(b faulty.Storage) error { return b.Reset(ctx, c) })
}

// FaultTolerant reports false: the chain itself raises aggregate errors
// rather than swallowing them, so AutoWire always nests it in a
// FaultTolerantProxy (spec §4.2.6).
func (f *FallbackChain) FaultTolerant() bool { return false }
