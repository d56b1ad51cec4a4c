package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/ParentSquare/faulty"
)

type erroringStorage struct {
	failEntry bool
}

func (e *erroringStorage) GetOptions(context.Context, CircuitView) (map[string]interface{}, bool, error) {
	return nil, false, errors.New("unreachable")
}
func (e *erroringStorage) SetOptions(context.Context, CircuitView, map[string]interface{}) error {
	return errors.New("unreachable")
}
func (e *erroringStorage) Entry(context.Context, CircuitView, float64, bool, *Status) (*Status, error) {
	if e.failEntry {
		return nil, errors.New("unreachable")
	}
	return nil, nil
}
func (e *erroringStorage) Open(context.Context, CircuitView, float64) (bool, error) {
	return false, errors.New("unreachable")
}
func (e *erroringStorage) Reopen(context.Context, CircuitView, float64, float64) (bool, error) {
	return false, errors.New("unreachable")
}
func (e *erroringStorage) Close(context.Context, CircuitView) (bool, error) {
	return false, errors.New("unreachable")
}
func (e *erroringStorage) Lock(context.Context, CircuitView, faulty.LockState) error {
	return errors.New("unreachable")
}
func (e *erroringStorage) Unlock(context.Context, CircuitView) error { return errors.New("unreachable") }
func (e *erroringStorage) Reset(context.Context, CircuitView) error  { return errors.New("unreachable") }
func (e *erroringStorage) Status(context.Context, CircuitView) (*Status, error) {
	return nil, errors.New("unreachable")
}
func (e *erroringStorage) History(context.Context, CircuitView) ([]Entry, error) {
	return nil, errors.New("unreachable")
}
func (e *erroringStorage) List(context.Context) ([]string, error) { return nil, errors.New("unreachable") }
func (e *erroringStorage) FaultTolerant() bool                    { return false }

// Scenario 7: fallback chain survives primary failure.
func TestFallbackChainSurvivesPrimaryFailure(t *testing.T) {
	ctx := context.Background()
	c := testView(t)

	primary := &erroringStorage{failEntry: true}
	secondary := NewMemoryStorage()
	chain := NewFallbackChain(primary, secondary)

	if _, err := chain.Entry(ctx, c, 1, false, nil); err != nil {
		t.Fatalf("expected fallback chain to absorb primary failure, got %v", err)
	}

	hist, err := secondary.History(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected entry recorded in the secondary backend, got %d entries", len(hist))
	}
}

func TestFallbackChainAllFailedAggregates(t *testing.T) {
	ctx := context.Background()
	c := testView(t)

	chain := NewFallbackChain(&erroringStorage{}, &erroringStorage{})
	_, err := chain.Status(ctx, c)
	if !errors.Is(err, faulty.ErrAllFailed) {
		t.Fatalf("expected ErrAllFailed when every backend fails, got %v", err)
	}
}

func TestFallbackChainPartialFailureOnFanOut(t *testing.T) {
	ctx := context.Background()
	c := testView(t)

	chain := NewFallbackChain(&erroringStorage{}, NewMemoryStorage())
	err := chain.Reset(ctx, c)
	if !errors.Is(err, faulty.ErrPartialFailure) {
		t.Fatalf("expected ErrPartialFailure when fan-out partially fails, got %v", err)
	}
}

func TestFaultTolerantProxyNeverRaisesOnNormalPath(t *testing.T) {
	ctx := context.Background()
	c := testView(t)

	var reported []string
	proxy := NewFaultTolerantProxy(&erroringStorage{failEntry: true}, func(event string, payload map[string]interface{}) {
		reported = append(reported, event)
	})

	status, err := proxy.Entry(ctx, c, 1, false, &Status{})
	if err != nil {
		t.Fatalf("expected Entry to be swallowed, got %v", err)
	}
	if status == nil || !status.Stub {
		t.Fatal("expected a stub Status back from a swallowed Entry failure")
	}
	if _, err := proxy.Status(ctx, c); err != nil {
		t.Fatalf("expected Status to be swallowed, got %v", err)
	}
	if ok, err := proxy.Open(ctx, c, 1); err != nil || ok {
		t.Fatalf("expected Open to report (false, nil), got (%v, %v)", ok, err)
	}
	if len(reported) == 0 {
		t.Fatal("expected storage_failure events to have been reported")
	}

	if err := proxy.Lock(ctx, c, faulty.LockOpen); err == nil {
		t.Fatal("expected administrative Lock to rethrow per spec's admin-op choice")
	}
}
