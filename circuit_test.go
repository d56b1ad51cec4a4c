package faulty

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// memStorage is a minimal in-package Storage used only by circuit_test.go,
// so these tests don't need to import the storage subpackage (which itself
// imports this one) and can exercise the execution pipeline in isolation.
type memRecord struct {
	state       State
	openedAt    float64
	hasOpenedAt bool
	lock        LockState
	entries     []Entry
	options     map[string]interface{}
}

type memStorage struct {
	mu       sync.Mutex
	records  map[string]*memRecord
	maxSize  int
}

func newMemStorage() *memStorage {
	return &memStorage{records: make(map[string]*memRecord), maxSize: 100}
}

func (m *memStorage) rec(name string) *memRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[name]
	if !ok {
		r = &memRecord{state: StateClosed}
		m.records[name] = r
	}
	return r
}

func (m *memStorage) GetOptions(_ context.Context, c CircuitView) (map[string]interface{}, bool, error) {
	r := m.rec(c.Name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.options == nil {
		return nil, false, nil
	}
	return r.options, true, nil
}

func (m *memStorage) SetOptions(_ context.Context, c CircuitView, opts map[string]interface{}) error {
	r := m.rec(c.Name)
	m.mu.Lock()
	r.options = opts
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Entry(_ context.Context, c CircuitView, at float64, success bool, prev *Status) (*Status, error) {
	r := m.rec(c.Name)
	m.mu.Lock()
	r.entries = append(r.entries, Entry{At: at, Success: success})
	if len(r.entries) > m.maxSize {
		r.entries = r.entries[len(r.entries)-m.maxSize:]
	}
	entries := append([]Entry(nil), r.entries...)
	state, openedAt, hasOpenedAt, lock := r.state, r.openedAt, r.hasOpenedAt, r.lock
	m.mu.Unlock()
	if prev == nil {
		return nil, nil
	}
	return m.computeStatus(c, entries, state, openedAt, hasOpenedAt, lock, at), nil
}

func (m *memStorage) Open(_ context.Context, c CircuitView, openedAt float64) (bool, error) {
	r := m.rec(c.Name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.state == StateOpen {
		return false, nil
	}
	r.state, r.openedAt, r.hasOpenedAt = StateOpen, openedAt, true
	return true, nil
}

func (m *memStorage) Reopen(_ context.Context, c CircuitView, newOpenedAt, expected float64) (bool, error) {
	r := m.rec(c.Name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.hasOpenedAt && r.openedAt != expected {
		return false, nil
	}
	r.state, r.openedAt, r.hasOpenedAt = StateOpen, newOpenedAt, true
	return true, nil
}

func (m *memStorage) Close(_ context.Context, c CircuitView) (bool, error) {
	r := m.rec(c.Name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.state != StateOpen {
		return false, nil
	}
	r.state, r.hasOpenedAt, r.openedAt, r.entries = StateClosed, false, 0, nil
	return true, nil
}

func (m *memStorage) Lock(_ context.Context, c CircuitView, state LockState) error {
	r := m.rec(c.Name)
	m.mu.Lock()
	r.lock = state
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Unlock(_ context.Context, c CircuitView) error {
	r := m.rec(c.Name)
	m.mu.Lock()
	r.lock = LockNone
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Reset(_ context.Context, c CircuitView) error {
	r := m.rec(c.Name)
	m.mu.Lock()
	*r = memRecord{state: StateClosed}
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Status(_ context.Context, c CircuitView) (*Status, error) {
	r := m.rec(c.Name)
	m.mu.Lock()
	entries := append([]Entry(nil), r.entries...)
	state, openedAt, hasOpenedAt, lock := r.state, r.openedAt, r.hasOpenedAt, r.lock
	m.mu.Unlock()
	now := nowSeconds(c.Options.Clock)
	return m.computeStatus(c, entries, state, openedAt, hasOpenedAt, lock, now), nil
}

func (m *memStorage) computeStatus(c CircuitView, entries []Entry, state State, openedAt float64, hasOpenedAt bool, lock LockState, now float64) *Status {
	windowStart := now - c.Options.EvaluationWindow.Seconds()
	size, rate := WindowStats(entries, windowStart)
	return &Status{
		Name: c.Name, State: state, Lock: lock, OpenedAt: openedAt, HasOpenedAt: hasOpenedAt,
		Now: now, CoolDown: c.Options.CoolDown.Seconds(), FailureRate: rate, SampleSize: size, Options: c.Options,
	}
}

func (m *memStorage) History(_ context.Context, c CircuitView) ([]Entry, error) {
	r := m.rec(c.Name)
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), r.entries...), nil
}

func (m *memStorage) List(context.Context) ([]string, error) { return nil, nil }
func (m *memStorage) FaultTolerant() bool                    { return true }

type fakeCache struct {
	mu    sync.Mutex
	store map[string]interface{}
}

func newFakeCache() *fakeCache { return &fakeCache{store: make(map[string]interface{})} }

func (c *fakeCache) Read(_ context.Context, key string) (CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return CacheEntry{}, nil
	}
	return CacheEntry{Value: v, Found: true}, nil
}

func (c *fakeCache) Write(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	c.store[key] = value
	c.mu.Unlock()
	return nil
}

func (c *fakeCache) FaultTolerant() bool { return true }

var errDB = errors.New("db unavailable")

func newTestCircuit(t *testing.T, clk Clock, cache Cache, notifier Notifier, overrides ...Option) (*Circuit, *memStorage) {
	t.Helper()
	base := append([]Option{
		WithRateThreshold(0.5),
		WithSampleThreshold(3),
		WithCoolDown(60 * time.Second),
		WithEvaluationWindow(time.Minute),
		WithClock(clk),
	}, overrides...)
	opts, err := NewOptions(base...)
	if err != nil {
		t.Fatal(err)
	}
	store := newMemStorage()
	c, err := NewCircuit("orders", store, cache, notifier, opts)
	if err != nil {
		t.Fatal(err)
	}
	return c, store
}

func failingWork(ctx context.Context) (interface{}, error) { return nil, errDB }
func okWork(ctx context.Context) (interface{}, error) { return "ok", nil }

// Scenario 1: threshold trip.
func TestScenarioThresholdTrip(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	c, _ := newTestCircuit(t, clk, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Run(ctx, "", failingWork)
		var ce *CircuitError
		if !errors.As(err, &ce) || ce.Kind != KindCircuitFailure {
			t.Fatalf("run %d: expected CircuitFailureError, got %v", i, err)
		}
	}

	_, err := c.Run(ctx, "", failingWork)
	var ce *CircuitError
	if !errors.As(err, &ce) || ce.Kind != KindCircuitTripped {
		t.Fatalf("expected third run to trip the circuit, got %v", err)
	}

	_, err = c.Run(ctx, "", failingWork)
	if !errors.As(err, &ce) || ce.Kind != KindCircuitOpen {
		t.Fatalf("expected subsequent run to fail with OpenCircuit, got %v", err)
	}
}

// Scenario 2: half-open recovery.
func TestScenarioHalfOpenRecovery(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	c, store := newTestCircuit(t, clk, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Run(ctx, "", failingWork)
	}

	clk.Advance(61 * time.Second)

	status, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.HalfOpen() {
		t.Fatal("expected status to be half-open after cool down elapses")
	}

	val, err := c.Run(ctx, "", okWork)
	if err != nil {
		t.Fatalf("expected half-open probe to succeed, got %v", err)
	}
	if val != "ok" {
		t.Fatalf("expected ok value, got %v", val)
	}

	status, _ = c.Status(ctx)
	if !status.Closed() {
		t.Fatal("expected circuit to be closed after successful probe")
	}

	hist, _ := c.History(ctx)
	if len(hist) != 0 {
		t.Fatalf("expected history cleared after close, got %d entries", len(hist))
	}
	_ = store
}

// Scenario 3: half-open reopen resets opened_at.
func TestScenarioHalfOpenReopen(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	c, _ := newTestCircuit(t, clk, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Run(ctx, "", failingWork)
	}
	clk.Advance(61 * time.Second)

	_, err := c.Run(ctx, "", failingWork)
	var ce *CircuitError
	if !errors.As(err, &ce) || ce.Kind != KindCircuitTripped {
		t.Fatalf("expected failing probe to retrip, got %v", err)
	}

	clk.Advance(1 * time.Second)
	status, _ := c.Status(ctx)
	if status.HalfOpen() {
		t.Fatal("expected cool down to have restarted, not still half-open 1s later")
	}

	clk.Advance(60 * time.Second)
	status, _ = c.Status(ctx)
	if !status.HalfOpen() {
		t.Fatal("expected half-open after a full cool down from the reopen")
	}
}

// Scenario 4: cache fallback on failure.
func TestScenarioCacheFallbackOnFailure(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	cache := newFakeCache()
	c, _ := newTestCircuit(t, clk, cache, nil,
		WithCacheRefreshesAfter(10*time.Second), WithCacheExpiresIn(time.Hour), WithCacheRefreshJitter(time.Nanosecond))
	ctx := context.Background()

	val, err := c.Run(ctx, "k", okWork)
	if err != nil || val != "ok" {
		t.Fatalf("expected seeding run to succeed, got (%v, %v)", val, err)
	}

	clk.Advance(11 * time.Second) // past refresh, not past expiry

	val, err = c.Run(ctx, "k", failingWork)
	if err != nil {
		t.Fatalf("expected cache fallback to suppress the error, got %v", err)
	}
	if val != "ok" {
		t.Fatalf("expected fallback value %q, got %v", "ok", val)
	}

	hist, _ := c.History(ctx)
	if len(hist) == 0 || hist[len(hist)-1].Success {
		t.Fatal("expected last history entry to record the failure despite the fallback")
	}
}

// Scenario 5: excluded error passes through.
func TestScenarioExcludedErrorPassesThrough(t *testing.T) {
	errNotFound := errors.New("not found")
	clk := NewFakeClock(time.Unix(0, 0))
	c, _ := newTestCircuit(t, clk, nil, nil,
		WithErrors(NewKindSet(errDB)),
		WithExclude(NewKindSet(errNotFound)),
	)
	ctx := context.Background()

	_, err := c.Run(ctx, "", func(context.Context) (interface{}, error) { return nil, errNotFound })
	if !errors.Is(err, errNotFound) {
		t.Fatalf("expected excluded error to propagate unwrapped, got %v", err)
	}

	hist, _ := c.History(ctx)
	if len(hist) != 0 {
		t.Fatalf("expected no history entry for an excluded error, got %d", len(hist))
	}
}

// Scenario 6: concurrent trip emits exactly one circuit_opened event.
func TestScenarioConcurrentTripEmitsOneEvent(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	var openedCount int32
	notifier := NewEventNotifier()
	notifier.Subscribe(func(event string, _ map[string]interface{}) {
		if event == EventCircuitOpened {
			atomic.AddInt32(&openedCount, 1)
		}
	})

	opts, err := NewOptions(
		WithRateThreshold(0.5),
		WithSampleThreshold(3),
		WithCoolDown(60*time.Second),
		WithEvaluationWindow(time.Minute),
		WithClock(clk),
	)
	if err != nil {
		t.Fatal(err)
	}
	store := newMemStorage()
	c, err := NewCircuit("orders", store, nil, notifier, opts)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(ctx, "", failingWork)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&openedCount); got != 1 {
		t.Fatalf("expected exactly 1 circuit_opened event, got %d", got)
	}
}

// Lock override law: while locked_closed, Run executes user work regardless
// of prior failures.
func TestLockClosedOverridesFailureHistory(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	c, _ := newTestCircuit(t, clk, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Run(ctx, "", failingWork)
	}
	if err := c.LockClosed(ctx); err != nil {
		t.Fatal(err)
	}

	val, err := c.Run(ctx, "", okWork)
	if err != nil {
		t.Fatalf("expected locked-closed circuit to still run user work, got %v", err)
	}
	if val != "ok" {
		t.Fatalf("expected ok value, got %v", val)
	}
}

// Reset is idempotent and returns the circuit to its initial closed state.
func TestResetIdempotent(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	c, _ := newTestCircuit(t, clk, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Run(ctx, "", failingWork)
	}
	if err := c.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	status, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Closed() {
		t.Fatal("expected reset circuit to be closed")
	}
	hist, _ := c.History(ctx)
	if len(hist) != 0 {
		t.Fatalf("expected empty history after reset, got %d entries", len(hist))
	}
}

// A panic in user work is recovered and counted as a failure, not
// propagated past the circuit.
func TestPanicRecoveredAsFailure(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	c, _ := newTestCircuit(t, clk, nil, nil)
	ctx := context.Background()

	_, err := c.Run(ctx, "", func(context.Context) (interface{}, error) {
		panic("boom")
	})
	var ce *CircuitError
	if !errors.As(err, &ce) || ce.Kind != KindCircuitFailure {
		t.Fatalf("expected panic to surface as a CircuitFailureError, got %v", err)
	}
}
