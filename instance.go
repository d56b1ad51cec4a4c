package faulty

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Instance ties a storage backend, an optional cache, an optional
// notifier, and a set of default options to a Registry, giving an
// application a single place to fetch circuits by name (spec §6's
// external-facing Faulty-style entry point).
type Instance struct {
	registry *Registry
	storage  Storage
	cache    Cache
	notifier Notifier
	defaults *Options
	disabled atomic.Bool
}

// InstanceOption configures an Instance at construction time.
type InstanceOption func(*Instance)

// WithInstanceCache sets the cache every circuit obtained from this
// instance uses by default.
func WithInstanceCache(c Cache) InstanceOption { return func(in *Instance) { in.cache = c } }

// WithInstanceNotifier sets the notifier every circuit obtained from this
// instance uses.
func WithInstanceNotifier(n Notifier) InstanceOption { return func(in *Instance) { in.notifier = n } }

// WithInstanceDefaults sets the base Options each circuit's per-call
// overrides are layered on top of.
func WithInstanceDefaults(o *Options) InstanceOption { return func(in *Instance) { in.defaults = o } }

// NewInstance builds an Instance backed by storage (required). Apply
// InstanceOption values to set a shared cache, notifier, or default
// Options; circuits built from the resulting Instance are memoized by
// name via its Registry.
func NewInstance(storage Storage, opts ...InstanceOption) (*Instance, error) {
	if storage == nil {
		return nil, fmt.Errorf("faulty: storage is required")
	}
	defaults, err := NewOptions()
	if err != nil {
		return nil, err
	}
	in := &Instance{
		registry: NewRegistry(),
		storage:  storage,
		defaults: defaults,
	}
	for _, apply := range opts {
		apply(in)
	}
	return in, nil
}

// Circuit returns the memoized Circuit for name, building it on first call
// with the instance's defaults overridden by opts. Later calls for the
// same name return the same Circuit and ignore opts, per spec §4.1's
// memoization rule.
func (in *Instance) Circuit(name string, opts ...Option) (*Circuit, error) {
	return in.registry.GetOrCreate(name, func() (*Circuit, error) {
		effective, err := in.defaults.With(opts...)
		if err != nil {
			return nil, err
		}
		return NewCircuit(name, switchableStorage{in: in}, in.cache, in.notifier, effective)
	})
}

// Disable makes every circuit obtained from this instance bypass the state
// machine entirely: user work always runs and the cache is still
// consulted, implemented by substituting a no-op storage (spec §4.1's
// process-wide disabled-flag edge case).
func (in *Instance) Disable() { in.disabled.Store(true) }

// Enable reverses Disable.
func (in *Instance) Enable() { in.disabled.Store(false) }

// Clear forgets every memoized circuit.
func (in *Instance) Clear() { in.registry.Clear() }

// switchableStorage delegates to the Instance's real storage, or to a
// no-op stand-in while the instance is disabled, without requiring
// Circuit itself to know about the disabled flag.
type switchableStorage struct{ in *Instance }

func (s switchableStorage) backend() Storage {
	if s.in.disabled.Load() {
		return noopStorage{}
	}
	return s.in.storage
}

func (s switchableStorage) GetOptions(ctx context.Context, c CircuitView) (map[string]interface{}, bool, error) {
	return s.backend().GetOptions(ctx, c)
}
func (s switchableStorage) SetOptions(ctx context.Context, c CircuitView, opts map[string]interface{}) error {
	return s.backend().SetOptions(ctx, c, opts)
}
func (s switchableStorage) Entry(ctx context.Context, c CircuitView, at float64, success bool, prev *Status) (*Status, error) {
	return s.backend().Entry(ctx, c, at, success, prev)
}
func (s switchableStorage) Open(ctx context.Context, c CircuitView, openedAt float64) (bool, error) {
	return s.backend().Open(ctx, c, openedAt)
}
func (s switchableStorage) Reopen(ctx context.Context, c CircuitView, newOpenedAt, expectedPrevOpenedAt float64) (bool, error) {
	return s.backend().Reopen(ctx, c, newOpenedAt, expectedPrevOpenedAt)
}
func (s switchableStorage) Close(ctx context.Context, c CircuitView) (bool, error) {
	return s.backend().Close(ctx, c)
}
func (s switchableStorage) Lock(ctx context.Context, c CircuitView, state LockState) error {
	return s.backend().Lock(ctx, c, state)
}
func (s switchableStorage) Unlock(ctx context.Context, c CircuitView) error {
	return s.backend().Unlock(ctx, c)
}
func (s switchableStorage) Reset(ctx context.Context, c CircuitView) error {
	return s.backend().Reset(ctx, c)
}
func (s switchableStorage) Status(ctx context.Context, c CircuitView) (*Status, error) {
	return s.backend().Status(ctx, c)
}
func (s switchableStorage) History(ctx context.Context, c CircuitView) ([]Entry, error) {
	return s.backend().History(ctx, c)
}
func (s switchableStorage) List(ctx context.Context) ([]string, error) {
	return s.backend().List(ctx)
}
func (s switchableStorage) FaultTolerant() bool { return s.backend().FaultTolerant() }

// noopStorage always reports a runnable, closed circuit with no history,
// the substitution Instance.Disable uses to bypass the state machine.
type noopStorage struct{}

func (noopStorage) GetOptions(context.Context, CircuitView) (map[string]interface{}, bool, error) {
	return nil, false, nil
}
func (noopStorage) SetOptions(context.Context, CircuitView, map[string]interface{}) error { return nil }
func (noopStorage) Entry(_ context.Context, c CircuitView, _ float64, _ bool, _ *Status) (*Status, error) {
	return &Status{Name: c.Name, State: StateClosed, Options: c.Options, Stub: true}, nil
}
func (noopStorage) Open(context.Context, CircuitView, float64) (bool, error)           { return false, nil }
func (noopStorage) Reopen(context.Context, CircuitView, float64, float64) (bool, error) { return false, nil }
func (noopStorage) Close(context.Context, CircuitView) (bool, error)                   { return false, nil }
func (noopStorage) Lock(context.Context, CircuitView, LockState) error                 { return nil }
func (noopStorage) Unlock(context.Context, CircuitView) error                          { return nil }
func (noopStorage) Reset(context.Context, CircuitView) error                           { return nil }
func (noopStorage) Status(_ context.Context, c CircuitView) (*Status, error) {
	return &Status{Name: c.Name, State: StateClosed, Options: c.Options, Stub: true}, nil
}
func (noopStorage) History(context.Context, CircuitView) ([]Entry, error) { return nil, nil }
func (noopStorage) List(context.Context) ([]string, error)                { return nil, nil }
func (noopStorage) FaultTolerant() bool                                   { return true }

// defaultMu guards the package-level default Instance the Init/Default/Get
// convenience functions share.
var (
	defaultMu       sync.Mutex
	defaultInstance *Instance
)

// Init builds the package-level default Instance. Call it once at
// application start-up; later calls replace the previous default.
func Init(storage Storage, opts ...InstanceOption) error {
	in, err := NewInstance(storage, opts...)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultInstance = in
	defaultMu.Unlock()
	return nil
}

// Default returns the package-level Instance set by Init, or nil if Init
// has not been called.
func Default() *Instance {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultInstance
}

// Get returns the memoized Circuit named name from the default Instance.
func Get(name string, opts ...Option) (*Circuit, error) {
	in := Default()
	if in == nil {
		return nil, fmt.Errorf("faulty: Init has not been called")
	}
	return in.Circuit(name, opts...)
}

// Disable bypasses the default Instance's circuits' state machines.
func Disable() {
	if in := Default(); in != nil {
		in.Disable()
	}
}

// Enable reverses Disable on the default Instance.
func Enable() {
	if in := Default(); in != nil {
		in.Enable()
	}
}

// Clear forgets every circuit memoized on the default Instance.
func Clear() {
	if in := Default(); in != nil {
		in.Clear()
	}
}
