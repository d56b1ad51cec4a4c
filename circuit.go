package faulty

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Circuit is the runner: it owns a name, a storage backend, an optional
// cache, and an optional notifier, and drives the execution pipeline spec
// §4.1 describes. Construct with NewCircuit; a Circuit is safe for
// concurrent use.
type Circuit struct {
	name     string
	storage  Storage
	cache    Cache // may be nil: no caching configured
	notifier Notifier
	opts     atomic.Pointer[Options]
	optsDone atomic.Bool
}

// NewCircuit builds a Circuit. storage is required; cache and notifier may
// be nil. opts may be nil, in which case NewOptions() defaults are used.
func NewCircuit(name string, storage Storage, cache Cache, notifier Notifier, opts *Options) (*Circuit, error) {
	if storage == nil {
		return nil, fmt.Errorf("faulty: circuit %q: storage is required", name)
	}
	if opts == nil {
		var err error
		opts, err = NewOptions()
		if err != nil {
			return nil, err
		}
	}
	c := &Circuit{name: name, storage: storage, cache: cache, notifier: notifier}
	c.opts.Store(opts)
	return c, nil
}

// Name returns the circuit's name.
func (c *Circuit) Name() string { return c.name }

// ensureOptions performs spec §4.1 step 1's option reconciliation exactly
// once per Circuit value: either adopt previously-persisted options (so
// concurrent observers see a consistent view) or persist this Circuit's
// as-given options as the ones that win from now on.
func (c *Circuit) ensureOptions(ctx context.Context) *Options {
	if !c.optsDone.CompareAndSwap(false, true) {
		return c.opts.Load()
	}
	view := CircuitView{Name: c.name, Options: c.opts.Load()}
	stored, found, err := c.storage.GetOptions(ctx, view)
	if err == nil && found {
		c.opts.Store(c.opts.Load().ApplyPrimitive(stored))
	} else {
		_ = c.storage.SetOptions(ctx, view, c.opts.Load().Primitive())
	}
	return c.opts.Load()
}

func (c *Circuit) view(opts *Options) CircuitView {
	return CircuitView{Name: c.name, Options: opts}
}

func (c *Circuit) notify(event string, payload map[string]interface{}) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(event, payload)
}

// nowSeconds returns clk.Now() as float64 Unix seconds, the forward
// compatible timestamp representation spec §9 mandates.
func nowSeconds(clk Clock) float64 {
	t := clk.Now()
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// probeReservationTTL bounds how long a claimed half-open probe reservation
// blocks other processes if the reserving process dies mid-call.
const probeReservationTTL = 10 * time.Second

// keyJitter derives a deterministic offset in [-max, +max] from key, so
// that repeated reads of the same cache key agree on its refresh-due
// instant instead of each drawing a fresh random jitter (spec §3's
// cache_refresh_jitter, sourced per SPEC_FULL.md §4.3).
func keyJitter(key string, max float64) float64 {
	if max <= 0 {
		return 0
	}
	h := xxhash.Sum64String(key)
	frac := float64(h) / float64(math.MaxUint64) // [0,1)
	return (frac*2 - 1) * max
}

// Run executes fn under the circuit's protection, unwrapping TryRun's
// Result into a plain (value, error) pair — grounded in the teacher's
// Execute delegating to ExecuteWithTimeout.
func (c *Circuit) Run(ctx context.Context, cacheKey string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	res := c.TryRun(ctx, cacheKey, fn)
	if res.IsErr() {
		err, _ := res.Error()
		return nil, err
	}
	val, _ := res.Value()
	return val, nil
}

// TryRun is the execution pipeline from spec §4.1: option reconciliation,
// cache lookup, gate decision, execution, and success/failure recording.
func (c *Circuit) TryRun(ctx context.Context, cacheKey string, fn func(context.Context) (interface{}, error)) Result[interface{}] {
	opts := c.ensureOptions(ctx)
	view := c.view(opts)

	var cachedValue interface{}
	haveCached := false

	if cacheKey != "" && c.cache != nil {
		entry, err := c.cache.Read(ctx, cacheKey)
		switch {
		case err != nil:
			c.notify(EventCacheFailure, map[string]interface{}{
				"circuit": c.name, "key": cacheKey, "error": err,
			})
		case entry.Found:
			now := nowSeconds(opts.Clock)
			fresh := false
			if marker, merr := c.cache.Read(ctx, refreshMarkerKey(cacheKey)); merr == nil && marker.Found {
				if due, ok := marker.Value.(float64); ok {
					fresh = due+keyJitter(cacheKey, opts.CacheRefreshJitter.Seconds()) >= now
				}
			}
			if fresh {
				c.notify(EventCircuitCacheHit, map[string]interface{}{"circuit": c.name, "key": cacheKey})
				return Ok[interface{}](entry.Value)
			}
			cachedValue, haveCached = entry.Value, true
			c.notify(EventCircuitCacheMiss, map[string]interface{}{"circuit": c.name, "key": cacheKey})
		default:
			c.notify(EventCircuitCacheMiss, map[string]interface{}{"circuit": c.name, "key": cacheKey})
		}
	}

	status, err := c.storage.Status(ctx, view)
	if err != nil {
		c.notify(EventStorageFailure, map[string]interface{}{"circuit": c.name, "action": "status", "error": err})
		status = &Status{Name: c.name, State: StateClosed, Options: opts, Stub: true}
	}

	if !status.CanRun() {
		c.notify(EventCircuitSkipped, map[string]interface{}{"circuit": c.name})
		if haveCached {
			return Ok[interface{}](cachedValue)
		}
		return Err[interface{}](NewOpenCircuitError(c.name))
	}

	wasHalfOpen := status.HalfOpen()

	if wasHalfOpen {
		if reserver, ok := c.storage.(ProbeReserver); ok {
			reserved, rerr := reserver.ReserveProbe(ctx, view, uuid.NewString(), probeReservationTTL)
			if rerr != nil {
				c.notify(EventStorageFailure, map[string]interface{}{"circuit": c.name, "action": "reserve_probe", "error": rerr})
			} else if !reserved {
				// Another process already holds the half-open probe (spec
				// §9); behave as if the circuit could not run this call.
				c.notify(EventCircuitSkipped, map[string]interface{}{"circuit": c.name})
				if haveCached {
					return Ok[interface{}](cachedValue)
				}
				return Err[interface{}](NewOpenCircuitError(c.name))
			}
		}
	}

	value, callErr := c.safeCall(ctx, fn)
	now := nowSeconds(opts.Clock)

	if callErr == nil {
		return c.onSuccess(ctx, view, opts, now, wasHalfOpen, status, cacheKey, value, haveCached, cachedValue)
	}
	return c.onFailure(ctx, view, opts, now, wasHalfOpen, status, cacheKey, callErr, haveCached, cachedValue)
}

// safeCall runs fn, converting a panic into a counted failure rather than
// letting it unwind past the circuit. User work is not run in a separate
// goroutine: nothing here races to interrupt it, so there is no timeout to
// protect against, only the recover itself.
func (c *Circuit) safeCall(ctx context.Context, fn func(context.Context) (interface{}, error)) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("faulty: circuit %q: panic recovered: %v\n%s", c.name, r, debug.Stack())
		}
	}()
	return fn(ctx)
}

func (c *Circuit) onSuccess(
	ctx context.Context, view CircuitView, opts *Options, now float64, wasHalfOpen bool,
	prevStatus *Status, cacheKey string, value interface{}, haveCached bool, cachedValue interface{},
) Result[interface{}] {
	if _, err := c.storage.Entry(ctx, view, now, true, prevStatus); err != nil {
		c.notify(EventStorageFailure, map[string]interface{}{"circuit": c.name, "action": "entry", "error": err})
	}

	if wasHalfOpen {
		closed, err := c.storage.Close(ctx, view)
		if err != nil {
			c.notify(EventStorageFailure, map[string]interface{}{"circuit": c.name, "action": "close", "error": err})
		} else if closed {
			c.notify(EventCircuitClosed, map[string]interface{}{"circuit": c.name})
		}
	}

	c.notify(EventCircuitSuccess, map[string]interface{}{"circuit": c.name})

	if cacheKey != "" && c.cache != nil {
		if err := c.cache.Write(ctx, cacheKey, value, opts.CacheExpiresIn); err != nil {
			c.notify(EventCacheFailure, map[string]interface{}{"circuit": c.name, "key": cacheKey, "error": err})
		} else {
			due := now + opts.CacheRefreshesAfter.Seconds()
			_ = c.cache.Write(ctx, refreshMarkerKey(cacheKey), due, opts.CacheExpiresIn)
			c.notify(EventCacheWrite, map[string]interface{}{"circuit": c.name, "key": cacheKey})
		}
	}

	_ = haveCached
	_ = cachedValue
	return Ok[interface{}](value)
}

func (c *Circuit) onFailure(
	ctx context.Context, view CircuitView, opts *Options, now float64, wasHalfOpen bool,
	prevStatus *Status, cacheKey string, callErr error, haveCached bool, cachedValue interface{},
) Result[interface{}] {
	if !opts.ErrorClassifier(callErr) {
		// Not a circuit failure: not in errors, or excluded. Rethrow
		// unwrapped per spec §4.1 step 6.
		return Err[interface{}](callErr)
	}

	newStatus, err := c.storage.Entry(ctx, view, now, false, prevStatus)
	if err != nil {
		c.notify(EventStorageFailure, map[string]interface{}{"circuit": c.name, "action": "entry", "error": err})
	}
	c.notify(EventCircuitFailure, map[string]interface{}{"circuit": c.name, "error": callErr})

	tripped := false
	if wasHalfOpen {
		reopened, err := c.storage.Reopen(ctx, view, now, prevStatus.OpenedAt)
		if err != nil {
			c.notify(EventStorageFailure, map[string]interface{}{"circuit": c.name, "action": "reopen", "error": err})
		} else if reopened {
			c.notify(EventCircuitReopened, map[string]interface{}{"circuit": c.name})
			tripped = true
		}
	} else if newStatus != nil && newStatus.FailsThreshold() {
		opened, err := c.storage.Open(ctx, view, now)
		if err != nil {
			c.notify(EventStorageFailure, map[string]interface{}{"circuit": c.name, "action": "open", "error": err})
		} else if opened {
			c.notify(EventCircuitOpened, map[string]interface{}{"circuit": c.name})
			tripped = true
		}
	}

	if haveCached {
		return Ok[interface{}](cachedValue)
	}
	if tripped {
		return Err[interface{}](NewCircuitTrippedError(c.name, callErr))
	}
	return Err[interface{}](NewCircuitFailureError(c.name, callErr))
}

// LockOpen pins the circuit open, rejecting all execution until Unlock.
func (c *Circuit) LockOpen(ctx context.Context) error {
	opts := c.ensureOptions(ctx)
	return c.storage.Lock(ctx, c.view(opts), LockOpen)
}

// LockClosed pins the circuit closed, permitting execution regardless of
// failure history.
func (c *Circuit) LockClosed(ctx context.Context) error {
	opts := c.ensureOptions(ctx)
	return c.storage.Lock(ctx, c.view(opts), LockClosed)
}

// Unlock clears any administrative lock.
func (c *Circuit) Unlock(ctx context.Context) error {
	opts := c.ensureOptions(ctx)
	return c.storage.Unlock(ctx, c.view(opts))
}

// Reset clears history, locks, and opened_at, returning the circuit to
// Closed.
func (c *Circuit) Reset(ctx context.Context) error {
	opts := c.ensureOptions(ctx)
	return c.storage.Reset(ctx, c.view(opts))
}

// Status returns a point-in-time snapshot of the circuit's derived state.
func (c *Circuit) Status(ctx context.Context) (*Status, error) {
	opts := c.ensureOptions(ctx)
	return c.storage.Status(ctx, c.view(opts))
}

// History returns the full retained sample, oldest first.
func (c *Circuit) History(ctx context.Context) ([]Entry, error) {
	opts := c.ensureOptions(ctx)
	return c.storage.History(ctx, c.view(opts))
}
