package faulty

import (
	"context"
	"time"
)

// CircuitView is what a Storage backend needs to know about the caller:
// the circuit's name and its current (possibly stale) options view. It
// replaces spec §4.2's generic "circuit" parameter.
type CircuitView struct {
	Name    string
	Options *Options
}

// Storage is the uniform persistence contract spec §4.2 defines. All
// methods must be safe for concurrent use. Transition methods (Open,
// Reopen, Close) report whether they performed the transition, so callers
// can guarantee at-most-one notification per crossing (spec §5).
type Storage interface {
	GetOptions(ctx context.Context, c CircuitView) (map[string]interface{}, bool, error)
	SetOptions(ctx context.Context, c CircuitView, opts map[string]interface{}) error

	// Entry appends (at, success) to the sample, trims to MaxSampleSize,
	// and — if prevStatus is non-nil — returns the updated Status computed
	// from the new entries plus the backend's current stored state
	// (prevStatus only selects whether a Status is returned; nil otherwise).
	Entry(ctx context.Context, c CircuitView, at float64, success bool, prevStatus *Status) (*Status, error)

	Open(ctx context.Context, c CircuitView, openedAt float64) (bool, error)
	Reopen(ctx context.Context, c CircuitView, newOpenedAt, expectedPrevOpenedAt float64) (bool, error)
	Close(ctx context.Context, c CircuitView) (bool, error)

	Lock(ctx context.Context, c CircuitView, state LockState) error
	Unlock(ctx context.Context, c CircuitView) error
	Reset(ctx context.Context, c CircuitView) error

	Status(ctx context.Context, c CircuitView) (*Status, error)
	History(ctx context.Context, c CircuitView) ([]Entry, error)
	List(ctx context.Context) ([]string, error)

	// FaultTolerant reports whether this backend promises not to raise on
	// normal-path operations.
	FaultTolerant() bool
}

// ProbeReserver is an optional capability a Storage backend may implement
// to claim exclusive rights to the single half-open probe spec §5 calls
// for across processes (§9's accepted weakness: "the interface hints at a
// reserve method that is unused" — this is that method, made real). A
// backend that doesn't implement it just never reserves; multiple
// processes may then race a half-open probe concurrently, which spec §9
// explicitly accepts.
type ProbeReserver interface {
	// ReserveProbe attempts to claim the half-open probe for this circuit
	// under the given token, valid for ttl. It returns true iff this call
	// claimed it (no other unexpired reservation exists).
	ReserveProbe(ctx context.Context, c CircuitView, token string, ttl time.Duration) (bool, error)
}
