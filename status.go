package faulty

// State is the stored half of a circuit's state machine. The third,
// observable-only state (half-open) is always derived, never stored
// (spec §3, §4.4).
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// LockState pins a circuit open or closed regardless of its failure
// history (spec §3).
type LockState string

const (
	LockNone   LockState = ""
	LockOpen   LockState = "open"
	LockClosed LockState = "closed"
)

// Status is an immutable, point-in-time snapshot of a circuit's derived
// state (spec §3). It is computed once by a Storage backend's Status
// method and never recomputed lazily.
type Status struct {
	Name        string
	State       State
	Lock        LockState
	OpenedAt    float64 // 0 means absent
	HasOpenedAt bool
	Now         float64
	CoolDown    float64 // seconds
	FailureRate float64
	SampleSize  int
	Options     *Options
	Stub        bool // true if this Status is a stand-in (FaultTolerantProxy, a disabled Instance, or a failed Status read), not backend state
}

// Open reports whether the circuit is open and still cooling down.
func (s Status) Open() bool {
	return s.State == StateOpen && !s.coolDownElapsed()
}

// HalfOpen reports whether the circuit is open but its cool-down has
// elapsed, so a single probe should be allowed through.
func (s Status) HalfOpen() bool {
	return s.State == StateOpen && s.coolDownElapsed()
}

// Closed reports whether the stored state is closed (independent of
// locks).
func (s Status) Closed() bool {
	return s.State == StateClosed
}

func (s Status) coolDownElapsed() bool {
	if !s.HasOpenedAt {
		// Missing opened_at while open is repaired by assuming maximum
		// plausible age, per spec §4.4 — treat cool-down as elapsed.
		return true
	}
	return s.OpenedAt+s.CoolDown <= s.Now
}

// LockedOpen reports whether an administrative lock pins the circuit
// open.
func (s Status) LockedOpen() bool { return s.Lock == LockOpen }

// LockedClosed reports whether an administrative lock pins the circuit
// closed.
func (s Status) LockedClosed() bool { return s.Lock == LockClosed }

// CanRun is the canonical gate predicate from spec §3:
// ¬locked_open ∧ (closed ∨ locked_closed ∨ half_open).
func (s Status) CanRun() bool {
	if s.LockedOpen() {
		return false
	}
	return s.Closed() || s.LockedClosed() || s.HalfOpen()
}

// FailsThreshold reports whether the observed sample meets or exceeds both
// the configured sample and rate thresholds (spec §3).
func (s Status) FailsThreshold() bool {
	if s.Options == nil {
		return false
	}
	return s.SampleSize >= s.Options.SampleThreshold && s.FailureRate >= s.Options.RateThreshold
}
