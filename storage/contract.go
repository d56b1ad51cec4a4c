// Package storage provides concrete Storage backends and composable
// proxies implementing the contract faulty.Storage defines.
package storage

import "github.com/ParentSquare/faulty"

// Storage is the persistence contract every backend in this package
// implements. Defined in the root package to avoid an import cycle
// (Circuit needs the interface type directly); re-exported here so callers
// constructing backends don't need to import both packages under
// different names.
type Storage = faulty.Storage

// CircuitView, Status, Entry, State and LockState are re-exported for the
// same reason.
type (
	CircuitView = faulty.CircuitView
	Status      = faulty.Status
	Entry       = faulty.Entry
	State       = faulty.State
	LockState   = faulty.LockState
)

const (
	StateClosed = faulty.StateClosed
	StateOpen   = faulty.StateOpen
	LockNone    = faulty.LockNone
	LockOpen    = faulty.LockOpen
	LockClosed  = faulty.LockClosed
)

func nowSeconds(opts *faulty.Options) float64 {
	clk := opts.Clock
	if clk == nil {
		clk = faulty.RealClock
	}
	t := clk.Now()
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func computeStatus(c CircuitView, entries []Entry, state State, openedAt float64, hasOpenedAt bool, lock LockState, now float64) *Status {
	windowStart := now - c.Options.EvaluationWindow.Seconds()
	sampleSize, failureRate := faulty.WindowStats(entries, windowStart)
	return &Status{
		Name:        c.Name,
		State:       state,
		Lock:        lock,
		OpenedAt:    openedAt,
		HasOpenedAt: hasOpenedAt,
		Now:         now,
		CoolDown:    c.Options.CoolDown.Seconds(),
		FailureRate: failureRate,
		SampleSize:  sampleSize,
		Options:     c.Options,
	}
}
