package faulty

import "fmt"

// Result is a checked sum of a successful value or an error, returned by
// Circuit.TryRun. Errors coming out of a Circuit may be a *CircuitError
// (counted failures the circuit itself raised) or a passthrough error
// (one that did not match Options.Errors/Exclude and propagates
// transparently, per spec §4.1/§7) — Result carries either uniformly.
// "Checked" in the sense that Value and Error report through their bool
// which variant is held, and Unwrap/UnwrapErr on the wrong variant panic
// with ErrWrongResult instead of returning a zero value, standing in for
// the source library's runtime unchecked-access flag (spec §9).
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Err wraps a failure.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// IsOk reports whether the Result holds a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// IsErr reports whether the Result holds an error.
func (r Result[T]) IsErr() bool { return r.err != nil }

// Value returns the successful value and true, or the zero value and false
// if this Result holds an error.
func (r Result[T]) Value() (T, bool) {
	if r.err != nil {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Error returns the held error and true, or nil and false if this Result
// holds a value.
func (r Result[T]) Error() (error, bool) {
	if r.err == nil {
		return nil, false
	}
	return r.err, true
}

// Unwrap returns the value, or panics wrapping ErrWrongResult if this
// Result holds an error. Use only when IsOk() has already been checked,
// or when a panic on failure is the desired behavior.
func (r Result[T]) Unwrap() T {
	if r.err != nil {
		panic(fmt.Errorf("faulty: Unwrap called on error Result: %w: %w", ErrWrongResult, r.err))
	}
	return r.value
}

// UnwrapOr returns the value, or fallback if this Result holds an error.
func (r Result[T]) UnwrapOr(fallback T) T {
	if r.err != nil {
		return fallback
	}
	return r.value
}

// UnwrapErr returns the error, or panics wrapping ErrWrongResult if this
// Result holds a value.
func (r Result[T]) UnwrapErr() error {
	if r.err == nil {
		panic(ErrWrongResult)
	}
	return r.err
}
