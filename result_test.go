package faulty

import (
	"errors"
	"testing"
)

func TestResultOk(t *testing.T) {
	r := Ok[int](42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("expected Ok result to report IsOk")
	}
	v, ok := r.Value()
	if !ok || v != 42 {
		t.Errorf("Value() = (%v, %v), want (42, true)", v, ok)
	}
	if _, ok := r.Error(); ok {
		t.Error("Error() should report false on an Ok result")
	}
	if got := r.UnwrapOr(-1); got != 42 {
		t.Errorf("UnwrapOr() = %d, want 42", got)
	}
}

func TestResultErr(t *testing.T) {
	cause := errors.New("boom")
	r := Err[int](cause)
	if r.IsOk() || !r.IsErr() {
		t.Fatal("expected Err result to report IsErr")
	}
	if _, ok := r.Value(); ok {
		t.Error("Value() should report false on an Err result")
	}
	err, ok := r.Error()
	if !ok || !errors.Is(err, cause) {
		t.Errorf("Error() = (%v, %v), want (%v, true)", err, ok, cause)
	}
	if got := r.UnwrapOr(-1); got != -1 {
		t.Errorf("UnwrapOr() = %d, want -1", got)
	}
}

func TestResultUnwrapPanicsOnErr(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected Unwrap to panic on an Err result")
		}
	}()
	Err[int](errors.New("boom")).Unwrap()
}

func TestResultUnwrapErrPanicsOnOk(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected UnwrapErr to panic on an Ok result")
		}
	}()
	Ok[int](1).UnwrapErr()
}
