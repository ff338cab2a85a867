package errors

import "testing"

var errWrapped = New("wrapped error")

func TestWrap(t *testing.T) {
	err := Wrap(errWrapped, "Hello, Wrapped!")
	if err.Error() != "Hello, Wrapped!, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
	if !Is(err, errWrapped) {
		t.Fatalf("wrapped error should match sentinel")
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "ignored"); err != nil {
		t.Fatalf("wrapping nil should stay nil, got %+v", err)
	}
}

func TestInvariant(t *testing.T) {
	err := Invariant("filled exceeds quantity", struct{ ID uint64 }{ID: 7})
	if !IsInvariant(err) {
		t.Fatalf("expected invariant error, got %+v", err)
	}
	if IsInvariant(errWrapped) {
		t.Fatalf("plain error should not be invariant")
	}
}
