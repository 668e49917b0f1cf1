package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := NewSkipped("duplicate")
	want := "SKIPPED: capture skipped: duplicate"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIs(t *testing.T) {
	err := NewNotFound("chunk at 2024-01-02 15:04")
	if !Is(err, ErrNotFound) {
		t.Error("Is(err, ErrNotFound) = false, want true")
	}
	if Is(err, ErrInternal) {
		t.Error("Is(err, ErrInternal) = true, want false")
	}
	if Is(stderrors.New("plain"), ErrNotFound) {
		t.Error("Is(plain error, ErrNotFound) = true, want false")
	}
	if Is(nil, ErrNotFound) {
		t.Error("Is(nil, ErrNotFound) = true, want false")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewTransient("captureFrame", cause)
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}

	wrapped := fmt.Errorf("tick: %w", err)
	var rErr *RetraceError
	if !stderrors.As(wrapped, &rErr) {
		t.Fatal("errors.As should find RetraceError through wrapping")
	}
	if rErr.Code != ErrTransient {
		t.Errorf("Code = %q, want %q", rErr.Code, ErrTransient)
	}
}

func TestCaptureExhaustedDetails(t *testing.T) {
	err := NewCaptureExhausted(3, stderrors.New("display asleep"))
	if err.Details["attempts"] != 3 {
		t.Errorf("Details[attempts] = %v, want 3", err.Details["attempts"])
	}
}

func TestNewInternalNil(t *testing.T) {
	err := NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}
