package errs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
)

func TestClassString(t *testing.T) {
	tests := []struct {
		class Class
		want  string
	}{
		{ClassRetryable, "retryable"},
		{ClassFatal, "fatal"},
		{ClassUnknown, "unknown"},
		{Class(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.class.String(); got != tt.want {
				t.Errorf("Class.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassUnknown},
		{"plain", errors.New("boom"), ClassUnknown},
		{"connection", Connection("dial", io.EOF), ClassRetryable},
		{"authentication", Authentication("login", nil), ClassFatal},
		{"configuration", Configuration("load", os.ErrNotExist), ClassFatal},
		{"persistence", Persistence("save", os.ErrPermission), ClassFatal},
		{"wrapped connection", fmt.Errorf("start: %w", Connection("dial", io.EOF)), ClassRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMatchesKindAndCause(t *testing.T) {
	err := Persistence("save /tmp/db", os.ErrPermission)

	if !errors.Is(err, ErrPersistence) {
		t.Errorf("expected errors.Is(err, ErrPersistence)")
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("expected cause to be reachable through errors.Is")
	}
	if errors.Is(err, ErrConnection) {
		t.Errorf("persistence error must not match ErrConnection")
	}
	if !IsFatal(err) || IsRetryable(err) {
		t.Errorf("persistence error should be fatal only")
	}

	var e *Error
	if !errors.As(err, &e) || e.Op != "save /tmp/db" {
		t.Fatalf("errors.As did not expose *Error with op, got %#v", e)
	}
}

func TestErrorMessage(t *testing.T) {
	if got := Authentication("receive", nil).Error(); got != "receive: authentication error" {
		t.Errorf("unexpected message %q", got)
	}
	if got := Connection("dial", io.EOF).Error(); got != "dial: connection error: EOF" {
		t.Errorf("unexpected message %q", got)
	}
}
