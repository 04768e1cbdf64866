package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("LM-TEST-1000", "test message"),
			expected: "[LM-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("LM-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[LM-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("LM-TEST-1000", "message 1")
	err2 := NewDomainError("LM-TEST-1000", "message 2") // Same code, different message
	err3 := NewDomainError("LM-TEST-1001", "message 1") // Different code

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_WithCause(t *testing.T) {
	original := NewDomainError("LM-TEST-1000", "original message")
	cause := fmt.Errorf("root cause")
	withCause := original.WithCause(cause)

	if original.Cause != nil {
		t.Error("WithCause should not modify original error")
	}
	if errors.Unwrap(withCause) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(withCause), cause)
	}
	if withCause.Code != original.Code {
		t.Errorf("Code = %q, want %q", withCause.Code, original.Code)
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrCorrelationMismatch, "LM-CMD-5020"},
		{"wrapped domain error", fmt.Errorf("wrapped: %w", ErrInvalidArgument), "LM-ARG-4000"},
		{"regular error", fmt.Errorf("regular error"), ""},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestInvalidStateError(t *testing.T) {
	err := NewInvalidStateError("send established session", SessionFinished, SessionNew, SessionNegotiating)

	if !errors.Is(err, ErrInvalidState) {
		t.Error("errors.Is(err, ErrInvalidState) should be true")
	}
	if err.Current != "finished" {
		t.Errorf("Current = %q, want finished", err.Current)
	}
	msg := err.Error()
	for _, want := range []string{"LM-STATE-4090", "finished", "new, negotiating"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	var target *InvalidStateError
	if !errors.As(fmt.Errorf("op: %w", err), &target) {
		t.Error("errors.As should find InvalidStateError through wrapping")
	}
}

func TestRemoteFailureError(t *testing.T) {
	err := NewRemoteFailureError(NewReason(ReasonCommandResourceNotFound, "not found"))

	if !errors.Is(err, ErrRemoteFailure) {
		t.Error("errors.Is(err, ErrRemoteFailure) should be true")
	}
	if err.Code != 67 || err.Description != "not found" {
		t.Errorf("got code=%d description=%q", err.Code, err.Description)
	}
	if r := err.Reason(); r.Code != err.Code {
		t.Errorf("Reason().Code = %d, want %d", r.Code, err.Code)
	}
}

func TestNewTimeoutError(t *testing.T) {
	err := NewTimeoutError("authenticate", context.DeadlineExceeded)

	if !IsTimeout(err) {
		t.Error("IsTimeout should be true")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error should wrap the context error")
	}
}
