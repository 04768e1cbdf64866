// Package domain defines the protocol model for lime-go.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a protocol error with a structured error code.
// Codes follow the LM-<AREA>-<NNNN> format; the last four digits mirror the
// closest HTTP status.
type DomainError struct {
	Code    string // Error code (e.g., "LM-STATE-4090")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Channel Errors (STATE, CHAN, SESS)
// ============================================================================

var (
	// ErrInvalidState indicates an operation was attempted in the wrong state.
	ErrInvalidState = NewDomainError("LM-STATE-4090", "invalid state")

	// ErrConcurrentReceive indicates a second receive for the same envelope kind
	// was started while one is still pending.
	ErrConcurrentReceive = NewDomainError("LM-CHAN-4091", "a receive operation is already pending")

	// ErrChannelClosed indicates the underlying transport is closed.
	ErrChannelClosed = NewDomainError("LM-CHAN-5030", "channel closed")

	// ErrSessionProtocol indicates a malformed or unexpected session envelope.
	ErrSessionProtocol = NewDomainError("LM-SESS-4001", "session protocol violation")

	// ErrAuthRoundtripsExceeded indicates the authentication roundtrip budget is spent.
	ErrAuthRoundtripsExceeded = NewDomainError("LM-SESS-4290", "authentication roundtrips exceeded")
)

// ============================================================================
// Command Errors (CMD)
// ============================================================================

var (
	// ErrCorrelationMismatch indicates a command response carried a different id.
	ErrCorrelationMismatch = NewDomainError("LM-CMD-5020", "command correlation mismatch")

	// ErrRemoteFailure indicates the remote peer answered with a failure reason.
	ErrRemoteFailure = NewDomainError("LM-CMD-5021", "remote failure")

	// ErrInvalidCommandResponse indicates a failed response without any reason.
	ErrInvalidCommandResponse = NewDomainError("LM-CMD-5022", "an invalid command response was received")
)

// ============================================================================
// Bridge Errors (PROC)
// ============================================================================

var (
	// ErrProcessorNotFound indicates no processor matched the request.
	ErrProcessorNotFound = NewDomainError("LM-PROC-4040", "processor not found")

	// ErrProcessorExecution indicates a processor failed while handling a request.
	ErrProcessorExecution = NewDomainError("LM-PROC-5000", "processor execution failed")
)

// ============================================================================
// Argument / System Errors (ARG, SYS)
// ============================================================================

var (
	// ErrInvalidArgument indicates a nil or empty required argument.
	ErrInvalidArgument = NewDomainError("LM-ARG-4000", "invalid argument")

	// ErrTimeout indicates a bounded wait was cancelled or timed out.
	ErrTimeout = NewDomainError("LM-SYS-4080", "operation timed out")

	// ErrUnknownScheme indicates an authentication scheme with no registered constructor.
	ErrUnknownScheme = NewDomainError("LM-SYS-4150", "unknown authentication scheme")

	// ErrMalformedEnvelope indicates an envelope that could not be decoded.
	ErrMalformedEnvelope = NewDomainError("LM-SYS-4001", "malformed envelope")
)

// NewArgumentError returns an ErrInvalidArgument naming the argument.
func NewArgumentError(name, problem string) *DomainError {
	return ErrInvalidArgument.WithDetails(name + ": " + problem)
}

// NewTimeoutError wraps a context error into ErrTimeout.
func NewTimeoutError(operation string, cause error) *DomainError {
	return ErrTimeout.WithDetails(operation).WithCause(cause)
}

// IsTimeout reports whether err is a timeout or a context cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// InvalidStateError is returned when an operation precondition on the state
// machine does not hold. The caller's state is left untouched.
type InvalidStateError struct {
	Operation string
	Current   string
	Required  []string
}

// NewInvalidStateError builds an InvalidStateError from any stringers.
func NewInvalidStateError[S fmt.Stringer](operation string, current S, required ...S) *InvalidStateError {
	names := make([]string, len(required))
	for i, r := range required {
		names[i] = r.String()
	}
	return &InvalidStateError{
		Operation: operation,
		Current:   current.String(),
		Required:  names,
	}
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	details := fmt.Sprintf("cannot %s in the '%s' state", e.Operation, e.Current)
	if len(e.Required) > 0 {
		details += " (required: " + strings.Join(e.Required, ", ") + ")"
	}
	return ErrInvalidState.WithDetails(details).Error()
}

// Unwrap allows errors.Is(err, ErrInvalidState).
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// RemoteFailureError carries the reason returned by the remote peer.
type RemoteFailureError struct {
	Code        int
	Description string
}

// NewRemoteFailureError converts a reason into a RemoteFailureError.
func NewRemoteFailureError(r *Reason) *RemoteFailureError {
	return &RemoteFailureError{Code: r.Code, Description: r.Description}
}

// Error implements the error interface.
func (e *RemoteFailureError) Error() string {
	return ErrRemoteFailure.WithDetails(fmt.Sprintf("code %d: %s", e.Code, e.Description)).Error()
}

// Unwrap allows errors.Is(err, ErrRemoteFailure).
func (e *RemoteFailureError) Unwrap() error {
	return ErrRemoteFailure
}

// Reason returns the failure as a protocol reason.
func (e *RemoteFailureError) Reason() *Reason {
	return &Reason{Code: e.Code, Description: e.Description}
}
