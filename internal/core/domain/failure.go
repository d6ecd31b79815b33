package domain

import "fmt"

// FailureReason categorizes why an operation against a backend failed.
// Classification happens exactly once, at the point the error is first
// caught; everything downstream trusts the assigned reason.
type FailureReason string

const (
	FailureNone           FailureReason = "NONE" // sentinel, "no failure"
	FailureAuth           FailureReason = "AUTH"
	FailureNetwork        FailureReason = "NETWORK"
	FailureInternal       FailureReason = "INTERNAL"
	FailureTimeout        FailureReason = "TIMEOUT"
	FailureCircuitBreaker FailureReason = "CIRCUIT_BREAKER"
	FailureUnknown        FailureReason = "UNKNOWN"
)

// ClassifiedError wraps an underlying error together with its assigned
// FailureReason. Once wrapped, the reason travels with the error and is
// never re-derived.
type ClassifiedError struct {
	Reason FailureReason
	Err    error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failure", e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewClassifiedError attaches a reason to err.
func NewClassifiedError(reason FailureReason, err error) *ClassifiedError {
	return &ClassifiedError{Reason: reason, Err: err}
}
