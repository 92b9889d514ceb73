// Package coreerr defines the closed error-kind taxonomy propagated across
// CORE component boundaries.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind is the closed enum of error categories CORE components propagate.
type Kind string

const (
	// TransientNetwork is retryable; the orchestrator retry policy applies.
	TransientNetwork Kind = "transient_network"
	// PermanentValidation is a bad payload or schema mismatch; DLQ
	// immediately, retrying would never help.
	PermanentValidation Kind = "permanent_validation"
	// DependencyUnavailable covers state-store 5xx and an open circuit
	// breaker; retryable.
	DependencyUnavailable Kind = "dependency_unavailable"
	// Timeout is a per-call deadline exceeded; retryable.
	Timeout Kind = "timeout"
	// GraphInvariant is an unrecoverable reducer orphan; logged critical,
	// the graph aborts, and the orchestrator treats it as retryable once
	// before DLQing.
	GraphInvariant Kind = "graph_invariant"
	// Cancelled is cooperative shutdown; re-queue with no ack and no
	// retry-count bump.
	Cancelled Kind = "cancelled"
)

// IsRetryable reports whether the orchestrator's retry policy should be
// applied for an error of this kind.
func (k Kind) IsRetryable() bool {
	switch k {
	case TransientNetwork, DependencyUnavailable, Timeout, GraphInvariant:
		return true
	default:
		return false
	}
}

// CoreError is a kind-tagged error carrying the underlying cause.
type CoreError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// New constructs a CoreError of the given kind.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap constructs a CoreError of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *CoreError,
// defaulting to TransientNetwork for unrecognized errors so an unexpected
// failure still participates in the retry/DLQ policy rather than being
// silently dropped.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return TransientNetwork
}
