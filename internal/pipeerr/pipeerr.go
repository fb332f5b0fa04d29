// Package pipeerr defines the pipeline's error taxonomy and a classifier
// that buckets errors into retry/escalation categories, generalized from a
// two-bucket transient/logic heuristic into six domain-specific kinds.
package pipeerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for retry and escalation policy.
type Kind string

const (
	// Transient is retryable: I/O, lock contention, executor timeout.
	Transient Kind = "TRANSIENT"
	// Input is non-retryable: malformed/incomplete raw file, bad timestamp.
	Input Kind = "INPUT"
	// MissingCalibration: no CalTable satisfies validity/extrapolation rules.
	MissingCalibration Kind = "MISSING_CALIBRATION"
	// ExecutorFailure: external tool reports a hard failure.
	ExecutorFailure Kind = "EXECUTOR_FAILURE"
	// DataInconsistency: registry vs filesystem disagreement.
	DataInconsistency Kind = "DATA_INCONSISTENCY"
	// InvariantViolation: a data-model invariant was breached; fatal.
	InvariantViolation Kind = "INVARIANT_VIOLATION"
)

// Retryable reports whether tasks failing with this kind should be retried.
func (k Kind) Retryable() bool {
	return k == Transient
}

// Fatal reports whether this kind means the system must halt writes on the
// affected entity rather than merely failing the current task.
func (k Kind) Fatal() bool {
	return k == InvariantViolation
}

// Error wraps an underlying error with a classification kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error under the given kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ClassifyOf extracts the Kind from err if it (or something it wraps) is a
// *Error; otherwise it falls back to Classify's text-heuristic bucketing.
func ClassifyOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Classify(err)
}

// transientHints are substrings that, when found in an error's message,
// indicate a transient condition worth retrying: I/O and lock phrases
// relevant to the state store and executor subprocess boundary.
var transientHints = []string{
	"timeout",
	"context deadline",
	"temporar",
	"connection",
	"unavailable",
	"network",
	"i/o",
	"lock",
	"busy",
	"econnreset",
	"broken pipe",
}

// Classify applies a text-heuristic bucketing for errors with no explicit
// *Error wrapping (e.g. errors surfaced from a raw executor subprocess).
// Unmatched errors default to ExecutorFailure, the most conservative
// non-retryable bucket for an opaque collaborator failure.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return Transient
		}
	}
	return ExecutorFailure
}
