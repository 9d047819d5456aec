package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies stage failures for retry policy and audit.
type ErrorKind string

const (
	// KindTransient failures may succeed on retry.
	KindTransient ErrorKind = "TRANSIENT"
	// KindPermanent failures will not improve with retries.
	KindPermanent ErrorKind = "PERMANENT"
	// KindTimeout marks a per-stage deadline hit; retried like transient.
	KindTimeout ErrorKind = "TIMEOUT"
	// KindConfiguration marks operator error; the run aborts.
	KindConfiguration ErrorKind = "CONFIGURATION"
)

// StageFailure wraps a stage error with its retry classification.
type StageFailure struct {
	Kind ErrorKind
	Err  error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return &StageFailure{Kind: KindTransient, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error {
	return &StageFailure{Kind: KindPermanent, Err: err}
}

// Transientf builds a retryable failure from a format string.
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// Permanentf builds a non-retryable failure from a format string.
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// ConfigurationError marks an operator mistake that should abort the run
// rather than fail a stage.
func ConfigurationError(err error) error {
	return &StageFailure{Kind: KindConfiguration, Err: err}
}

// KindOf classifies an arbitrary stage error. Unclassified errors are
// treated as transient so a flaky collaborator gets its retries.
func KindOf(err error) ErrorKind {
	var failure *StageFailure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransient
}

// Retryable reports whether the failure kind permits another attempt.
func Retryable(kind ErrorKind) bool {
	return kind == KindTransient || kind == KindTimeout
}
