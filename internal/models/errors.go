package models

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks network and rate-limit failures worth retrying.
	ErrTransient = errors.New("transient service error")
	// ErrPartialCapture marks a speaker whose captured audio is missing or unreadable.
	ErrPartialCapture = errors.New("partial capture")
	// ErrConfiguration marks missing credentials or destinations. Not retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrFinalizeTimeout is reported when a session closes before its results arrived.
	ErrFinalizeTimeout = errors.New("finalize wait timed out")
	// ErrNoFreeWorker is returned when the pool is exhausted.
	ErrNoFreeWorker = errors.New("no free workers")
)

type quotaError struct{}

func (quotaError) Error() string { return "quota exceeded" }

// Unwrap makes every quota error a transient error as well.
func (quotaError) Unwrap() error { return ErrTransient }

// ErrQuotaExceeded is a transient error that calls for a cooldown instead of an immediate retry.
var ErrQuotaExceeded error = quotaError{}

// Transient wraps err as a retryable service failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// QuotaExceeded wraps err as a quota or rate-limit failure.
func QuotaExceeded(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
}

// Configuration builds a configuration error.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err should be retried right away. Quota errors
// are excluded because they are handled by cooling down.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) && !errors.Is(err, ErrQuotaExceeded)
}
