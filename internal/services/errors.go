package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("concurrent modification")
	ErrIO            = errors.New("workspace i/o error")
	ErrStaleJob      = errors.New("stale job")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the poller may retry the failed invocation.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrIO) || errors.Is(err, ErrTransient)
}

// FailureKind returns a short label for metrics and log hints.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrStaleJob):
		return "stale_job"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}

// MarkerForKind reverses FailureKind. Unknown labels yield nil.
func MarkerForKind(kind string) error {
	for _, marker := range []error{ErrConflict, ErrIO, ErrStaleJob, ErrValidation, ErrConfiguration, ErrNotFound, ErrTransient} {
		if FailureKind(marker) == kind {
			return marker
		}
	}
	return nil
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
