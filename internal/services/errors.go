package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classifying failures across the pipeline.
//
// ErrTransient covers external failures worth retrying (network timeouts,
// rate limiting). ErrNoResult is a permanent lookup miss: recorded on the
// candidate, surfaced in reports, never retried automatically. ErrInvariant
// marks an operation rejected before any write because it would corrupt
// directory state. ErrNotFound and ErrValidation cover bad identifiers and
// bad operator input.
var (
	ErrTransient     = errors.New("transient failure")
	ErrNoResult      = errors.New("no result")
	ErrInvariant     = errors.New("invariant violation")
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
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

// IsTransient reports whether an error should be retried with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsNoResult reports whether an error is a permanent lookup miss.
func IsNoResult(err error) bool {
	return errors.Is(err, ErrNoResult)
}

// IsInvariant reports whether an error is a rejected invariant violation.
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant)
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
