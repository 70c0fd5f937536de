package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures worth retrying: network hiccups, rate
	// limits, lock contention.
	ErrTransient = errors.New("transient failure")
	// ErrTimeout marks deadline expiry; retryable.
	ErrTimeout = errors.New("timeout")
	// ErrPermanent marks failures that will not improve on retry.
	ErrPermanent = errors.New("permanent failure")
	// ErrValidation marks bad or missing upstream data; permanent.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or invalid configuration; permanent.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing external resource; permanent.
	ErrNotFound = errors.New("not found")
	// ErrSkipped signals a stage elected not to run. Not a failure.
	ErrSkipped = errors.New("stage skipped")
	// ErrAlreadyExists short-circuits a pipeline run as success-equivalent
	// when the work was already done.
	ErrAlreadyExists = errors.New("already exists")
)

// Kind buckets an error for control-flow decisions.
type Kind string

const (
	KindTransient     Kind = "transient"
	KindPermanent     Kind = "permanent"
	KindSkipped       Kind = "skipped"
	KindAlreadyExists Kind = "already_exists"
	KindUnknown       Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above; nil defaults to ErrTransient.
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

// Classify maps an error to its Kind. Unrecognized errors are KindUnknown,
// which callers must treat as retryable.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrSkipped):
		return KindSkipped
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrPermanent):
		return KindPermanent
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindUnknown
	}
}

// Retryable reports whether a failure should be attempted again.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindUnknown:
		return true
	default:
		return false
	}
}

// Code returns the stable error code persisted on the job record.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrSkipped):
		return "skipped"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermanent):
		return "permanent"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
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
