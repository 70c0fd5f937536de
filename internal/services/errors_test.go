package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sift/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "fetch", "download", "connection reset", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"fetch", "download", "connection reset"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "index", "write", "failed", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"transient", services.Wrap(services.ErrTransient, "s", "op", "m", nil), services.KindTransient},
		{"timeout", services.Wrap(services.ErrTimeout, "s", "op", "m", nil), services.KindTransient},
		{"deadline", context.DeadlineExceeded, services.KindTransient},
		{"validation", services.Wrap(services.ErrValidation, "s", "op", "m", nil), services.KindPermanent},
		{"configuration", services.Wrap(services.ErrConfiguration, "s", "op", "m", nil), services.KindPermanent},
		{"not found", services.Wrap(services.ErrNotFound, "s", "op", "m", nil), services.KindPermanent},
		{"permanent", services.Wrap(services.ErrPermanent, "s", "op", "m", nil), services.KindPermanent},
		{"skipped", services.ErrSkipped, services.KindSkipped},
		{"already exists", services.Wrap(services.ErrAlreadyExists, "s", "op", "m", nil), services.KindAlreadyExists},
		{"unclassified", errors.New("surprise"), services.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !services.Retryable(errors.New("unclassified")) {
		t.Fatal("unclassified errors must stay retryable")
	}
	if !services.Retryable(services.ErrTransient) {
		t.Fatal("transient errors must be retryable")
	}
	if services.Retryable(services.ErrValidation) {
		t.Fatal("validation errors must not be retryable")
	}
}

func TestCode(t *testing.T) {
	if code := services.Code(errors.New("surprise")); code != "unknown" {
		t.Fatalf("expected unknown code, got %q", code)
	}
	if code := services.Code(services.Wrap(services.ErrNotFound, "s", "op", "m", nil)); code != "not_found" {
		t.Fatalf("expected not_found code, got %q", code)
	}
	if code := services.Code(nil); code != "" {
		t.Fatalf("expected empty code for nil error, got %q", code)
	}
}
