package core

import (
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestReviewErrorMapperCategories(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		status   int
	}{
		{
			"already_approved",
			fmt.Errorf("actor: %w: alice", ErrAlreadyApproved),
			goerrors.CategoryConflict,
			ReviewErrorAlreadyApproved,
			http.StatusConflict,
		},
		{
			"illegal_transition",
			fmt.Errorf("%w: approved -> ready_for_review", ErrInvalidRFCStatusTransition),
			goerrors.CategoryConflict,
			ReviewErrorIllegalTransition,
			http.StatusConflict,
		},
		{
			"stream_not_found",
			fmt.Errorf("lookup: %w", ErrStreamNotFound),
			goerrors.CategoryNotFound,
			ReviewErrorNotFound,
			http.StatusNotFound,
		},
		{
			"rate_limited",
			fmt.Errorf("nudge rate limit exceeded"),
			goerrors.CategoryRateLimit,
			ReviewErrorRateLimited,
			http.StatusTooManyRequests,
		},
		{
			"persistence",
			fmt.Errorf("actor: persist stream %q: connection reset", "stream-1"),
			goerrors.CategoryInternal,
			ReviewErrorPersistence,
			http.StatusInternalServerError,
		},
		{
			"bad_input",
			fmt.Errorf("%w: stream id is required", ErrInvalidEvent),
			goerrors.CategoryBadInput,
			ReviewErrorBadInput,
			http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := reviewErrorMapper(tc.err)
			if mapped == nil {
				t.Fatal("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, mapped.Category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, mapped.TextCode)
			}
			if mapped.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, mapped.Code)
			}
		})
	}
}

func TestReviewErrorMapperPreservesRichErrors(t *testing.T) {
	original := goerrors.New("quota exhausted", goerrors.CategoryRateLimit)
	mapped := reviewErrorMapper(original)
	if mapped == nil || mapped.Category != goerrors.CategoryRateLimit {
		t.Fatalf("expected category preserved, got %+v", mapped)
	}
	if mapped.TextCode != ReviewErrorRateLimited {
		t.Fatalf("expected default text code filled in, got %s", mapped.TextCode)
	}
	if mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("expected http status filled in, got %d", mapped.Code)
	}
}

func TestReviewErrorMapperNil(t *testing.T) {
	if reviewErrorMapper(nil) != nil {
		t.Fatal("nil error should map to nil")
	}
}
