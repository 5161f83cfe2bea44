package firestore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name        string
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{"missing document", codes.NotFound, true, false, false},
		{"duplicate create", codes.AlreadyExists, false, true, false},
		{"transaction contention", codes.Aborted, false, true, false},
		{"failed precondition", codes.FailedPrecondition, false, true, false},
		{"backend outage", codes.Unavailable, false, false, true},
		{"quota exhausted", codes.ResourceExhausted, false, false, true},
		{"unclassified", codes.Internal, false, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("orders.create", status.Error(tc.code, "boom"))

			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound {
				t.Errorf("IsNotFound() = %v, want %v", repoErr.IsNotFound(), tc.notFound)
			}
			if repoErr.IsConflict() != tc.conflict {
				t.Errorf("IsConflict() = %v, want %v", repoErr.IsConflict(), tc.conflict)
			}
			if repoErr.IsUnavailable() != tc.unavailable {
				t.Errorf("IsUnavailable() = %v, want %v", repoErr.IsUnavailable(), tc.unavailable)
			}
		})
	}
}

func TestWrapErrorPassesThroughContextErrors(t *testing.T) {
	if err := WrapError("counters.next", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("counters.next", status.Error(codes.Canceled, "canceled")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected grpc Canceled to map to context.Canceled, got %v", err)
	}
	if err := WrapError("counters.next", status.Error(codes.DeadlineExceeded, "late")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected grpc DeadlineExceeded to map to context.DeadlineExceeded, got %v", err)
	}
}

func TestWrapErrorKeepsExistingClassification(t *testing.T) {
	inner := WrapError("", status.Error(codes.NotFound, "no such order"))
	outer := WrapError("orders.get", inner)

	var repoErr *Error
	if !errors.As(outer, &repoErr) {
		t.Fatalf("expected *Error, got %T", outer)
	}
	if !repoErr.IsNotFound() {
		t.Error("rewrapping must preserve the not-found classification")
	}
	if !strings.HasPrefix(repoErr.Error(), "orders.get:") {
		t.Errorf("rewrapping must supply the missing operation label, got %q", repoErr.Error())
	}
}

func TestWrapErrorNil(t *testing.T) {
	if err := WrapError("orders.create", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
