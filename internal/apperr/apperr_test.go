package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := New(KindFetch, "fetch", errors.New("connection refused"))
	wrapped := fmt.Errorf("item 3: %w", base)

	if got := KindOf(wrapped); got != KindFetch {
		t.Errorf("KindOf() = %q, want %q", got, KindFetch)
	}
	if !Is(wrapped, KindFetch) {
		t.Error("Is(wrapped, KindFetch) = false")
	}
	if got := wrapped.Error(); got != "item 3: fetch: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}

func TestNew_NilError(t *testing.T) {
	if err := New(KindDecode, "decode", nil); err != nil {
		t.Errorf("New(nil) = %v, want nil", err)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("parse", "missing url"), http.StatusBadRequest},
		{NotFound("jobs", "job not found"), http.StatusNotFound},
		{New(KindFetch, "get", errors.New("timeout")), http.StatusBadGateway},
		{New(KindStorage, "mkdir", errors.New("read-only")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
