package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"almanac/api/internal/docstore"
	"almanac/api/internal/review"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			"domain error passes through",
			&review.DomainError{Status: http.StatusConflict, Code: "CONFLICT", Message: "already resolved"},
			http.StatusConflict, "CONFLICT",
		},
		{
			"wrapped domain error",
			fmt.Errorf("resolve: %w", &review.DomainError{Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: "bad"}),
			http.StatusUnprocessableEntity, "VALIDATION_ERROR",
		},
		{
			"store not found",
			fmt.Errorf("get: %w", docstore.ErrNotFound),
			http.StatusNotFound, "NOT_FOUND",
		},
		{
			"transient storage",
			fmt.Errorf("submit: %w", &review.TransientStorageError{Err: docstore.ErrTxConflict}),
			http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE",
		},
		{
			"unknown",
			errors.New("boom"),
			http.StatusInternalServerError, "INTERNAL",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code, _, _ := mapError(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("mapError = %d %s, want %d %s", status, code, tc.status, tc.code)
			}
		})
	}
}
