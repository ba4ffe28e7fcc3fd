package app

import (
	"errors"
	"net/http"

	"almanac/api/internal/docstore"
	"almanac/api/internal/review"
)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *review.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	var transient *review.TransientStorageError
	if errors.As(err, &transient) {
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage temporarily unavailable, retry the request", nil
	}
	return http.StatusInternalServerError, "INTERNAL", "Internal error", nil
}
