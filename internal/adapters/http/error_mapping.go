package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound), domain.IsKind(err, domain.ErrDocumentTypeNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrEntryRemoved):
		return http.StatusGone
	case domain.IsKind(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrStorageUnavailable):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// mapUploadErrorToHTTPStatus treats anything the file itself caused as
// unprocessable so clients can tell a bad file from a bad request.
func mapUploadErrorToHTTPStatus(err error) int {
	var userErr *domain.UserError
	if errors.As(err, &userErr) {
		switch userErr.Category {
		case domain.FailureInvalidFile, domain.FailureCorrupted:
			return http.StatusUnprocessableEntity
		case domain.FailureTimeout, domain.FailureNetwork:
			return http.StatusBadGateway
		}
	}
	return mapErrorToHTTPStatus(err)
}

// errorMessage never exposes wrapped provider or driver text for server
// side failures.
func errorMessage(err error, status int) string {
	var userErr *domain.UserError
	if errors.As(err, &userErr) && userErr.Message != "" {
		return userErr.Message
	}
	if status >= http.StatusInternalServerError {
		return domain.UserMessage(err)
	}
	return err.Error()
}
