// Package errors defines the client-facing error model: an HTTP status code
// plus a stable machine-readable code and a human-readable message that
// together serialize to the JSON error body.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/merchantd/merchantd/internal/export"
	"github.com/merchantd/merchantd/pkg/storage"
)

// EncodedError is a failed request's client-facing form.
type EncodedError struct {
	// HTTPStatusCode is the status the response is written with.
	HTTPStatusCode int

	// ErrorCode is the stable machine-readable code in the JSON body.
	ErrorCode string

	// Message is the human-readable summary in the JSON body.
	Message string
}

var _ error = (*EncodedError)(nil)

func (e *EncodedError) Error() string {
	return e.Message
}

func NewEncodedError(statusCode int, code, message string) *EncodedError {
	return &EncodedError{
		HTTPStatusCode: statusCode,
		ErrorCode:      code,
		Message:        message,
	}
}

// NewValidationError flags a caller-contract violation rejected before any
// work began.
func NewValidationError(message string) *EncodedError {
	return NewEncodedError(http.StatusBadRequest, "validation_error", message)
}

func NewNotFoundError(message string) *EncodedError {
	return NewEncodedError(http.StatusNotFound, "not_found", message)
}

func NewInternalError() *EncodedError {
	return NewEncodedError(http.StatusInternalServerError, "internal_error", "internal server error")
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteResponse writes the error status and its JSON body to w.
func (e *EncodedError) WriteResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Code: e.ErrorCode, Message: e.Message})
}

// FromError maps a storage, export or ratelimit layer failure to its
// client-facing form. Anything unrecognized becomes a generic internal error
// so internal failure detail never reaches a response body.
func FromError(err error) *EncodedError {
	var encoded *EncodedError
	if stderrors.As(err, &encoded) {
		return encoded
	}

	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		return NewNotFoundError("resource not found")
	case stderrors.Is(err, storage.ErrCollision):
		return NewEncodedError(http.StatusConflict, "conflict", storage.ErrCollision.Error())
	case stderrors.Is(err, storage.ErrInvalidContinuationToken):
		return NewEncodedError(http.StatusBadRequest, "invalid_continuation_token", storage.ErrInvalidContinuationToken.Error())
	case stderrors.Is(err, storage.ErrMismatchedPageFilter):
		return NewEncodedError(http.StatusBadRequest, "mismatched_page_filter", storage.ErrMismatchedPageFilter.Error())
	case stderrors.Is(err, storage.ErrInvalidWriteInput):
		return NewEncodedError(http.StatusBadRequest, "invalid_write_input", err.Error())
	case stderrors.Is(err, storage.ErrExceededBulkLimit):
		return NewEncodedError(http.StatusRequestEntityTooLarge, "bulk_limit_exceeded", err.Error())
	case stderrors.Is(err, storage.ErrTransactionalWriteFailed):
		return NewEncodedError(http.StatusConflict, "transactional_write_failed", err.Error())
	case stderrors.Is(err, export.ErrRecordLimitExceeded):
		return NewEncodedError(http.StatusUnprocessableEntity, "record_limit_exceeded", err.Error())
	default:
		return NewInternalError()
	}
}
