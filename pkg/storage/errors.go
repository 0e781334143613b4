package storage

import (
	"errors"
	"fmt"
)

var (
	// Creation errors

	// ErrCollision if an item already exists within the store.
	ErrCollision = errors.New("item already exists")

	// Read errors

	ErrInvalidContinuationToken = errors.New("invalid continuation token")

	// ErrMismatchedPageFilter if a continuation token is presented together
	// with a different filter than the one it was issued under.
	ErrMismatchedPageFilter = errors.New("mismatched filter in request and continuation token")

	// Write errors

	// ErrInvalidWriteInput if a mutation request is malformed: an empty bulk
	// payload, a patch without an id, or a patch carrying no fields.
	ErrInvalidWriteInput = errors.New("invalid write input")

	// ErrTransactionalWriteFailed if a write lost a conflict against a
	// concurrent transaction.
	ErrTransactionalWriteFailed = errors.New("transactional write failed due to conflict")

	// ErrExceededBulkLimit if a bulk request carries more records than the
	// server accepts in one call.
	ErrExceededBulkLimit = errors.New("number of records exceeded the bulk update limit")

	// Shared errors

	ErrCancelled = errors.New("request has been cancelled")
	ErrNotFound  = errors.New("not found")
)

// ExceededBulkLimitError reports how many records were submitted against the
// allowed limit.
func ExceededBulkLimitError(limit, got int) error {
	return fmt.Errorf("%w: %d records submitted, limit is %d", ErrExceededBulkLimit, got, limit)
}

// EmptyPatchError flags a bulk record that names an id but changes nothing.
func EmptyPatchError(id string) error {
	return fmt.Errorf("record '%s' carries no field changes: %w", id, ErrInvalidWriteInput)
}
