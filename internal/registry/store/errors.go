package store

import (
	"fmt"

	"github.com/convsync/sync-service/internal/model"
)

// NotFoundError indicates the document does not exist in the collection.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s document not found: %s", e.Collection, e.ID)
}

// ValidationError indicates a client-side validation failure. No store
// mutation happened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates the three-way merge detected a concurrent edit to
// the same field. ServerDoc carries the current server document so the
// client can re-base and retry.
type ConflictError struct {
	Message   string
	ServerDoc model.Document
}

func (e *ConflictError) Error() string {
	return e.Message
}

// RetryableError indicates a transient store failure. No partial write
// happened, so the caller may safely retry.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }
