package engine

import "fmt"

// ValidationError reports malformed user input; Hint is surfaced verbatim
// with corrective guidance.
type ValidationError struct {
	Field string
	Hint  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Hint)
}

// NotFoundError reports an unknown entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError reports a duplicate submission, an already-linked identity
// or an already-decided approval. Surfaced as "already done" rather than a
// generic failure.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return e.Reason
}

// StorageError wraps persistence failures; surfaced as a generic
// retry-later message with the operation aborted.
type StorageError struct {
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}
