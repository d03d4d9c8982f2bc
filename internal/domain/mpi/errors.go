package mpi

import "fmt"

// ValidationError reports missing or invalid input rejected before any state
// change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DuplicateError reports an (external patient id, source system) collision on
// create.
type DuplicateError struct {
	ExternalPatientID string
	SourceSystem      string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("identity already exists for external id %q in source system %q",
		e.ExternalPatientID, e.SourceSystem)
}

// NotFoundError reports an operation targeting a record that does not exist.
type NotFoundError struct {
	Kind string // "identity", "match", "alias"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
