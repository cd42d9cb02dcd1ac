package repositories

import "fmt"

// DuplicateError reports a unique field already held by another record.
type DuplicateError struct {
	Entity string
	Field  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s already in use", e.Entity, e.Field)
}

// IsNotFound implements RepositoryError.
func (e *DuplicateError) IsNotFound() bool { return false }

// IsConflict implements RepositoryError.
func (e *DuplicateError) IsConflict() bool { return true }

// IsUnavailable implements RepositoryError.
func (e *DuplicateError) IsUnavailable() bool { return false }
