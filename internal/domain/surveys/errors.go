package surveys

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch indicates an existing CSV store was written with a different column set.
var ErrSchemaMismatch = errors.New("csv header does not match survey schema")

// ErrStoreClosed is returned by stores after Close.
var ErrStoreClosed = errors.New("response store closed")

// ValidationError rejects a submission. Not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid submission: " + e.Reason
	}
	return fmt.Sprintf("invalid submission: %s: %s", e.Field, e.Reason)
}

// PersistenceError means a submission could not be stored. The client may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
