// api/errors/policy_errors.go
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrPolicyNotFound    = errors.New("policy not found")
	ErrDatabaseOperation = errors.New("database operation failed")
	ErrInvalidPolicyData = errors.New("invalid policy data")
	ErrPolicyConflict    = errors.New("policy already exists")
	ErrInternalServer    = errors.New("internal server error")
	ErrInvalidPagination = errors.New("invalid pagination parameters")
)

// ValidationError rejects malformed policy or condition data at write
// time, before persistence. Field names the offending input.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Detail)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPolicyData
}

func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Detail: fmt.Sprintf(format, args...)}
}
