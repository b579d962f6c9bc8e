// api/errors/enforcement_errors.go
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrDirectiveRejected = errors.New("enforcement directive rejected")
	ErrDirectiveTimeout  = errors.New("enforcement directive timed out")
)

// EnforcementApplyError records a directive the external primitive
// refused after all retries. The device is held at its last
// successfully applied state.
type EnforcementApplyError struct {
	MAC      string
	Action   string
	Attempts int
	Err      error
}

func (e *EnforcementApplyError) Error() string {
	return fmt.Sprintf("enforcement apply failed for %s (action %s) after %d attempts: %v",
		e.MAC, e.Action, e.Attempts, e.Err)
}

func (e *EnforcementApplyError) Unwrap() error { return e.Err }
