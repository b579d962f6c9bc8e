// api/errors/trust_errors.go
package errors

import "errors"

var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrInvalidTrustData = errors.New("invalid trust data")
	ErrInvalidEventData = errors.New("invalid event data")
	ErrFeedUnavailable  = errors.New("event feed unavailable")
)
