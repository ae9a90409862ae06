package pushover

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a response body is missing, is not a
// JSON object, or carries a value of the wrong type for a known key.
var ErrMalformedResponse = errors.New("pushover: malformed response")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// Error is the single failure kind returned by Client. Service-side rejections
// are not errors; they come back as a result with Status 0 and Errors set.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "pushover " + e.Op + " failed"
	}
	return "pushover " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
