package upstream

import (
	"errors"
	"fmt"
)

// ErrUpstreamTimeout is wrapped by Error when an upstream call exceeded its deadline.
var ErrUpstreamTimeout = errors.New("upstream timeout")

// Error describes a failed upstream call. Step names the pipeline stage
// ("nav", "view", "playurl", "stream") so callers can report where it failed.
type Error struct {
	Step       string
	StatusCode int    // HTTP status, 0 if the request never completed
	Code       int    // envelope code, 0 if not applicable
	Message    string // envelope message
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("upstream %s: %v", e.Step, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("upstream %s: code=%d message=%s", e.Step, e.Code, e.Message)
	default:
		return fmt.Sprintf("upstream %s: http status=%d", e.Step, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the call failed because its deadline passed.
func (e *Error) Timeout() bool { return errors.Is(e.Err, ErrUpstreamTimeout) }
