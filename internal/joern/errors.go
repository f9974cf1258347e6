package joern

import (
	"errors"
	"fmt"
	"time"
)

// ErrSemanticsNotRegistered is returned when a reachability query is attempted
// before the semantics-registration sequence has completed in this session.
var ErrSemanticsNotRegistered = errors.New("data-flow semantics have not been registered in this session")

// ConnectionError indicates that the engine session is absent or died. It is a
// hard failure for the command that hit it; callers may reopen the session via
// EnsureConnected and retry the operation once.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine connection failed during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("engine connection failed during %s", e.Op)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError indicates a command exceeded its budget. Partial holds whatever
// output had arrived when the budget ran out, for diagnostics only.
type TimeoutError struct {
	Command string
	Timeout time.Duration
	Partial string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine command timed out after %v: %s", e.Timeout, truncate(e.Command, 120))
}

// DecodeError indicates that an expected structured payload was missing or
// malformed in a response that must carry one.
type DecodeError struct {
	Command string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode engine response for %s: %s", truncate(e.Command, 120), e.Reason)
}

// IsConnectionError reports whether err is (or wraps) a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
