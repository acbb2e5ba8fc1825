package engine

import "errors"

var (
	// ErrQueueUnavailable is transient: the scheduler releases its claim and retries next tick.
	ErrQueueUnavailable = errors.New("queue unavailable")

	ErrInvalidTransition   = errors.New("invalid execution status transition")
	ErrExecutionNotRunning = errors.New("execution not running")
	ErrExecutionNotFound   = errors.New("execution not found")

	ErrVersionNotFound    = errors.New("workflow version not found")
	ErrInvalidDefinition  = errors.New("invalid workflow definition")
	ErrInvalidStepRequest = errors.New("invalid step")
)

// IsBenignTrackerError reports whether err is a duplicate or out-of-order tracker callback,
// which callers log and otherwise ignore.
func IsBenignTrackerError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrExecutionNotRunning)
}
