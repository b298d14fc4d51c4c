package wake

import (
	"errors"
	"fmt"
)

// ErrorCode is the channel error code for every wake failure.
const ErrorCode = "WAKE_UP_ERROR"

// ErrClosed is the cause reported for triggers after Close.
var ErrClosed = errors.New("wake controller is closed")

// WakeUpError is the single error kind returned by TriggerWakeUp.
type WakeUpError struct {
	Op  string
	Err error
}

func (e *WakeUpError) Error() string {
	return fmt.Sprintf("wake up: %s: %v", e.Op, e.Err)
}

func (e *WakeUpError) Unwrap() error {
	return e.Err
}

// Message is the underlying cause's message, as reported to the caller.
func (e *WakeUpError) Message() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Err.Error()
}
