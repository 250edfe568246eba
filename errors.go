package testrunner

import (
	"errors"
	"fmt"
)

// Stages a RuntimeError can come from
const (
	StageConfig    = "config"
	StageSelection = "selection"
	StageSetup     = "setup"
	StageRun       = "run"
)

// RuntimeError is a harness fault rather than a test result (exit code 2):
// bad flags, unreadable or malformed status files, a missing test root, a
// worker fault.
type RuntimeError struct {
	Stage string
	Err   error
}

func (e *RuntimeError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("runtime error: %v", e.Err)
	}
	return fmt.Sprintf("runtime error during %s: %v", e.Stage, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(stage string, err error) *RuntimeError {
	return &RuntimeError{Stage: stage, Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError ends a run that completed without a fault but did not
// succeed (exit code 1). Failed and Crashed count unexpected outcomes.
type TestFailureError struct {
	Failed      int
	Crashed     int
	Interrupted bool
	Message     string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a TestFailureError with no outcome counts
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

func newFailedRunError(failed, crashed int) *TestFailureError {
	msg := fmt.Sprintf("%d tests failed", failed)
	if crashed > 0 {
		msg = fmt.Sprintf("%s, %d crashed", msg, crashed)
	}
	return &TestFailureError{Failed: failed, Crashed: crashed, Message: msg}
}

func newInterruptedError() *TestFailureError {
	return &TestFailureError{Interrupted: true, Message: "interrupted"}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
