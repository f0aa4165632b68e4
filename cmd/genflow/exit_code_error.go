package main

import "errors"

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// ExitCodeError wraps an error with a specific process exit code.
//
// Most commands return plain errors and exit with code 1. ExitCodeError is
// used where CI scripts depend on a stable code: a failed task, missing
// configuration, or an interrupt.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// errReported marks errors whose message was already printed.
var errReported = errors.New("reported")

// exitCode maps an error returned by a command onto a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var coded *ExitCodeError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return exitFailure
}
