// Package exitcode defines the process exit codes the parallel test runner
// interprets.
package exitcode

import (
	"errors"
	"fmt"
)

const (
	Success     = 0
	Failure     = 1
	Timeout     = 2
	KernelPanic = 3
	// Skip means something needed by the test does not exist.
	Skip = 77
	// PrepFailure means the test could not be prepared.
	PrepFailure = 99
)

// Name returns the outcome recorded for code in run metadata.
func Name(code int) string {
	switch code {
	case Success:
		return "SUCCESS"
	case Timeout:
		return "TIMEOUT"
	case KernelPanic:
		return "KERNEL_PANIC"
	case Skip:
		return "SKIPPED"
	case PrepFailure:
		return "PREP_FAILED"
	default:
		return "FAILED"
	}
}

// Error attaches an exit code to an error.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (exit code %d)", e.Err, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode wraps err so that FromError reports code.
func WithCode(code int, err error) error {
	return &Error{Code: code, Err: err}
}

// FromError maps err to an exit code: nil is Success, an *Error carries its
// own code and anything else is Failure.
func FromError(err error) int {
	if err == nil {
		return Success
	}
	var codeErr *Error
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return Failure
}
