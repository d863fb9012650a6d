// SPDX-License-Identifier: AGPL-3.0-or-later
package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowd-org/ptylogin/internal/expect"
)

var (
	// ErrUnexpectedTermination means the tool ended without reaching the
	// expected confirmation, or exited non-zero.
	ErrUnexpectedTermination = errors.New("unexpected termination")
	// ErrMalformedOutput means the one-time code could not be extracted.
	ErrMalformedOutput = errors.New("malformed output")
)

// StepError names the step that halted the run. Output holds the redacted
// terminal output captured up to the failure.
type StepError struct {
	Step   State
	Err    error
	Output string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Category classifies a run error for reports and exit codes.
type Category string

const (
	CategoryNone                  Category = ""
	CategorySpawn                 Category = "spawn_failure"
	CategoryTimeout               Category = "timeout"
	CategoryUnexpectedTermination Category = "unexpected_termination"
	CategoryMalformedOutput       Category = "malformed_output"
	CategoryCanceled              Category = "canceled"
	CategoryOther                 Category = "other"
)

// Classify maps err onto a Category.
func Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}
	var (
		spawnErr   *expect.SpawnError
		timeoutErr *expect.TimeoutError
	)
	switch {
	case errors.As(err, &spawnErr):
		return CategorySpawn
	case errors.As(err, &timeoutErr):
		return CategoryTimeout
	case errors.Is(err, ErrUnexpectedTermination):
		return CategoryUnexpectedTermination
	case errors.Is(err, ErrMalformedOutput):
		return CategoryMalformedOutput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCanceled
	default:
		return CategoryOther
	}
}
