// SPDX-License-Identifier: AGPL-3.0-or-later

package expect

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by operations on a session that has already been
// closed.
var ErrClosed = errors.New("expect: session closed")

// SpawnError reports that the executable could not be found or started.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError reports that no rule matched and the stream did not end
// within the deadline. The process has been terminated and reaped by the time
// this error is returned.
type TimeoutError struct {
	Timeout time.Duration
	// Output holds what was read before the deadline, not yet consumed by an
	// earlier Expect.
	Output string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no expected output within %s", e.Timeout)
}
