// SPDX-License-Identifier: AGPL-3.0-or-later

package expect

import (
	"context"
	"errors"
	"time"
)

// Result is the outcome of a non-interactive Run.
type Result struct {
	PID      int
	ExitCode int
	Output   []byte
}

// Run spawns name under a pseudo-terminal, waits for its output to end and
// returns everything it printed together with its exit status. The process is
// reaped before Run returns, including on timeout.
func Run(ctx context.Context, name string, args []string, timeout time.Duration, opts Options) (Result, error) {
	res := Result{ExitCode: -1}
	s, err := Spawn(name, args, opts)
	if err != nil {
		return res, err
	}
	defer s.Close()
	res.PID = s.PID()

	m, err := s.Expect(ctx, nil, timeout)
	if err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			res.Output = []byte(te.Output)
		}
		return res, err
	}
	res.Output = []byte(m.Text)
	if err := s.Close(); err != nil {
		return res, err
	}
	res.ExitCode, _ = s.ExitStatus()
	return res, nil
}
