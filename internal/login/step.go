// SPDX-License-Identifier: AGPL-3.0-or-later

package login

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flowd-org/ptylogin/internal/events"
	"github.com/flowd-org/ptylogin/internal/expect"
)

// stepCtx carries per-step state: the arguments, the live mirror and a raw
// transcript used for failure diagnostics.
type stepCtx struct {
	*run
	state      State
	args       []string
	writer     *events.StepWriter
	transcript lockedBuffer
	res        StepResult
}

func (sc *stepCtx) options(mirror bool) expect.Options {
	var out io.Writer = &sc.transcript
	if mirror {
		out = io.MultiWriter(&sc.transcript, sc.writer)
	}
	return expect.Options{Output: out, Env: sc.Env, KillGrace: sc.Config.KillGrace}
}

func (sc *stepCtx) record(res expect.Result) {
	sc.res.PID = res.PID
	sc.res.ExitCode = res.ExitCode
}

// close reaps s and records its exit status.
func (sc *stepCtx) close(s *expect.Session) {
	if err := s.Close(); err != nil {
		sc.Logger.Debug("close terminal", slog.String("step", sc.state.String()), slog.String("error", err.Error()))
	}
	sc.res.PID = s.PID()
	if code, ok := s.ExitStatus(); ok {
		sc.res.ExitCode = code
	}
}

// drain reads s to the end of its output within timeout. Running out of time
// is reported as a *expect.TimeoutError like any other wait.
func (sc *stepCtx) drain(ctx context.Context, s *expect.Session, timeout time.Duration) error {
	dctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := s.Drain(dctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return &expect.TimeoutError{Timeout: timeout, Output: string(out)}
	}
	return err
}

// sendLine answers a prompt. A tool that exits right after printing its
// prompt closes the terminal, and the write then fails; ended reports that
// case once the rest of the output has been read, instead of the write error.
func (sc *stepCtx) sendLine(ctx context.Context, s *expect.Session, line string, timeout time.Duration) (ended bool, err error) {
	werr := s.SendLine(line, sc.Config.LineEnding)
	if werr == nil {
		return false, nil
	}
	if errors.Is(werr, expect.ErrClosed) {
		return false, werr
	}
	if err := sc.drain(ctx, s, timeout); err != nil {
		return false, werr
	}
	return true, nil
}

// endedEarly finishes a login whose output ended without asking for a code.
// Only a clean exit counts as an already trusted session.
func (sc *stepCtx) endedEarly(s *expect.Session, where string) error {
	sc.close(s)
	if sc.res.ExitCode != 0 {
		return fmt.Errorf("%w: output ended %s (exit status %d)", ErrUnexpectedTermination, where, sc.res.ExitCode)
	}
	sc.res.Outcome = OutcomeTrustedSession
	return nil
}

// matched flushes the prompt to the mirror so it shows before the answer.
func (sc *stepCtx) matched(m expect.Match) {
	_ = sc.writer.Flush()
	sc.Logger.Debug("prompt matched", slog.String("run_id", sc.RunID), slog.String("step", sc.state.String()), slog.String("tag", string(m.Tag)))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// normalizeOutput turns terminal line endings into plain newlines.
func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
