// SPDX-License-Identifier: AGPL-3.0-or-later

package expect

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

const (
	defaultRows      = 24
	defaultCols      = 80
	defaultKillGrace = 2 * time.Second
	readChunkSize    = 4096
	chunkBacklog     = 64
)

// Options configures a spawned session.
type Options struct {
	// Output receives a copy of everything read from the terminal as it
	// arrives. Nil disables mirroring.
	Output io.Writer
	// Env is the child environment. Nil inherits the current process env.
	Env []string
	// Dir is the child working directory.
	Dir string
	// Rows and Cols size the terminal. Zero uses 24x80.
	Rows uint16
	Cols uint16
	// KillGrace bounds how long Close waits for a process whose output has
	// already ended to exit on its own before it is killed. Zero uses 2s.
	KillGrace time.Duration
}

// Session is a live process attached to a pseudo-terminal. A Session is not
// safe for concurrent use; the caller that spawned it owns it and must Close
// it on every path.
type Session struct {
	name  string
	cmd   *exec.Cmd
	tty   *os.File
	grace time.Duration

	chunks   chan []byte
	done     chan struct{}
	exited   chan struct{}
	readDone chan struct{}

	buf    []byte
	eof    bool
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// Spawn starts name with args attached to a new pseudo-terminal.
func Spawn(name string, args []string, opts Options) (*Session, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir

	size := &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols}
	if size.Rows == 0 {
		size.Rows = defaultRows
	}
	if size.Cols == 0 {
		size.Cols = defaultCols
	}
	tty, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, &SpawnError{Name: name, Err: err}
	}

	grace := opts.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}
	s := &Session{
		name:     name,
		cmd:      cmd,
		tty:      tty,
		grace:    grace,
		chunks:   make(chan []byte, chunkBacklog),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go s.read(opts.Output)
	go s.wait()
	return s, nil
}

// read pumps terminal output into chunks until the stream ends. On Linux the
// master side reports EIO once every holder of the slave side has gone away,
// which is treated the same as EOF.
func (s *Session) read(mirror io.Writer) {
	defer close(s.readDone)
	defer close(s.chunks)
	p := make([]byte, readChunkSize)
	for {
		n, err := s.tty.Read(p)
		if n > 0 {
			chunk := append([]byte(nil), p[:n]...)
			if mirror != nil {
				_, _ = mirror.Write(chunk)
			}
			select {
			case s.chunks <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) wait() {
	_ = s.cmd.Wait()
	close(s.exited)
}

// Name returns the executable the session was spawned from.
func (s *Session) Name() string { return s.name }

// PID returns the process id of the spawned program.
func (s *Session) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Alive reports whether the process has not yet been reaped.
func (s *Session) Alive() bool {
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// ExitStatus returns the exit code once the process has been reaped. The
// second result is false while the process is still running. A process killed
// by a signal reports -1.
func (s *Session) ExitStatus() (int, bool) {
	select {
	case <-s.exited:
	default:
		return 0, false
	}
	if s.cmd.ProcessState == nil {
		return -1, true
	}
	return s.cmd.ProcessState.ExitCode(), true
}

// Expect blocks until one of rules matches the buffered output, the output
// stream ends, or timeout elapses. On a match the returned text is everything
// consumed up to and including the match; later output stays buffered for the
// next call. When the stream ends first the EOF tag is returned together with
// whatever was left unmatched.
//
// On timeout, or when ctx is cancelled, the process is killed and reaped
// before the error is returned. A timeout of zero or less waits forever.
func (s *Session) Expect(ctx context.Context, rules Rules, timeout time.Duration) (Match, error) {
	if s.closed {
		return Match{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		_ = s.Close()
		return Match{}, err
	}
	if m, ok := s.consume(rules); ok {
		return m, nil
	}
	if s.eof {
		return s.takeEOF(), nil
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				s.eof = true
				return s.takeEOF(), nil
			}
			s.buf = append(s.buf, chunk...)
			if m, ok := s.consume(rules); ok {
				return m, nil
			}
		case <-deadline:
			pending := string(s.buf)
			s.buf = nil
			_ = s.Close()
			return Match{}, &TimeoutError{Timeout: timeout, Output: pending}
		case <-ctx.Done():
			_ = s.Close()
			return Match{}, ctx.Err()
		}
	}
}

func (s *Session) consume(rules Rules) (Match, bool) {
	idx, end := rules.match(s.buf)
	if idx < 0 {
		return Match{}, false
	}
	text := string(s.buf[:end])
	s.buf = append([]byte(nil), s.buf[end:]...)
	return Match{Tag: rules[idx].Tag, Index: idx, Text: text}, true
}

func (s *Session) takeEOF() Match {
	text := string(s.buf)
	s.buf = nil
	return Match{Tag: EOF, Index: -1, Text: text}
}

// Send writes p to the process input as is. No line terminator is added.
func (s *Session) Send(p []byte) error {
	if s.closed {
		return ErrClosed
	}
	_, err := s.tty.Write(p)
	return err
}

// SendLine writes line followed by eol. An empty eol sends "\n".
func (s *Session) SendLine(line, eol string) error {
	if eol == "" {
		eol = "\n"
	}
	return s.Send([]byte(line + eol))
}

// Drain returns all remaining output, blocking until the stream ends. When
// ctx is cancelled first the process is killed and what was read so far is
// returned alongside ctx.Err().
func (s *Session) Drain(ctx context.Context) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	out := s.buf
	s.buf = nil
	if s.eof {
		return out, nil
	}
	for {
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				s.eof = true
				return out, nil
			}
			out = append(out, chunk...)
		case <-ctx.Done():
			_ = s.Close()
			return out, ctx.Err()
		}
	}
}

// Close terminates the process if it is still running, reaps it and releases
// the terminal. A process whose output already ended gets KillGrace to exit
// on its own first. Once Close returns nothing more is written to
// Options.Output, unless a descendant that left the process group still
// holds the terminal open. Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		grace := time.Duration(0)
		if s.eof {
			grace = s.grace
		}
		if !s.exitedWithin(grace) {
			terminate(s.cmd.Process)
			<-s.exited
		}
		close(s.done)
		s.closeErr = s.tty.Close()
		s.awaitReader(s.grace)
	})
	return s.closeErr
}

func (s *Session) awaitReader(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.readDone:
	case <-timer.C:
	}
}

func (s *Session) exitedWithin(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.exited:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.exited:
		return true
	case <-timer.C:
		return false
	}
}
