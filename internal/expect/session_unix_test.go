//go:build unix

package expect

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func spawnShell(t *testing.T, script string, opts Options) *Session {
	t.Helper()
	s, err := Spawn("/bin/sh", []string{"-c", script}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func requireReaped(t *testing.T, pid int) {
	t.Helper()
	require.NotZero(t, pid)
	require.ErrorIs(t, unix.Kill(pid, 0), unix.ESRCH, "process %d still in the process table", pid)
}

func TestExpectMatchReturnsBeforeTimeout(t *testing.T) {
	requireShell(t)
	s := spawnShell(t, `printf 'banner\n'; printf 'Password:'; sleep 10`, Options{})

	start := time.Now()
	m, err := s.Expect(context.Background(), Rules{Literal("password", "Password:")}, 5*time.Second)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, Tag("password"), m.Tag)
	require.Equal(t, 0, m.Index)
	require.Contains(t, m.Text, "banner")
	require.True(t, strings.HasSuffix(m.Text, "Password:"))

	pid := s.PID()
	require.NoError(t, s.Close())
	requireReaped(t, pid)
}

func TestExpectFirstListedPatternWins(t *testing.T) {
	requireShell(t)
	s := spawnShell(t, `printf 'alpha beta\n'; sleep 10`, Options{})

	rules := Rules{Literal("second", "beta"), Literal("first", "alpha")}
	m, err := s.Expect(context.Background(), rules, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, Tag("second"), m.Tag)
	require.Equal(t, "alpha beta", m.Text)
}

func TestExpectKeepsUnconsumedOutputForNextCall(t *testing.T) {
	requireShell(t)
	s := spawnShell(t, `printf 'one two three\n'`, Options{})

	m, err := s.Expect(context.Background(), Rules{Literal("one", "one")}, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "one", m.Text)

	m, err = s.Expect(context.Background(), Rules{Literal("three", "three")}, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, " two three", m.Text)
}

func TestExpectTimeoutKillsAndReaps(t *testing.T) {
	requireShell(t)
	s := spawnShell(t, `printf 'waiting'; sleep 30`, Options{})
	pid := s.PID()

	timeout := 300 * time.Millisecond
	start := time.Now()
	_, err := s.Expect(context.Background(), Rules{Literal("never", "never printed")}, timeout)
	elapsed := time.Since(start)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	require.GreaterOrEqual(t, elapsed, timeout)
	require.Equal(t, timeout, te.Timeout)
	require.Contains(t, te.Output, "waiting")
	require.False(t, s.Alive())
	requireReaped(t, pid)

	code, done := s.ExitStatus()
	require.True(t, done)
	require.Equal(t, -1, code)

	_, err = s.Expect(context.Background(), nil, time.Second)
	require.ErrorIs(t, err, ErrClosed)
}

func TestExpectContextCancelKills(t *testing.T) {
	requireShell(t)
	s := spawnShell(t, `sleep 30`, Options{})
	pid := s.PID()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Expect(ctx, Rules{Literal("never", "never")}, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	requireReaped(t, pid)
}

func TestExpectEOFWhenNothingMatches(t *testing.T) {
	requireShell(t)
	s := spawnShell(t, `printf 'goodbye\n'; exit 0`, Options{})

	m, err := s.Expect(context.Background(), Rules{Literal("prompt", "Password:")}, 5*time.Second)
	require.NoError(t, err)
	require.True(t, m.EOF())
	require.Equal(t, -1, m.Index)
	require.Contains(t, m.Text, "goodbye")

	// the stream stays ended
	m, err = s.Expect(context.Background(), Rules{Literal("prompt", "Password:")}, time.Second)
	require.NoError(t, err)
	require.True(t, m.EOF())
	require.Empty(t, m.Text)

	pid := s.PID()
	require.NoError(t, s.Close())
	code, done := s.ExitStatus()
	require.True(t, done)
	require.Equal(t, 0, code)
	requireReaped(t, pid)
}

func TestSendRespondsToPrompt(t *testing.T) {
	requireShell(t)
	s := spawnShell(t, `printf 'Name:'; read -r name; printf 'got=%s\n' "$name"`, Options{})

	_, err := s.Expect(context.Background(), Rules{Literal("name", "Name:")}, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Send([]byte("bob\n")))

	m, err := s.Expect(context.Background(), Rules{MustRegexp("got", `got=\w+`)}, 5*time.Second)
	require.NoError(t, err)
	require.Contains(t, m.Text, "got=bob")

	rest, err := s.Drain(context.Background())
	require.NoError(t, err)
	require.NotContains(t, string(rest), "got=")
}

func TestDrainReturnsRemainingOutput(t *testing.T) {
	requireShell(t)
	s := spawnShell(t, `printf 'first\n'; printf 'second\n'; printf 'third\n'`, Options{})

	_, err := s.Expect(context.Background(), Rules{Literal("first", "first")}, 5*time.Second)
	require.NoError(t, err)

	rest, err := s.Drain(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(rest), "second")
	require.Contains(t, string(rest), "third")
}

func TestOutputIsMirrored(t *testing.T) {
	requireShell(t)
	var mirror bytes.Buffer
	s := spawnShell(t, `printf 'visible in the log\n'`, Options{Output: &mirror})

	m, err := s.Expect(context.Background(), nil, 5*time.Second)
	require.NoError(t, err)
	require.True(t, m.EOF())
	require.Contains(t, mirror.String(), "visible in the log")
	require.Equal(t, m.Text, mirror.String())
}

func TestSpawnMissingExecutable(t *testing.T) {
	_, err := Spawn("/nonexistent/ptylogin-missing-tool", nil, Options{})
	var se *SpawnError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "/nonexistent/ptylogin-missing-tool", se.Name)
	require.True(t, errors.Is(err, se.Err))
}

func TestRunReturnsExitStatusAndOutput(t *testing.T) {
	requireShell(t)
	res, err := Run(context.Background(), "/bin/sh", []string{"-c", `printf 'partial\n'; exit 3`}, 5*time.Second, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	require.Contains(t, string(res.Output), "partial")
	requireReaped(t, res.PID)
}

func TestRunTimeout(t *testing.T) {
	requireShell(t)
	res, err := Run(context.Background(), "/bin/sh", []string{"-c", `printf 'stuck'; sleep 30`}, 200*time.Millisecond, Options{})
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	require.Equal(t, -1, res.ExitCode)
	require.Contains(t, string(res.Output), "stuck")
	requireReaped(t, res.PID)
}

func TestRunSpawnError(t *testing.T) {
	res, err := Run(context.Background(), "/nonexistent/ptylogin-missing-tool", nil, time.Second, Options{})
	var se *SpawnError
	require.ErrorAs(t, err, &se)
	require.Equal(t, -1, res.ExitCode)
	require.Zero(t, res.PID)
}
