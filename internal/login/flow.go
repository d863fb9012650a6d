// SPDX-License-Identifier: AGPL-3.0-or-later

// Package login drives an authenticator CLI through the five-step login
// sequence: deregister, register, fetch code, login, verify.
package login

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/flowd-org/ptylogin/internal/credentials"
	"github.com/flowd-org/ptylogin/internal/events"
	"github.com/flowd-org/ptylogin/internal/expect"
	"github.com/flowd-org/ptylogin/internal/types"
)

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StatusSucceeded StepStatus = "succeeded"
	StatusWarned    StepStatus = "warned"
	StatusFailed    StepStatus = "failed"
)

// StepResult records one executed step. Error text is redacted.
type StepResult struct {
	Name       string     `json:"name" yaml:"name"`
	Status     StepStatus `json:"status" yaml:"status"`
	ExitCode   int        `json:"exit_code" yaml:"exit_code"`
	PID        int        `json:"pid,omitempty" yaml:"pid,omitempty"`
	DurationMS int64      `json:"duration_ms" yaml:"duration_ms"`
	Outcome    string     `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
	Category   Category   `json:"category,omitempty" yaml:"category,omitempty"`
}

// Report summarises a run. It never contains credentials or the one-time
// code.
type Report struct {
	RunID      string       `json:"run_id" yaml:"run_id"`
	Tool       string       `json:"tool" yaml:"tool"`
	User       string       `json:"user" yaml:"user"`
	State      State        `json:"state" yaml:"state"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	DurationMS int64        `json:"duration_ms" yaml:"duration_ms"`
	Steps      []StepResult `json:"steps" yaml:"steps"`
	Warnings   []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Evidence   string       `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
	Category   Category     `json:"category,omitempty" yaml:"category,omitempty"`
}

// Step outcomes recorded in StepResult.Outcome.
const (
	OutcomeAlreadyRegistered = "already_registered"
	OutcomeCodeSent          = "code_sent"
	OutcomeTrustedSession    = "trusted_session"
)

const maxCapturedOutput = 4096

// Flow holds everything one run needs. Only Creds is required.
type Flow struct {
	Config *types.Config
	Creds  credentials.Bundle
	// Sink receives run and step events. Nil discards them.
	Sink   events.Sink
	Logger *slog.Logger
	// Output receives the redacted terminal output of each step and the
	// "+ command" echo lines. Nil disables mirroring.
	Output io.Writer
	// Redactor is extended with the credentials and the fetched code.
	Redactor *events.Redactor
	RunID    string
	// Env overrides the tool environment. Nil uses BuildEnv(Config).
	Env []string
}

type run struct {
	*Flow
	codeRe       *regexp.Regexp
	secondFactor expect.Pattern
	code         string
	report       *Report
}

// Run executes the sequence once. Steps run strictly one after another and
// every spawned process is reaped before the next one starts. The report is
// returned even when err is non-nil; err is a *StepError for step failures.
func (f *Flow) Run(ctx context.Context) (*Report, error) {
	r, err := f.prepare()
	if err != nil {
		return nil, err
	}
	cfg := f.Config
	if cfg.UmaskEnabled() {
		defer applySecureUmask()()
	}

	start := time.Now()
	r.report = &Report{
		RunID:     f.RunID,
		Tool:      cfg.Tool,
		User:      f.Creds.User(),
		StartedAt: start.UTC(),
	}
	f.Sink.EmitRunStart(f.RunID, cfg.Tool)
	f.Logger.Info("login run started", slog.String("run_id", f.RunID), slog.String("tool", cfg.Tool), slog.String("user", f.Creds.User()))

	m := newMachine()
	var runErr error
	for _, state := range Steps {
		res, err := r.step(ctx, state)
		r.report.Steps = append(r.report.Steps, res)
		if err != nil {
			runErr = err
			_ = m.transition(StateFailed)
			break
		}
		if err := m.transition(state + 1); err != nil {
			runErr = err
			break
		}
	}

	r.report.State = m.state
	r.report.DurationMS = time.Since(start).Milliseconds()
	if runErr != nil {
		msg := f.Redactor.Redact(runErr.Error())
		r.report.Error = msg
		r.report.Category = Classify(runErr)
		f.Sink.EmitRunFinish(f.RunID, "failed", errors.New(msg))
		f.Logger.Error("login run failed", slog.String("run_id", f.RunID), slog.String("category", string(r.report.Category)), slog.String("error", msg))
		return r.report, runErr
	}
	f.Sink.EmitRunFinish(f.RunID, "succeeded", nil)
	f.Logger.Info("login run succeeded", slog.String("run_id", f.RunID), slog.Int64("duration_ms", r.report.DurationMS))
	return r.report, nil
}

func (f *Flow) prepare() (*run, error) {
	if f.Creds.User() == "" {
		return nil, &credentials.FieldError{Field: "user", Msg: "required"}
	}
	if f.Config == nil {
		f.Config = types.DefaultConfig()
	}
	if f.Logger == nil {
		f.Logger = slog.Default()
	}
	if f.Sink == nil {
		f.Sink = events.NewEmitter(io.Discard, false)
	}
	if f.Redactor == nil {
		f.Redactor = events.NewRedactor()
	}
	if f.RunID == "" {
		f.RunID = events.GenerateRunID()
	}
	if f.Env == nil {
		f.Env = BuildEnv(f.Config)
	}
	f.Redactor.Add(f.Creds.SecretValues()...)

	codeRe, err := regexp.Compile(f.Config.CodePattern)
	if err != nil {
		return nil, fmt.Errorf("code pattern: %w", err)
	}
	secondFactor, err := expect.Regexp("second_factor", f.Config.Prompts.SecondFactor)
	if err != nil {
		return nil, fmt.Errorf("second factor prompt: %w", err)
	}
	return &run{Flow: f, codeRe: codeRe, secondFactor: secondFactor}, nil
}

type stepFunc func(ctx context.Context, sc *stepCtx) error

func (r *run) stepSpec(state State) (args []string, fn stepFunc, fatal bool) {
	user, probe := r.Creds.User(), r.Config.Probe
	switch state {
	case StateDeregister:
		return deregisterArgs(user), r.deregister, false
	case StateRegister:
		return registerArgs(r.Creds.Secret(), user), r.register, true
	case StateFetchCode:
		return fetchCodeArgs(user), r.fetchCode, true
	case StateLogin:
		return loginArgs(user, probe), r.login, true
	default:
		return verifyArgs(probe), r.verify, false
	}
}

func (r *run) step(ctx context.Context, state State) (StepResult, error) {
	args, fn, fatal := r.stepSpec(state)
	name := state.String()
	cmdline := commandLine(r.Config.Tool, args, r.Redactor)
	if r.Output != nil {
		fmt.Fprintf(r.Output, "\n+ %s\n", cmdline)
	}
	r.Sink.EmitStepStart(r.RunID, name, cmdline)
	r.Logger.Debug("step started", slog.String("run_id", r.RunID), slog.String("step", name), slog.String("command", cmdline))

	sc := &stepCtx{
		run:    r,
		state:  state,
		args:   args,
		writer: events.NewStepWriter(r.Sink, r.RunID, name, r.Output, r.Redactor),
		res:    StepResult{Name: name, ExitCode: -1},
	}
	start := time.Now()
	err := fn(ctx, sc)
	_ = sc.writer.Flush()
	sc.res.DurationMS = time.Since(start).Milliseconds()

	if err == nil {
		sc.res.Status = StatusSucceeded
		r.Sink.EmitStepFinish(r.RunID, name, sc.res.ExitCode, nil)
		r.Logger.Info("step finished", slog.String("run_id", r.RunID), slog.String("step", name), slog.Int("exit_code", sc.res.ExitCode), slog.Int64("duration_ms", sc.res.DurationMS))
		return sc.res, nil
	}

	msg := r.Redactor.Redact(err.Error())
	sc.res.Error = msg
	sc.res.Category = Classify(err)
	if !fatal && ctx.Err() == nil {
		sc.res.Status = StatusWarned
		r.report.Warnings = append(r.report.Warnings, name+": "+msg)
		r.Sink.EmitStepWarn(r.RunID, name, errors.New(msg))
		r.Sink.EmitStepFinish(r.RunID, name, sc.res.ExitCode, nil)
		r.Logger.Warn("step failed, continuing", slog.String("run_id", r.RunID), slog.String("step", name), slog.String("error", msg))
		return sc.res, nil
	}

	sc.res.Status = StatusFailed
	r.Sink.EmitStepFinish(r.RunID, name, sc.res.ExitCode, errors.New(msg))
	return sc.res, &StepError{
		Step:   state,
		Err:    err,
		Output: tail(r.Redactor.Redact(normalizeOutput(sc.transcript.String())), maxCapturedOutput),
	}
}

func (r *run) deregister(ctx context.Context, sc *stepCtx) error {
	res, err := expect.Run(ctx, r.Config.Tool, sc.args, r.Config.Timeouts.Deregister, sc.options(true))
	sc.record(res)
	if err != nil {
		return err
	}
	return exitStatusError(res.ExitCode)
}

func (r *run) register(ctx context.Context, sc *stepCtx) error {
	timeout := r.Config.Timeouts.Register
	s, err := expect.Spawn(r.Config.Tool, sc.args, sc.options(true))
	if err != nil {
		return err
	}
	defer sc.close(s)
	sc.res.PID = s.PID()

	prompts := r.Config.Prompts
	success := expect.Literal("success", prompts.RegisterSuccess)
	password := expect.Literal("password", promptFor(prompts.RegisterPassword, r.Creds.User()))

	m, err := s.Expect(ctx, expect.Rules{password, success}, timeout)
	if err != nil {
		return err
	}
	switch m.Tag {
	case password.Tag:
		sc.matched(m)
		ended, err := sc.sendLine(ctx, s, r.Creds.Password(), timeout)
		if err != nil {
			return fmt.Errorf("send password: %w", err)
		}
		if ended {
			sc.close(s)
			return fmt.Errorf("%w: output ended at the password prompt (exit status %d)", ErrUnexpectedTermination, sc.res.ExitCode)
		}
		if m, err = s.Expect(ctx, expect.Rules{success}, timeout); err != nil {
			return err
		}
	case success.Tag:
		sc.res.Outcome = OutcomeAlreadyRegistered
	}
	if m.EOF() {
		sc.close(s)
		return fmt.Errorf("%w: output ended without %q (exit status %d)", ErrUnexpectedTermination, prompts.RegisterSuccess, sc.res.ExitCode)
	}
	sc.matched(m)

	// Let the tool finish writing its state before it is reaped.
	if err := sc.drain(ctx, s, timeout); err != nil {
		r.Logger.Warn("register: tool did not exit after confirming", slog.String("run_id", r.RunID), slog.String("error", err.Error()))
	}
	sc.close(s)
	return nil
}

func (r *run) fetchCode(ctx context.Context, sc *stepCtx) error {
	// Output is mirrored only after the code is known to the redactor.
	res, err := expect.Run(ctx, r.Config.Tool, sc.args, r.Config.Timeouts.FetchCode, sc.options(false))
	sc.record(res)

	code := lastLine(normalizeOutput(string(res.Output)))
	valid := code != "" && r.codeRe.MatchString(code)
	if valid {
		r.Redactor.Add(code)
	}
	_, _ = sc.writer.Write(res.Output)

	if err != nil {
		return err
	}
	if err := exitStatusError(res.ExitCode); err != nil {
		return err
	}
	if code == "" {
		return fmt.Errorf("%w: no code in output", ErrMalformedOutput)
	}
	if !valid {
		return fmt.Errorf("%w: last line does not match %s", ErrMalformedOutput, r.codeRe)
	}
	r.code = code
	return nil
}

func (r *run) login(ctx context.Context, sc *stepCtx) error {
	timeout := r.Config.Timeouts.Login
	s, err := expect.Spawn(r.Config.Tool, sc.args, sc.options(true))
	if err != nil {
		return err
	}
	defer sc.close(s)
	sc.res.PID = s.PID()

	m, err := s.Expect(ctx, expect.Rules{expect.Literal("password", r.Config.Prompts.LoginPassword)}, timeout)
	if err != nil {
		return err
	}
	if m.EOF() {
		return sc.endedEarly(s, "before the password prompt")
	}
	sc.matched(m)
	ended, err := sc.sendLine(ctx, s, r.Creds.Password(), timeout)
	if err != nil {
		return fmt.Errorf("send password: %w", err)
	}
	if ended {
		return sc.endedEarly(s, "at the password prompt")
	}

	m, err = s.Expect(ctx, expect.Rules{r.secondFactor}, timeout)
	if err != nil {
		return err
	}
	if m.EOF() {
		sc.res.Outcome = OutcomeTrustedSession
	} else {
		sc.matched(m)
		ended, err := sc.sendLine(ctx, s, r.code, timeout)
		if err != nil {
			return fmt.Errorf("send code: %w", err)
		}
		sc.res.Outcome = OutcomeCodeSent
		if !ended {
			if err := sc.drain(ctx, s, timeout); err != nil {
				return err
			}
		}
	}
	sc.close(s)
	return exitStatusError(sc.res.ExitCode)
}

func (r *run) verify(ctx context.Context, sc *stepCtx) error {
	res, err := expect.Run(ctx, r.Config.Tool, sc.args, r.Config.Timeouts.Verify, sc.options(true))
	sc.record(res)
	r.report.Evidence = tail(r.Redactor.Redact(normalizeOutput(string(res.Output))), maxCapturedOutput)
	if err != nil {
		return err
	}
	return exitStatusError(res.ExitCode)
}

func exitStatusError(code int) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("%w: exit status %d", ErrUnexpectedTermination, code)
}
