// SPDX-License-Identifier: AGPL-3.0-or-later
package login

import (
	"strings"

	"github.com/flowd-org/ptylogin/internal/events"
	"github.com/flowd-org/ptylogin/internal/types"
)

func deregisterArgs(user string) []string {
	return []string{"authenticator", "remove", "--force", user}
}

func registerArgs(secret, user string) []string {
	return []string{"authenticator", "add", "--from-secret", secret, user}
}

func fetchCodeArgs(user string) []string {
	return []string{"authenticator", "code", user}
}

func loginArgs(user string, probe []string) []string {
	return append([]string{"--user", user}, probe...)
}

func verifyArgs(probe []string) []string {
	return append([]string(nil), probe...)
}

// commandLine renders tool and args for display with secrets redacted.
func commandLine(tool string, args []string, redactor *events.Redactor) string {
	return strings.Join(append([]string{tool}, redactor.RedactArgs(args)...), " ")
}

func promptFor(text, user string) string {
	return strings.ReplaceAll(text, types.UserPlaceholder, user)
}

// BuildPlan describes the run for user without spawning anything. The shared
// secret is shown as a placeholder.
func BuildPlan(cfg *types.Config, user string) types.Plan {
	if cfg == nil {
		cfg = types.DefaultConfig()
	}
	secret := events.SecretToken()
	step := func(s State, args []string, timeout string, expect ...string) types.PlanStep {
		onFailure := "halt"
		if s == StateDeregister || s == StateVerify {
			onFailure = "warn"
		}
		return types.PlanStep{
			Name:      s.String(),
			Command:   append([]string{cfg.Tool}, args...),
			Expect:    expect,
			Timeout:   timeout,
			OnFailure: onFailure,
		}
	}
	t := cfg.Timeouts
	return types.Plan{
		Tool: cfg.Tool,
		User: user,
		Steps: []types.PlanStep{
			step(StateDeregister, deregisterArgs(user), t.Deregister.String()),
			step(StateRegister, registerArgs(secret, user), t.Register.String(),
				promptFor(cfg.Prompts.RegisterPassword, user), cfg.Prompts.RegisterSuccess),
			step(StateFetchCode, fetchCodeArgs(user), t.FetchCode.String(), cfg.CodePattern),
			step(StateLogin, loginArgs(user, cfg.Probe), t.Login.String(),
				cfg.Prompts.LoginPassword, cfg.Prompts.SecondFactor),
			step(StateVerify, verifyArgs(cfg.Probe), t.Verify.String()),
		},
	}
}
