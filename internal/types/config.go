// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import (
	"sort"
	"strings"
	"time"
)

const (
	DefaultTool              = "steamctl"
	DefaultLineEnding        = "\n"
	DefaultCodePattern       = `^[A-Za-z0-9]{5}$`
	DefaultStepTimeout       = 30 * time.Second
	DefaultRegisterPassword  = "Enter password for '{user}':"
	DefaultRegisterSuccess   = "Authenticator added successfully"
	DefaultLoginPassword     = "Password:"
	DefaultSecondFactorRegex = `2FA[^\n]*:`

	// UserPlaceholder is replaced with the account name in prompt texts.
	UserPlaceholder = "{user}"
)

// DefaultProbe is the harmless action used to log in and to verify the
// session afterwards.
var DefaultProbe = []string{"depot", "info", "-a", "440"}

// Config is the optional flow configuration file. Zero values fall back to
// the defaults above, which reproduce stock steamctl behaviour.
type Config struct {
	Tool        string            `yaml:"tool,omitempty" json:"tool,omitempty"`
	Probe       []string          `yaml:"probe,omitempty" json:"probe,omitempty"`
	LineEnding  string            `yaml:"line_ending,omitempty" json:"line_ending,omitempty"`
	CodePattern string            `yaml:"code_pattern,omitempty" json:"code_pattern,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	// SecureUmask restricts files created by the tool to the owner. Nil
	// means enabled.
	SecureUmask *bool         `yaml:"secure_umask,omitempty" json:"secure_umask,omitempty"`
	KillGrace   time.Duration `yaml:"kill_grace,omitempty" json:"kill_grace,omitempty"`
	Timeouts    Timeouts      `yaml:"timeouts,omitempty" json:"timeouts,omitempty"`
	Prompts     Prompts       `yaml:"prompts,omitempty" json:"prompts,omitempty"`
}

// Timeouts bounds each step. Values are Go durations ("30s", "2m").
type Timeouts struct {
	Deregister time.Duration `yaml:"deregister,omitempty" json:"deregister,omitempty"`
	Register   time.Duration `yaml:"register,omitempty" json:"register,omitempty"`
	FetchCode  time.Duration `yaml:"fetch_code,omitempty" json:"fetch_code,omitempty"`
	Login      time.Duration `yaml:"login,omitempty" json:"login,omitempty"`
	Verify     time.Duration `yaml:"verify,omitempty" json:"verify,omitempty"`
}

// Prompts holds the texts printed by the tool. RegisterPassword,
// RegisterSuccess and LoginPassword are literals; SecondFactor is a regular
// expression.
type Prompts struct {
	RegisterPassword string `yaml:"register_password,omitempty" json:"register_password,omitempty"`
	RegisterSuccess  string `yaml:"register_success,omitempty" json:"register_success,omitempty"`
	LoginPassword    string `yaml:"login_password,omitempty" json:"login_password,omitempty"`
	SecondFactor     string `yaml:"second_factor,omitempty" json:"second_factor,omitempty"`
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Tool) == "" {
		c.Tool = DefaultTool
	}
	if len(c.Probe) == 0 {
		c.Probe = append([]string(nil), DefaultProbe...)
	}
	if c.LineEnding == "" {
		c.LineEnding = DefaultLineEnding
	}
	if c.CodePattern == "" {
		c.CodePattern = DefaultCodePattern
	}
	if c.SecureUmask == nil {
		on := true
		c.SecureUmask = &on
	}
	for _, d := range []*time.Duration{&c.Timeouts.Deregister, &c.Timeouts.Register, &c.Timeouts.FetchCode, &c.Timeouts.Login, &c.Timeouts.Verify} {
		if *d == 0 {
			*d = DefaultStepTimeout
		}
	}
	if c.Prompts.RegisterPassword == "" {
		c.Prompts.RegisterPassword = DefaultRegisterPassword
	}
	if c.Prompts.RegisterSuccess == "" {
		c.Prompts.RegisterSuccess = DefaultRegisterSuccess
	}
	if c.Prompts.LoginPassword == "" {
		c.Prompts.LoginPassword = DefaultLoginPassword
	}
	if c.Prompts.SecondFactor == "" {
		c.Prompts.SecondFactor = DefaultSecondFactorRegex
	}
}

// DefaultConfig returns a fully defaulted Config.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// UmaskEnabled reports whether the secure umask applies.
func (c *Config) UmaskEnabled() bool {
	return c == nil || c.SecureUmask == nil || *c.SecureUmask
}

// EnvSlice returns Env as sorted KEY=VALUE pairs.
func (c *Config) EnvSlice() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
