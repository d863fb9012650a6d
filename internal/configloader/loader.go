// SPDX-License-Identifier: AGPL-3.0-or-later

package configloader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/flowd-org/ptylogin/internal/types"
	"gopkg.in/yaml.v3"
)

// Load reads the flow config at path, applies defaults and validates it. An
// empty path yields the defaults.
func Load(path string) (*types.Config, error) {
	if strings.TrimSpace(path) == "" {
		return types.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data. Unknown keys are rejected so typos in
// prompt or timeout names surface early.
func Parse(data []byte) (*types.Config, error) {
	var cfg types.Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Tool = strings.TrimSpace(cfg.Tool)
	cfg.ApplyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a defaulted config.
func Validate(cfg *types.Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	for _, p := range []struct{ name, expr string }{
		{"code_pattern", cfg.CodePattern},
		{"prompts.second_factor", cfg.Prompts.SecondFactor},
	} {
		if _, err := regexp.Compile(p.expr); err != nil {
			return fmt.Errorf("config %s: %w", p.name, err)
		}
	}
	for _, t := range []struct {
		name string
		d    int64
	}{
		{"timeouts.deregister", int64(cfg.Timeouts.Deregister)},
		{"timeouts.register", int64(cfg.Timeouts.Register)},
		{"timeouts.fetch_code", int64(cfg.Timeouts.FetchCode)},
		{"timeouts.login", int64(cfg.Timeouts.Login)},
		{"timeouts.verify", int64(cfg.Timeouts.Verify)},
		{"kill_grace", int64(cfg.KillGrace)},
	} {
		if t.d < 0 {
			return fmt.Errorf("config %s: must not be negative", t.name)
		}
	}
	for k := range cfg.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return fmt.Errorf("config env: invalid variable name %q", k)
		}
	}
	return nil
}
