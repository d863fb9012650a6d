package configloader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flowd-org/ptylogin/internal/types"
)

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tool != types.DefaultTool {
		t.Fatalf("expected default tool, got %q", cfg.Tool)
	}
	if strings.Join(cfg.Probe, " ") != "depot info -a 440" {
		t.Fatalf("unexpected probe %v", cfg.Probe)
	}
	if cfg.Timeouts.Login != types.DefaultStepTimeout {
		t.Fatalf("unexpected login timeout %s", cfg.Timeouts.Login)
	}
	if !cfg.UmaskEnabled() {
		t.Fatalf("secure umask should default on")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptylogin.yaml")
	data := `tool: /opt/steamctl/bin/steamctl
probe: [apps, list]
line_ending: "\r"
secure_umask: false
env:
  STEAMCTL_HOME: /srv/steam
timeouts:
  login: 2m
  fetch_code: 5s
prompts:
  second_factor: 'Two-factor code:'
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tool != "/opt/steamctl/bin/steamctl" {
		t.Fatalf("tool = %q", cfg.Tool)
	}
	if len(cfg.Probe) != 2 || cfg.Probe[0] != "apps" {
		t.Fatalf("probe = %v", cfg.Probe)
	}
	if cfg.LineEnding != "\r" {
		t.Fatalf("line ending = %q", cfg.LineEnding)
	}
	if cfg.UmaskEnabled() {
		t.Fatalf("secure umask should be off")
	}
	if cfg.Timeouts.Login != 2*time.Minute || cfg.Timeouts.FetchCode != 5*time.Second {
		t.Fatalf("timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Timeouts.Register != types.DefaultStepTimeout {
		t.Fatalf("register timeout should default, got %s", cfg.Timeouts.Register)
	}
	if cfg.Prompts.SecondFactor != "Two-factor code:" || cfg.Prompts.LoginPassword != types.DefaultLoginPassword {
		t.Fatalf("prompts = %+v", cfg.Prompts)
	}
	if got := cfg.EnvSlice(); len(got) != 1 || got[0] != "STEAMCTL_HOME=/srv/steam" {
		t.Fatalf("env = %v", got)
	}
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"bad regexp":    "code_pattern: '([a-z'\n",
		"negative":      "timeouts:\n  verify: -1s\n",
		"unknown field": "tool_path: steamctl\n",
		"bad env":       "env:\n  'A=B': x\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data)); err == nil {
				t.Fatalf("expected error for %q", data)
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Prompts.RegisterSuccess != types.DefaultRegisterSuccess {
		t.Fatalf("defaults not applied: %+v", cfg.Prompts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
