// SPDX-License-Identifier: AGPL-3.0-or-later
package types

// Plan previews a login run without spawning anything. Secrets in command
// lines are already redacted.
type Plan struct {
	Tool  string     `json:"tool" yaml:"tool"`
	User  string     `json:"user" yaml:"user"`
	Steps []PlanStep `json:"steps" yaml:"steps"`
}

// PlanStep describes one step of the login sequence.
type PlanStep struct {
	Name    string   `json:"name" yaml:"name"`
	Command []string `json:"command" yaml:"command"`
	Expect  []string `json:"expect,omitempty" yaml:"expect,omitempty"`
	Timeout string   `json:"timeout" yaml:"timeout"`
	// OnFailure is "warn" for steps whose errors never halt the flow and
	// "halt" otherwise.
	OnFailure string `json:"on_failure" yaml:"on_failure"`
}
