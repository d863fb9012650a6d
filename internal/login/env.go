// SPDX-License-Identifier: AGPL-3.0-or-later
package login

import (
	"os"
	"strings"

	"github.com/flowd-org/ptylogin/internal/types"
)

// credentialEnv never reaches the tool: credentials travel as arguments and
// prompt answers only.
var credentialEnv = []string{"STEAMCTL_PASSWD", "STEAMCTL_SECRET"}

// BuildEnv returns the tool environment: the host environment without
// credential variables, with cfg.Env entries upserted in key order.
func BuildEnv(cfg *types.Config) []string {
	env := make([]string, 0, len(os.Environ())+1)
	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || containsKey(credentialEnv, key) {
			continue
		}
		env = append(env, kv)
	}
	for _, kv := range cfg.EnvSlice() {
		key, value, _ := strings.Cut(kv, "=")
		if containsKey(credentialEnv, key) {
			continue
		}
		env = upsertEnv(env, key, value)
	}
	return env
}

func upsertEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
