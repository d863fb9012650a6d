// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envKeys maps flag names to the environment variables read by the original
// wrapper scripts.
var envKeys = map[string]string{
	"user":     "STEAMCTL_USER",
	"password": "STEAMCTL_PASSWD",
	"secret":   "STEAMCTL_SECRET",
	"tool":     "STEAMCTL_PATH",
}

// bindEnvFlags makes v resolve each named flag from the command line first,
// then from its STEAMCTL_* variable.
func bindEnvFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		_ = v.BindPFlag(name, flags.Lookup(name))
		if env, ok := envKeys[name]; ok {
			_ = v.BindEnv(name, env)
		}
	}
}
