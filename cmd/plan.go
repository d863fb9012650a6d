// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"strings"

	"github.com/flowd-org/ptylogin/internal/credentials"
	"github.com/flowd-org/ptylogin/internal/login"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewPlanCmd() *cobra.Command {
	v := viper.New()
	c := &cobra.Command{
		Use:   "plan",
		Short: "Preview the login steps (no execution)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			if err := checkFormat("output", output, "text", "json", "yaml"); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			user := strings.TrimSpace(v.GetString("user"))
			if user == "" {
				return &credentials.FieldError{Field: "user", Msg: "required"}
			}
			plan := login.BuildPlan(cfg, user)
			if output != "text" {
				return writeReport(cmd.OutOrStdout(), plan, output, "")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tool: %s\n", plan.Tool)
			fmt.Fprintf(out, "User: %s\n", plan.User)
			fmt.Fprintln(out, "Steps:")
			for i, step := range plan.Steps {
				fmt.Fprintf(out, "  %d. %s (timeout %s, on failure %s)\n", i+1, step.Name, step.Timeout, step.OnFailure)
				fmt.Fprintf(out, "     $ %s\n", strings.Join(step.Command, " "))
				for _, e := range step.Expect {
					fmt.Fprintf(out, "     expect: %s\n", e)
				}
			}
			return nil
		},
	}
	f := c.Flags()
	f.String("user", "", "Account name (env STEAMCTL_USER)")
	f.String("tool", "", "Authenticator CLI to drive (env STEAMCTL_PATH, default steamctl)")
	f.String("config", "", "Flow config file (YAML)")
	f.StringP("output", "o", "text", "Output format (text|json|yaml)")
	bindEnvFlags(v, f, "user", "tool")
	return c
}
