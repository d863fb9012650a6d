// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/flowd-org/ptylogin/internal/configloader"
	"github.com/flowd-org/ptylogin/internal/coredb"
	"github.com/flowd-org/ptylogin/internal/credentials"
	"github.com/flowd-org/ptylogin/internal/events"
	"github.com/flowd-org/ptylogin/internal/login"
	"github.com/flowd-org/ptylogin/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewLoginCmd() *cobra.Command {
	v := viper.New()
	c := &cobra.Command{
		Use:   "login",
		Short: "Register the authenticator from its secret and log in",
		Long: `Runs the five login steps against the authenticator CLI:
deregister, register, fetch code, login and verify.

Credentials are read from flags or from STEAMCTL_USER, STEAMCTL_PASSWD and
STEAMCTL_SECRET. Prefer the environment for the password and the secret;
command-line flags are visible to other local users.

Tool output is mirrored to stdout. With --report and no --report-file the
report is the only thing written to stdout and the mirror goes to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, v)
		},
	}
	f := c.Flags()
	f.String("user", "", "Account name (env STEAMCTL_USER)")
	f.String("password", "", "Account password (env STEAMCTL_PASSWD)")
	f.String("secret", "", "Authenticator shared secret (env STEAMCTL_SECRET)")
	f.String("tool", "", "Authenticator CLI to drive (env STEAMCTL_PATH, default steamctl)")
	f.String("config", "", "Flow config file (YAML)")
	f.Bool("journal", false, "Persist redacted run events in the journal database")
	f.String("events", "", "Print run events to stderr (text|json)")
	f.BoolP("quiet", "q", false, "Do not mirror tool output")
	f.String("report", "", "Output report format (json|yaml)")
	f.String("report-file", "", "Write the run report to file instead of stdout")
	bindEnvFlags(v, f, "user", "password", "secret", "tool")
	return c
}

// loadConfig reads --config and applies the --tool / STEAMCTL_PATH override.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*types.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := configloader.Load(path)
	if err != nil {
		return nil, &configError{err: err}
	}
	if tool := strings.TrimSpace(v.GetString("tool")); tool != "" {
		cfg.Tool = tool
	}
	return cfg, nil
}

func runLogin(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()
	quiet, _ := flags.GetBool("quiet")
	useJournal, _ := flags.GetBool("journal")
	eventsFormat, _ := flags.GetString("events")
	reportFormat, _ := flags.GetString("report")
	reportFile, _ := flags.GetString("report-file")
	if reportFile != "" && reportFormat == "" {
		reportFormat = "json"
	}
	if err := checkFormat("events", eventsFormat, "", "text", "json"); err != nil {
		return err
	}
	if err := checkFormat("report", reportFormat, "", "json", "yaml"); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}
	creds, err := credentials.New(v.GetString("user"), v.GetString("password"), v.GetString("secret"))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := slog.Default()
	runID := events.GenerateRunID()
	var sinks []events.Sink
	if eventsFormat != "" {
		sinks = append(sinks, events.NewEmitter(cmd.ErrOrStderr(), eventsFormat == "json"))
	}
	if useJournal {
		db, err := coredb.Open(ctx, coredb.Options{})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		sinks = append(sinks, events.NewJournalSink(coredb.NewJournal(db, 0), logger))
		logger.Info("journaling run", slog.String("run_id", runID), slog.String("path", db.Path()))
	}

	// A report printed to stdout owns stdout; progress moves to stderr.
	progress := cmd.OutOrStdout()
	if reportFormat != "" && reportFile == "" {
		progress = cmd.ErrOrStderr()
	}
	var mirror io.Writer
	if !quiet {
		mirror = progress
	}
	flow := &login.Flow{
		Config:   cfg,
		Creds:    creds,
		Sink:     events.NewCompositeSink(sinks...),
		Logger:   logger,
		Output:   mirror,
		Redactor: events.NewRedactor(),
		RunID:    runID,
	}
	rep, runErr := flow.Run(ctx)
	if rep != nil && reportFormat != "" {
		if err := writeReport(cmd.OutOrStdout(), rep, reportFormat, reportFile); err != nil {
			logger.Error("write report", slog.String("run_id", runID), slog.String("error", err.Error()))
		}
	}
	if runErr != nil {
		var se *login.StepError
		if quiet && errors.As(runErr, &se) && se.Output != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "--- %s output ---\n%s\n", se.Step, strings.TrimRight(se.Output, "\n"))
		}
		return runErr
	}
	if !quiet {
		fmt.Fprintf(progress, "\n[OK] %s logged in (%s)\n", creds.User(), runID)
	}
	return nil
}
