// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/flowd-org/ptylogin/internal/credentials"
	"github.com/flowd-org/ptylogin/internal/login"
	"github.com/flowd-org/ptylogin/internal/paths"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitConfig     = 2
	exitSpawn      = 3
	exitTimeout    = 4
	exitTerminated = 5
	exitMalformed  = 6
)

var exitFunc = os.Exit

// configError marks problems detected before any process is spawned.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func configErrorf(format string, a ...any) error {
	return &configError{err: fmt.Errorf(format, a...)}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ptylogin",
		Short:         "Unattended login for authenticator CLIs that insist on a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("log-format")
			verbosity, _ := cmd.Flags().GetCount("verbose")
			logger, err := newLogger(cmd.ErrOrStderr(), format, verbosity)
			if err != nil {
				return &configError{err: err}
			}
			slog.SetDefault(logger)
			if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
				paths.SetDataDirOverride(dir)
			}
			return nil
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &configError{err: err}
	})
	root.PersistentFlags().String("log-format", "text", "Log format on stderr (text|json)")
	root.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	root.PersistentFlags().String("data-dir", "", "Directory for the run journal (env PTYLOGIN_DATA_DIR)")

	root.AddCommand(NewLoginCmd())
	root.AddCommand(NewPlanCmd())
	root.AddCommand(NewJournalCmd())
	root.AddCommand(NewCompletionCmd(root))
	return root
}

// Execute runs the CLI and exits with a code describing the failure class.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		exitFunc(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var (
		cfgErr   *configError
		fieldErr *credentials.FieldError
	)
	if errors.As(err, &cfgErr) || errors.As(err, &fieldErr) {
		return exitConfig
	}
	switch login.Classify(err) {
	case login.CategorySpawn:
		return exitSpawn
	case login.CategoryTimeout:
		return exitTimeout
	case login.CategoryUnexpectedTermination:
		return exitTerminated
	case login.CategoryMalformedOutput:
		return exitMalformed
	default:
		return exitError
	}
}

func newLogger(w io.Writer, format string, verbosity int) (*slog.Logger, error) {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	return slog.New(handler), nil
}
