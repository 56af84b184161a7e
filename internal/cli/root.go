// Package cli implements the refimport command line: it runs the import
// pipeline against any chunk endpoint and previews files locally.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/refimport/internal/config"
	"github.com/JonMunkholm/refimport/internal/ingest"
	"github.com/JonMunkholm/refimport/internal/logging"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitHasErrors = 2
)

// errReportHasErrors signals --fail-on-errors without printing anything more.
var errReportHasErrors = errors.New("import finished with errors")

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes one command line.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errReportHasErrors):
		return ExitHasErrors
	}

	if output, _ := root.PersistentFlags().GetString("output"); output == "json" {
		msg := ingest.MapError(err)
		_ = printJSON(stdout, map[string]string{
			"error":   err.Error(),
			"message": msg.Message,
			"action":  msg.Action,
			"code":    msg.Code,
		})
	} else if ingest.IsUserFacing(err) {
		fmt.Fprintf(stderr, "Error: %v\n%s\n", err, ingest.FormatUserError(err))
	} else {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return ExitFailure
}

// env is the state shared by subcommands after the root pre-run.
type env struct {
	cfg    *config.Config
	output string
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	e := &env{stdout: stdout, stderr: stderr}

	var logLevel, logFormat string

	root := &cobra.Command{
		Use:           "refimport",
		Short:         "Import reference data files through a chunked HTTP endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// The CLI stays at warn unless LOG_LEVEL or the flag asks otherwise.
			if !cmd.Flags().Changed("log-level") && os.Getenv("LOG_LEVEL") != "" {
				logLevel = cfg.Logging.Level
			}
			if !cmd.Flags().Changed("log-format") && os.Getenv("LOG_FORMAT") != "" {
				logFormat = cfg.Logging.Format
			}
			logging.SetupWriter(stderr, logLevel, logFormat)

			if e.output != "text" && e.output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'text' or 'json'", e.output)
			}
			e.cfg = cfg
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&e.output, "output", "o", "text", "Output format (text, json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(newUploadCmd(e))
	root.AddCommand(newPreviewCmd(e))
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
