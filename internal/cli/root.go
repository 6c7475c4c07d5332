// Package cli implements the sheetimport command line: inspecting files,
// previewing an import and running one against the database without the
// HTTP server.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/logging"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "sheetimport",
		Short:         "Import CSV, TSV, XLSX and XLS files into PostgreSQL tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Logs go to stderr so -o json output stays parseable.
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		newImportersCommand(),
		newSheetsCommand(),
		newPreviewCommand(),
		newImportCommand(),
	)
	return root
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", formatError(err))
		return 1
	}
	return 0
}
