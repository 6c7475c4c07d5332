package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

func newImportCommand() *cobra.Command {
	var (
		flags      importFlags
		failedPath string
		quiet      bool
	)
	cmd := &cobra.Command{
		Use:   "import IMPORTER FILE",
		Short: "Import a file into the importer's table",
		Long: `Import a file into the importer's table.

Database and import settings are read from the same environment variables
as the server (DATABASE_URL, IMPORT_*). The run is recorded in the run
history, so the server can serve its result and failed rows afterwards.

Examples:
  sheetimport import contacts ./people.xlsx --sheet 1
  sheetimport import products ./export.csv --header-offset 2 --failed-rows ./rejected.csv
  sheetimport import contacts ./raw.csv --no-header --map name=0 --map email=2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			imp, ok := core.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", core.ErrUnknownImporter, args[0])
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			history := store.NewHistory(pool)
			if err := history.EnsureSchema(ctx); err != nil {
				return err
			}
			if err := store.EnsureTables(ctx, pool, []core.Importer{imp}); err != nil {
				return err
			}

			svc, err := core.NewService(core.ServiceConfig{
				SpoolDir:      cfg.Import.SpoolDir,
				RunTimeout:    cfg.Import.RunTimeout,
				MaxConcurrent: 1,
				MaxWait:       cfg.Import.MaxWait,
				CancelGrace:   cfg.Import.CancelGrace,
				Defaults:      cfg.ImportDefaults(),
			}, store.NewSinkFactory(pool, cfg.Database.StatementTimeout), history)
			if err != nil {
				return err
			}
			defer svc.Shutdown(context.WithoutCancel(ctx))

			path, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			id, err := svc.StartImportFile(ctx, imp.Key, path, opts)
			if err != nil {
				return err
			}
			if !quiet {
				followProgress(cmd, svc, id)
			}

			// A cancelled command cancels the run; the result still arrives.
			rec, err := svc.Result(context.WithoutCancel(ctx), id)
			if err != nil {
				return err
			}

			if failedPath != "" && rec.Summary != nil && rec.Summary.Failed > 0 {
				if err := writeReport(ctx, svc, id, failedPath); err != nil {
					return err
				}
			}

			if format == outputJSON {
				if err := printJSON(cmd.OutOrStdout(), rec); err != nil {
					return err
				}
			} else if rec.Summary != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", rec.ID)
				printSummary(cmd.OutOrStdout(), rec.Summary)
				printFailures(cmd.OutOrStdout(), rec.Summary.Failures, 20)
			}

			if rec.Status == core.StatusFailed || rec.Status == core.StatusAborted {
				return fmt.Errorf("import %s", rec.Status)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&failedPath, "failed-rows", "", "Write rejected rows to this file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	addOutputFlag(cmd)
	return cmd
}

// followProgress prints progress to stderr until the run finishes. If the
// command's context is cancelled the run is cancelled too.
func followProgress(cmd *cobra.Command, svc *core.Service, id string) {
	updates, unsubscribe, err := svc.Subscribe(cmd.Context(), id)
	if err != nil {
		return
	}
	defer unsubscribe()

	w := cmd.ErrOrStderr()
	for {
		select {
		case <-cmd.Context().Done():
			_ = svc.Cancel(context.WithoutCancel(cmd.Context()), id)
			fmt.Fprintln(w)
			return
		case p, open := <-updates:
			if !open {
				fmt.Fprintln(w)
				return
			}
			fmt.Fprintf(w, "\r%3d%%  %d rows, %d ok, %d failed, %d skipped", p.Percent(), p.Processed, p.Succeeded, p.Failed, p.Skipped)
		}
	}
}

func writeReport(ctx context.Context, svc *core.Service, id, path string) error {
	report, err := svc.FailedRows(ctx, id)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failed-rows file: %w", err)
	}
	if err := report.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
