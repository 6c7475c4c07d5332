package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/source"
)

func newImportersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importers",
		Short: "List registered importers and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			importers := core.All()
			if format == outputJSON {
				out := make([]map[string]any, len(importers))
				for i, imp := range importers {
					out[i] = map[string]any{"importer": imp, "fields": imp.Fields()}
				}
				return printJSON(cmd.OutOrStdout(), out)
			}

			t := newTable(cmd.OutOrStdout(), "Importer", "Table", "Field", "Type", "Required", "Aliases")
			for _, imp := range importers {
				for i, f := range imp.Fields() {
					key, tbl := "", ""
					if i == 0 {
						key, tbl = imp.Key, imp.Table
					}
					t.AppendRow(table.Row{key, tbl, f.Name, f.Type, f.Required, strings.Join(f.Aliases, ", ")})
				}
				t.AppendSeparator()
			}
			t.Render()
			return nil
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func newSheetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets FILE",
		Short: "Show the detected format and the sheets of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			fh, err := source.Open(args[0])
			if err != nil {
				return err
			}
			sheets, err := source.ListSheets(cmd.Context(), fh, source.DefaultIOTimeout)
			if err != nil {
				return err
			}

			if format == outputJSON {
				if sheets == nil {
					sheets = []source.SheetDescriptor{}
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"format": fh.Format, "size": fh.Size, "sheets": sheets})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d bytes\n", fh.Name, fh.Format, fh.Size)
			if len(sheets) == 0 {
				return nil
			}
			t := newTable(cmd.OutOrStdout(), "Index", "Name", "Rows")
			for _, s := range sheets {
				rows := any(s.Rows)
				if s.Rows < 0 {
					rows = "?"
				}
				t.AppendRow(table.Row{s.Index, s.Name, rows})
			}
			t.Render()
			return nil
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func newPreviewCommand() *cobra.Command {
	var (
		flags importFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "preview IMPORTER FILE",
		Short: "Validate a file against an importer without writing anything",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			imp, ok := core.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", core.ErrUnknownImporter, args[0])
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			fh, err := source.Open(args[1])
			if err != nil {
				return err
			}

			preview, err := core.PreviewImport(cmd.Context(), fh, imp, opts.WithDefaults(), limit)
			if err != nil {
				return err
			}
			if format == outputJSON {
				return printJSON(cmd.OutOrStdout(), preview)
			}

			w := cmd.OutOrStdout()
			s := preview.Summary
			t := newTable(w, "Rows", "Valid", "Errors", "Duplicates in file", "Truncated")
			t.AppendRow(table.Row{s.TotalRows, s.ValidRows, s.ErrorRows, s.DuplicateInFile, s.Truncated})
			t.Render()
			printFailures(w, preview.ErrorSamples, 0)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", core.DefaultPreviewRows, "Rows to validate")
	addOutputFlag(cmd)
	return cmd
}
