package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	outputHuman = "human"
	outputJSON  = "json"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", outputHuman, "Output format: human|json")
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case outputHuman, outputJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

func printSummary(w io.Writer, s *core.ImportSummary) {
	t := newTable(w, "Status", "Processed", "Succeeded", "Failed", "Skipped", "Rolled back")
	t.AppendRow(table.Row{s.Status(), s.Processed, s.Succeeded, s.Failed, s.Skipped, s.RolledBack})
	t.Render()
	if s.Fatal != "" {
		fmt.Fprintln(w, "fatal:", s.Fatal)
	}
}

func printFailures(w io.Writer, failures []core.Failure, limit int) {
	if len(failures) == 0 {
		return
	}
	t := newTable(w, "Row", "Field", "Kind", "Message")
	for i, f := range failures {
		if limit > 0 && i == limit {
			t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d more", len(failures)-limit)})
			break
		}
		t.AppendRow(table.Row{f.Row, f.Field, f.Kind, f.Message})
	}
	t.Render()
}

// formatError renders err with its user-facing code when one is known.
func formatError(err error) string {
	if core.IsUserFacing(err) {
		msg := core.MapError(err)
		return fmt.Sprintf("%v\n  %s (%s). %s", err, msg.Message, msg.Code, msg.Action)
	}
	return err.Error()
}
