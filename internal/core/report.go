package core

// report.go regenerates a file holding only the rows that failed, in the
// input's column order, with an Error column appended so the user can fix
// the rows and upload the file again.

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

// ReportFormat is the file format of a failed-rows report.
type ReportFormat string

const (
	ReportCSV  ReportFormat = "csv"
	ReportXLSX ReportFormat = "xlsx"
)

// ReportFormatFor picks the report format matching the input: workbooks get
// a workbook back, delimited files get CSV.
func ReportFormatFor(f source.Format) ReportFormat {
	if f.HasSheets() {
		return ReportXLSX
	}
	return ReportCSV
}

// ContentType returns the MIME type of the report format.
func (f ReportFormat) ContentType() string {
	if f == ReportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ReportFileName derives the report's file name from the input's name.
func ReportFileName(input string, f ReportFormat) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if base == "" || base == "." {
		base = "import"
	}
	return fmt.Sprintf("%s_failed.%s", base, f)
}

const reportSheet = "Failed Rows"

// WriteFailedRows writes the failed rows of summary to w.
func WriteFailedRows(w io.Writer, summary *ImportSummary, format ReportFormat) error {
	header, rows := reportRows(summary)

	switch format {
	case ReportCSV:
		return writeReportCSV(w, header, rows)
	case ReportXLSX:
		return writeReportXLSX(w, header, rows)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// reportRows pads every row to the same width so the Error column lines up.
func reportRows(summary *ImportSummary) ([]string, [][]string) {
	width := len(summary.Header)
	for _, f := range summary.Failures {
		width = max(width, len(f.Values))
	}

	header := make([]string, width, width+1)
	copy(header, summary.Header)
	for i := len(summary.Header); i < width; i++ {
		header[i] = fmt.Sprintf("Column %d", i+1)
	}
	header = append(header, "Error")

	rows := make([][]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		row := make([]string, width, width+1)
		copy(row, f.Values)
		rows = append(rows, append(row, failureMessage(f)))
	}
	return header, rows
}

func failureMessage(f Failure) string {
	msg := f.Message
	if f.Field != "" {
		msg = f.Field + ": " + msg
	}
	return fmt.Sprintf("row %d: %s", f.Row, msg)
}

func writeReportCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write failed rows: %w", err)
	}
	return nil
}

func writeReportXLSX(w io.Writer, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(reportSheet)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", headerCells); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("write failed row %d: %w", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
