package core

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

func reportSummary() *ImportSummary {
	return &ImportSummary{
		Header: []string{"name", "email"},
		Failures: []Failure{
			{Row: 2, Line: 3, Field: "email", Message: "invalid email address", Values: []string{"Bob", "bad"}},
			{Row: 5, Line: 6, Kind: KindCorruptRow, Message: "corrupt row", Values: []string{"x", "y", "extra"}},
		},
	}
}

func TestReportFormatFor(t *testing.T) {
	assert.Equal(t, ReportCSV, ReportFormatFor(source.FormatCSV))
	assert.Equal(t, ReportCSV, ReportFormatFor(source.FormatTSV))
	assert.Equal(t, ReportXLSX, ReportFormatFor(source.FormatXLSX))
	assert.Equal(t, ReportXLSX, ReportFormatFor(source.FormatXLS))
}

func TestReportFileName(t *testing.T) {
	assert.Equal(t, "contacts_failed.csv", ReportFileName("/uploads/contacts.csv", ReportCSV))
	assert.Equal(t, "Q1 list_failed.xlsx", ReportFileName("Q1 list.xls", ReportXLSX))
	assert.Equal(t, "import_failed.csv", ReportFileName("", ReportCSV))
}

func TestWriteFailedRows_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFailedRows(&buf, reportSummary(), ReportCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"name", "email", "Column 3", "Error"},
		{"Bob", "bad", "", "row 2: email: invalid email address"},
		{"x", "y", "extra", "row 5: corrupt row"},
	}, records)
}

func TestWriteFailedRows_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFailedRows(&buf, reportSummary(), ReportXLSX))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Failed Rows"}, f.GetSheetList())
	rows, err := f.GetRows("Failed Rows")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "email", "Column 3", "Error"}, rows[0])
	assert.Equal(t, "row 2: email: invalid email address", rows[1][3])
}

func TestWriteFailedRows_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFailedRows(&buf, &ImportSummary{Header: []string{"a"}}, ReportCSV))
	assert.Equal(t, "a,Error\n", buf.String())
}

func TestWriteFailedRows_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteFailedRows(&buf, reportSummary(), ReportFormat("pdf")))
}
