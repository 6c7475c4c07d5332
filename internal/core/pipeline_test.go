package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

func TestImport_ValidationFailure(t *testing.T) {
	fh := writeFile(t, "contacts.csv", "name,email\nAlice,a@x.com\nBob,bad-email\n")
	schema := contactSchema()

	s, err := Import(context.Background(), fh, schema, ImportOptions{}, validatingFunc(schema))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Processed)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, StatusCompleted, s.Status())
	assert.Equal(t, []string{"name", "email"}, s.Header)
	assert.False(t, s.Streaming)

	require.Len(t, s.Failures, 1)
	f := s.Failures[0]
	assert.Equal(t, 2, f.Row)
	assert.Equal(t, 3, f.Line)
	assert.Equal(t, "email", f.Field)
	assert.Equal(t, KindValidationFailed, f.Kind)
	assert.Equal(t, []string{"Bob", "bad-email"}, f.Values)
}

func TestImport_HeaderOffsetKeepsFileRowNumbers(t *testing.T) {
	content := "Quarterly contacts export\nGenerated 2024-01-01\nname,email\nCarol,bad\nDan,d@x.com\n"
	fh := writeFile(t, "banner.csv", content)
	schema := contactSchema()

	s, err := Import(context.Background(), fh, schema, ImportOptions{HeaderOffset: 2}, validatingFunc(schema))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Processed)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, 3, s.Failures[0].Row)
	assert.Equal(t, 4, s.Failures[0].Line)
}

func TestImport_MissingRequiredFieldPreflight(t *testing.T) {
	fh := writeFile(t, "no-email.csv", "name,phone\nAlice,555\n")

	calls := 0
	fn := func(context.Context, Record) (RowOutcome, error) {
		calls++
		return Success(), nil
	}

	s, err := Import(context.Background(), fh, contactSchema(), ImportOptions{}, fn)
	require.Error(t, err)

	var missing *MissingRequiredFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"email"}, missing.Fields)

	require.NotNil(t, s)
	assert.Equal(t, StatusFailed, s.Status())
	assert.Zero(t, s.Processed)
	assert.Zero(t, calls)
}

func TestImport_ExplicitMappingWithoutHeader(t *testing.T) {
	fh := writeFile(t, "raw.csv", "a@x.com,Alice\nb@x.com,Bob\n")
	schema := contactSchema()

	var names []string
	fn := func(_ context.Context, rec Record) (RowOutcome, error) {
		names = append(names, rec.Fields.Text("name"))
		assert.Equal(t, rec.Line, rec.Row, "no header row, so row equals line")
		return Success(), nil
	}

	opts := ImportOptions{NoHeader: true, Mapping: Mapping{"email": 0, "name": 1}}
	s, err := Import(context.Background(), fh, schema, opts, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, []string{"Alice", "Bob"}, names)
	assert.Empty(t, s.Header)
}

func TestImport_ExplicitMappingOverridesHeader(t *testing.T) {
	fh := writeFile(t, "swapped.csv", "name,email\na@x.com,Alice\n")

	var got MappedRecord
	fn := func(_ context.Context, rec Record) (RowOutcome, error) {
		got = rec.Fields
		return Success(), nil
	}
	_, err := Import(context.Background(), fh, contactSchema(), ImportOptions{Mapping: Mapping{"email": 0, "name": 1}}, fn)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Text("name"))
}

func TestImport_InvalidOptions(t *testing.T) {
	fh := writeFile(t, "x.csv", "name,email\n")
	s, err := Import(context.Background(), fh, contactSchema(), ImportOptions{ChunkSize: -5}, acceptAll)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Equal(t, StatusFailed, s.Status())
}

func TestImport_SheetIndexOnFlatFile(t *testing.T) {
	fh := writeFile(t, "x.csv", "name,email\n")
	s, err := Import(context.Background(), fh, contactSchema(), ImportOptions{ActiveSheet: 1}, acceptAll)
	assert.ErrorIs(t, err, ErrInvalidSheetIndex)
	assert.Equal(t, StatusFailed, s.Status())
}

func TestImport_StreamingMatchesFullLoad(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("\ufeffname,email\n")
	for i := range 50 {
		email := fmt.Sprintf("user%d@example.com", i)
		if i%7 == 0 {
			email = "broken"
		}
		fmt.Fprintf(&sb, "user %d,%s\n", i, email)
		if i%10 == 0 {
			sb.WriteString("\n")
		}
	}
	fh := writeFile(t, "many.csv", sb.String())
	schema := contactSchema()

	full, err := Import(context.Background(), fh, schema, ImportOptions{Streaming: StreamingOff}, validatingFunc(schema))
	require.NoError(t, err)
	streamed, err := Import(context.Background(), fh, schema, ImportOptions{Streaming: StreamingOn}, validatingFunc(schema))
	require.NoError(t, err)

	assert.False(t, full.Streaming)
	assert.True(t, streamed.Streaming)
	full.Streaming = true
	assert.Equal(t, full, streamed)
	assert.Equal(t, 50, full.Processed)
	assert.Equal(t, 8, full.Failed)
}

func TestImport_Deterministic(t *testing.T) {
	fh := writeFile(t, "d.csv", "email,name,email\nx@y.io,A,ignored\nbad,B,\n")
	schema := contactSchema()

	first, err := Import(context.Background(), fh, schema, ImportOptions{}, validatingFunc(schema))
	require.NoError(t, err)
	for range 5 {
		again, err := Import(context.Background(), fh, schema, ImportOptions{}, validatingFunc(schema))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 1, first.Failed)
}

func TestImport_MaxRows(t *testing.T) {
	fh := writeFile(t, "m.csv", "name,email\na,a@x.io\nb,b@x.io\nc,c@x.io\n")
	s, err := Import(context.Background(), fh, contactSchema(), ImportOptions{MaxRows: 2}, acceptAll)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Processed)
	assert.Equal(t, StatusTruncated, s.Status())
}

func TestImport_WorkbookSheets(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"unrelated"}))
	_, err := f.NewSheet("People")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("People", "A1", &[]any{"Name", "Email"}))
	require.NoError(t, f.SetSheetRow("People", "A2", &[]any{"Eve", "eve@example.com"}))
	require.NoError(t, f.SetSheetRow("People", "A3", &[]any{"Fay", "not-an-email"}))

	path := filepath.Join(t.TempDir(), "people.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	fh, err := source.Open(path)
	require.NoError(t, err)
	schema := contactSchema()

	s, err := Import(context.Background(), fh, schema, ImportOptions{ActiveSheet: 1}, validatingFunc(schema))
	require.NoError(t, err)
	assert.Equal(t, "People", s.Sheet)
	assert.Equal(t, 2, s.Processed)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, 2, s.Failures[0].Row)

	_, err = Import(context.Background(), fh, schema, ImportOptions{ActiveSheet: 2}, acceptAll)
	assert.ErrorIs(t, err, ErrInvalidSheetIndex)
}

func TestImport_CancelledBeforeStart(t *testing.T) {
	fh := writeFile(t, "c.csv", "name,email\na,a@x.io\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := Import(ctx, fh, contactSchema(), ImportOptions{}, acceptAll)
	// Opening the file may already observe the cancellation.
	if err != nil {
		assert.ErrorIs(t, err, ErrUnreadableFile)
		return
	}
	assert.Equal(t, StatusCancelled, s.Status())
	assert.Zero(t, s.Processed)
}
