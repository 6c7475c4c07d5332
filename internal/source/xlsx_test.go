package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes a two-sheet workbook. Row 3 of the first sheet is
// left empty so that numbering gaps can be checked.
func buildWorkbook(t *testing.T) *FileHandle {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"name", "email", "age"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Alice", "a@x.com", 30}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"Bob", "", 41}))

	_, err := f.NewSheet("Archive")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Archive", "A1", &[]any{"sku"}))

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))

	fh, err := Open(path)
	require.NoError(t, err)
	return fh
}

func TestListSheets_XLSX(t *testing.T) {
	fh := buildWorkbook(t)
	assert.True(t, fh.Format.HasSheets())

	sheets, err := ListSheets(context.Background(), fh, 0)
	require.NoError(t, err)
	require.Len(t, sheets, 2)

	assert.Equal(t, "Sheet1", sheets[0].Name)
	assert.Equal(t, 0, sheets[0].Index)
	assert.Contains(t, []int{4, -1}, sheets[0].Rows)
	assert.Equal(t, "Archive", sheets[1].Name)
	assert.Equal(t, 1, sheets[1].Index)
}

func TestReadRows_XLSXModesAgree(t *testing.T) {
	fh := buildWorkbook(t)

	for _, offset := range []int{0, 1, 2} {
		full := readAll(t, fh, ReadOptions{Mode: ModeFullLoad, Offset: offset})
		stream := readAll(t, fh, ReadOptions{Mode: ModeStreaming, Offset: offset})
		assert.Equal(t, full, stream, "offset %d", offset)
	}

	rows := readAll(t, fh, ReadOptions{Mode: ModeStreaming})
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "email", "age"}, rows[0].Strings())
	assert.Equal(t, []string{"Alice", "a@x.com", "30"}, rows[1].Strings())
	assert.Equal(t, 4, rows[2].Number, "empty row 3 keeps its number")
	assert.True(t, rows[2].Cells[1].IsEmpty())
}

func TestReadRows_XLSXSecondSheet(t *testing.T) {
	fh := buildWorkbook(t)

	rows := readAll(t, fh, ReadOptions{Sheet: 1})
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"sku"}, rows[0].Strings())
}

func TestReadRows_XLSXInvalidSheet(t *testing.T) {
	fh := buildWorkbook(t)

	for _, sheet := range []int{2, -1} {
		_, err := ReadRows(context.Background(), fh, ReadOptions{Sheet: sheet})
		assert.ErrorIs(t, err, ErrInvalidSheetIndex, "sheet %d", sheet)
	}
}

func TestReadRows_XLSXCorruptFile(t *testing.T) {
	fh := writeFile(t, "broken.xlsx", "this is not a zip archive")

	_, err := ReadRows(context.Background(), fh, ReadOptions{})
	assert.ErrorIs(t, err, ErrUnreadableFile)

	_, err = ListSheets(context.Background(), fh, 0)
	assert.ErrorIs(t, err, ErrUnreadableFile)
}
