package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

func openWorkbook(ctx context.Context, fh *FileHandle, opts ReadOptions) (*excelize.File, error) {
	f, err := bounded(ctx, opts.Timeout, func() (*excelize.File, error) {
		return excelize.OpenFile(fh.Path)
	}, func(f *excelize.File) { f.Close() })
	if err != nil {
		if errors.Is(err, ErrUnreadableFile) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: xlsx: %w", ErrUnreadableFile, err)
	}
	return f, nil
}

func listXLSXSheets(fh *FileHandle) ([]SheetDescriptor, error) {
	f, err := excelize.OpenFile(fh.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %w", ErrUnreadableFile, err)
	}
	defer f.Close()

	names := f.GetSheetList()
	sheets := make([]SheetDescriptor, len(names))
	for i, name := range names {
		sheets[i] = SheetDescriptor{Name: name, Index: i, Rows: dimensionRows(f, name)}
	}
	return sheets, nil
}

// dimensionRows reads the row count from the sheet's stored dimension
// (e.g. "A1:F120"). Returns -1 when the workbook does not record one.
func dimensionRows(f *excelize.File, sheet string) int {
	dim, err := f.GetSheetDimension(sheet)
	if err != nil || dim == "" {
		return -1
	}
	ref := dim
	if i := strings.LastIndex(dim, ":"); i >= 0 {
		ref = dim[i+1:]
	}
	_, row, err := excelize.CellNameToCoordinates(ref)
	if err != nil {
		return -1
	}
	return row
}

func readXLSX(ctx context.Context, fh *FileHandle, opts ReadOptions) (RowReader, error) {
	f, err := openWorkbook(ctx, fh, opts)
	if err != nil {
		return nil, err
	}

	names := f.GetSheetList()
	if opts.Sheet >= len(names) {
		f.Close()
		return nil, fmt.Errorf("%w: %d (workbook has %d sheets)", ErrInvalidSheetIndex, opts.Sheet, len(names))
	}
	sheet := names[opts.Sheet]

	if opts.Mode == ModeFullLoad {
		defer f.Close()
		all, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: xlsx sheet %q: %w", ErrUnreadableFile, sheet, err)
		}
		rows := make([]RawRow, 0, len(all))
		for i, values := range all {
			row := RawRow{Number: i + 1, Cells: stringCells(values)}
			if row.Number <= opts.Offset || row.IsBlank() {
				continue
			}
			rows = append(rows, row)
		}
		return newSliceReader(rows, fh.Size), nil
	}

	cursor, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: xlsx sheet %q: %w", ErrUnreadableFile, sheet, err)
	}
	return &xlsxReader{ctx: ctx, f: f, rows: cursor, offset: opts.Offset}, nil
}

// xlsxReader walks a worksheet with excelize's streaming cursor.
type xlsxReader struct {
	ctx    context.Context
	f      *excelize.File
	rows   *excelize.Rows
	offset int

	n   int
	cur RawRow
	err error
}

func (x *xlsxReader) Next() bool {
	for x.err == nil {
		if err := x.ctx.Err(); err != nil {
			x.err = fmt.Errorf("%w: %w", ErrUnreadableFile, err)
			return false
		}
		if !x.rows.Next() {
			if err := x.rows.Error(); err != nil {
				x.err = fmt.Errorf("%w: xlsx: %w", ErrUnreadableFile, err)
			}
			return false
		}
		x.n++

		// Columns is called for skipped rows too; the cursor relies on it
		// to advance through the sheet XML.
		values, err := x.rows.Columns()
		if x.n <= x.offset {
			continue
		}
		if err != nil {
			x.cur = RawRow{Number: x.n, Err: fmt.Errorf("%w: %w", ErrCorruptRow, err)}
			return true
		}
		row := RawRow{Number: x.n, Cells: stringCells(values)}
		if row.IsBlank() {
			continue
		}
		x.cur = row
		return true
	}
	return false
}

func (x *xlsxReader) Row() RawRow { return x.cur }

func (x *xlsxReader) Err() error { return x.err }

func (x *xlsxReader) BytesRead() int64 { return -1 }

func (x *xlsxReader) Close() error {
	rowsErr := x.rows.Close()
	if err := x.f.Close(); err != nil {
		return err
	}
	return rowsErr
}
