package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/shakinm/xlsReader/xls/record"
	"github.com/shakinm/xlsReader/xls/structure"
)

// The legacy BIFF reader parses the whole workbook on open, so streaming an
// .xls file only avoids materialising the converted rows, not the raw records.

func openXLS(ctx context.Context, fh *FileHandle, opts ReadOptions) (xls.Workbook, error) {
	wb, err := bounded(ctx, opts.Timeout, func() (xls.Workbook, error) {
		return xls.OpenFile(fh.Path)
	}, nil)
	if err != nil {
		if errors.Is(err, ErrUnreadableFile) {
			return xls.Workbook{}, err
		}
		return xls.Workbook{}, fmt.Errorf("%w: xls: %w", ErrUnreadableFile, err)
	}
	return wb, nil
}

func listXLSSheets(fh *FileHandle) ([]SheetDescriptor, error) {
	wb, err := xls.OpenFile(fh.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: xls: %w", ErrUnreadableFile, err)
	}

	count := wb.GetNumberSheets()
	sheets := make([]SheetDescriptor, 0, count)
	for i := 0; i < count; i++ {
		sheet, err := wb.GetSheet(i)
		if err != nil {
			return nil, fmt.Errorf("%w: xls sheet %d: %w", ErrUnreadableFile, i, err)
		}
		sheets = append(sheets, SheetDescriptor{Name: sheet.GetName(), Index: i, Rows: sheet.GetNumberRows()})
	}
	return sheets, nil
}

func readXLS(ctx context.Context, fh *FileHandle, opts ReadOptions) (RowReader, error) {
	wb, err := openXLS(ctx, fh, opts)
	if err != nil {
		return nil, err
	}

	if count := wb.GetNumberSheets(); opts.Sheet >= count {
		return nil, fmt.Errorf("%w: %d (workbook has %d sheets)", ErrInvalidSheetIndex, opts.Sheet, count)
	}
	sheet, err := wb.GetSheet(opts.Sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: xls sheet %d: %w", ErrUnreadableFile, opts.Sheet, err)
	}

	reader := &xlsReader{ctx: ctx, sheet: sheet, total: sheet.GetNumberRows(), next: opts.Offset}
	if opts.Mode == ModeStreaming {
		return reader, nil
	}

	rows, err := drain(reader)
	if err != nil {
		return nil, err
	}
	return newSliceReader(rows, fh.Size), nil
}

// xlsReader converts one BIFF row per call to Next.
type xlsReader struct {
	ctx   context.Context
	sheet *xls.Sheet
	total int
	next  int // zero-based index of the next row to convert

	cur RawRow
	err error
}

func (x *xlsReader) Next() bool {
	for x.err == nil && x.next < x.total {
		if err := x.ctx.Err(); err != nil {
			x.err = fmt.Errorf("%w: %w", ErrUnreadableFile, err)
			return false
		}
		row := convertXLSRow(x.sheet, x.next)
		x.next++
		if row.Err == nil && row.IsBlank() {
			continue
		}
		x.cur = row
		return true
	}
	return false
}

func (x *xlsReader) Row() RawRow { return x.cur }

func (x *xlsReader) Err() error { return x.err }

func (x *xlsReader) BytesRead() int64 { return -1 }

func (x *xlsReader) Close() error { return nil }

// convertXLSRow reads row index i. Rows the workbook has no record for are
// reported by the library as errors and treated as blank.
func convertXLSRow(sheet *xls.Sheet, i int) RawRow {
	out := RawRow{Number: i + 1}
	row, err := sheet.GetRow(i)
	if err != nil {
		return out
	}

	cols := row.GetCols()
	out.Cells = make([]Cell, len(cols))
	for j, data := range cols {
		out.Cells[j] = xlsCell(data)
	}
	return out
}

func xlsCell(data structure.CellData) Cell {
	if data == nil {
		return Cell{}
	}
	switch data.(type) {
	case *record.Blank, *record.FakeBlank:
		return Cell{}
	case *record.Number, *record.Rk:
		return NumberCell(data.GetFloat64())
	case *record.BoolErr:
		switch strings.ToUpper(data.GetString()) {
		case "TRUE":
			return BoolCell(true)
		case "FALSE":
			return BoolCell(false)
		}
		// Error values such as #DIV/0! are kept as text.
		return StringCell(data.GetString())
	default:
		return StringCell(data.GetString())
	}
}
