package source

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Mode selects how rows are read.
type Mode int

const (
	// ModeFullLoad decodes the whole sheet into memory before yielding rows.
	ModeFullLoad Mode = iota
	// ModeStreaming yields rows from a forward-only cursor without retaining them.
	ModeStreaming
)

func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "full-load"
}

// DefaultIOTimeout bounds opening a file and listing its sheets.
const DefaultIOTimeout = 30 * time.Second

// SheetDescriptor describes one sheet of a workbook.
type SheetDescriptor struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	// Rows is the number of rows in the sheet, or -1 when not cheaply known.
	Rows int `json:"rows"`
}

// ReadOptions controls ReadRows.
type ReadOptions struct {
	Sheet  int  // Zero-based sheet index; flat formats accept only 0
	Offset int  // Rows before this offset are skipped but still numbered
	Mode   Mode // Full-load or streaming
	// Timeout bounds opening the file. Zero uses DefaultIOTimeout.
	Timeout time.Duration
}

// RowReader is a forward-only sequence of rows. It is consumed once;
// reading the file again requires another call to ReadRows.
type RowReader interface {
	// Next advances to the next row. It returns false at the end of the
	// sequence or on a fatal read error (see Err).
	Next() bool
	// Row returns the current row. Decode problems are reported on the row
	// itself (RawRow.Err) rather than through Err.
	Row() RawRow
	// Err returns the fatal error that stopped iteration, if any.
	Err() error
	// BytesRead reports how much of the file has been consumed, or -1 if unknown.
	BytesRead() int64
	Close() error
}

// ListSheets returns the sheets of a workbook. Flat formats have none.
func ListSheets(ctx context.Context, fh *FileHandle, timeout time.Duration) ([]SheetDescriptor, error) {
	switch fh.Format {
	case FormatXLSX:
		return bounded(ctx, timeout, func() ([]SheetDescriptor, error) { return listXLSXSheets(fh) }, nil)
	case FormatXLS:
		return bounded(ctx, timeout, func() ([]SheetDescriptor, error) { return listXLSSheets(fh) }, nil)
	case FormatCSV, FormatTSV:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fh.Format)
	}
}

// ReadRows opens a row sequence over the file.
func ReadRows(ctx context.Context, fh *FileHandle, opts ReadOptions) (RowReader, error) {
	if opts.Sheet < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSheetIndex, opts.Sheet)
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	switch fh.Format {
	case FormatCSV, FormatTSV:
		if opts.Sheet != 0 {
			return nil, fmt.Errorf("%w: %d (%s files have a single sheet)", ErrInvalidSheetIndex, opts.Sheet, fh.Format)
		}
		return readDelimited(ctx, fh, opts)
	case FormatXLSX:
		return readXLSX(ctx, fh, opts)
	case FormatXLS:
		return readXLS(ctx, fh, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fh.Format)
	}
}

// sliceReader serves rows that were fully decoded up front.
type sliceReader struct {
	rows  []RawRow
	pos   int
	size  int64
	close func() error
}

func newSliceReader(rows []RawRow, size int64) *sliceReader {
	return &sliceReader{rows: rows, pos: -1, size: size}
}

func (r *sliceReader) Next() bool {
	if r.pos+1 >= len(r.rows) {
		r.pos = len(r.rows)
		return false
	}
	r.pos++
	return true
}

func (r *sliceReader) Row() RawRow {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return RawRow{}
	}
	return r.rows[r.pos]
}

func (r *sliceReader) Err() error { return nil }

func (r *sliceReader) BytesRead() int64 {
	if len(r.rows) == 0 || r.pos >= len(r.rows) {
		return r.size
	}
	if r.pos < 0 {
		return 0
	}
	return r.size * int64(r.pos+1) / int64(len(r.rows))
}

func (r *sliceReader) Close() error {
	r.rows = nil
	if r.close != nil {
		return r.close()
	}
	return nil
}

// drain reads every row of rr into memory and closes it.
func drain(rr RowReader) ([]RawRow, error) {
	defer rr.Close()
	var rows []RawRow
	for rr.Next() {
		rows = append(rows, rr.Row())
	}
	if err := rr.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// bounded runs open under the I/O timeout. If the deadline passes first the
// call returns ErrUnreadableFile and release is applied to the late result.
func bounded[T any](ctx context.Context, timeout time.Duration, open func() (T, error), release func(T)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := open()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			r := <-ch
			if r.err == nil && release != nil {
				release(r.v)
			}
		}()
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrUnreadableFile, ctx.Err())
	}
}

// contextReader fails reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	return c.r.Read(p)
}
