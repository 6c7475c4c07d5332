package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// delimitedReader streams records from a CSV or TSV file.
type delimitedReader struct {
	f       *os.File
	r       *csv.Reader
	counter *countingReader
	offset  int

	cur RawRow
	err error
}

func openDelimited(ctx context.Context, fh *FileHandle, offset int, timeout time.Duration) (*delimitedReader, error) {
	f, err := bounded(ctx, timeout, func() (*os.File, error) { return os.Open(fh.Path) }, func(f *os.File) { f.Close() })
	if err != nil {
		if errors.Is(err, ErrUnreadableFile) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}

	body, counter := wrapDelimited(contextReader{ctx: ctx, r: f})
	r := csv.NewReader(body)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if fh.Format == FormatTSV {
		r.Comma = '\t'
	}

	return &delimitedReader{f: f, r: r, counter: counter, offset: offset}, nil
}

func (d *delimitedReader) Next() bool {
	for d.err == nil {
		record, err := d.r.Read()
		if err == io.EOF {
			return false
		}

		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			if errors.Is(err, ErrUnreadableFile) {
				d.err = err
			} else {
				d.err = fmt.Errorf("%w: %w", ErrUnreadableFile, err)
			}
			return false
		}

		// Row numbers are physical line numbers so that blank lines and
		// quoted multi-line fields do not shift them.
		var line int
		if parseErr != nil {
			line = parseErr.StartLine
		} else {
			line, _ = d.r.FieldPos(0)
		}
		if line <= d.offset {
			continue
		}

		row := RawRow{Number: line, Cells: stringCells(record)}
		if parseErr != nil {
			row.Err = fmt.Errorf("%w: %w", ErrCorruptRow, parseErr)
		} else if row.IsBlank() {
			continue
		}
		d.cur = row
		return true
	}
	return false
}

func (d *delimitedReader) Row() RawRow      { return d.cur }
func (d *delimitedReader) Err() error       { return d.err }
func (d *delimitedReader) BytesRead() int64 { return d.counter.Count() }
func (d *delimitedReader) Close() error     { return d.f.Close() }

func readDelimited(ctx context.Context, fh *FileHandle, opts ReadOptions) (RowReader, error) {
	d, err := openDelimited(ctx, fh, opts.Offset, opts.Timeout)
	if err != nil {
		return nil, err
	}
	if opts.Mode == ModeStreaming {
		return d, nil
	}

	rows, err := drain(d)
	if err != nil {
		return nil, err
	}
	return newSliceReader(rows, fh.Size), nil
}
