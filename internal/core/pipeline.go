package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

// Import runs one file through the pipeline: it validates opts, resolves the
// sheet, picks the read mode, reads the header row, builds the column map and
// drives every remaining row through fn.
//
// The returned summary is never nil. Pre-flight problems (bad options,
// unreadable file, invalid sheet, missing required fields) return a summary
// with StatusFailed and no processed rows; a fatal error during processing
// returns a partial summary with StatusAborted. Both also return the error.
func Import(ctx context.Context, fh *source.FileHandle, schema Schema, opts ImportOptions, fn RecordFunc, options ...DriverOption) (*ImportSummary, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return failedSummary(err)
	}

	sheet, err := resolveSheet(ctx, fh, opts)
	if err != nil {
		return failedSummary(err)
	}

	streaming := UseStreaming(fh.Size, opts.Streaming, opts.StreamingThreshold)
	mode := source.ModeFullLoad
	if streaming {
		mode = source.ModeStreaming
	}

	rows, err := source.ReadRows(ctx, fh, source.ReadOptions{
		Sheet:   opts.ActiveSheet,
		Offset:  opts.HeaderOffset,
		Mode:    mode,
		Timeout: opts.IOTimeout,
	})
	if err != nil {
		return failedSummary(err)
	}
	defer rows.Close()

	var header source.RawRow
	rowBase := 0
	if !opts.NoHeader {
		if rows.Next() {
			header = rows.Row()
		} else if err := rows.Err(); err != nil {
			return failedSummary(err)
		}
		if header.Err != nil {
			return failedSummary(fmt.Errorf("header row: %w", header.Err))
		}
		rowBase = 1
	}

	var hm HeaderMap
	if len(opts.Mapping) > 0 {
		hm, err = BuildExplicitMap(opts.Mapping, schema)
	} else {
		hm, err = BuildHeaderMap(header, schema)
	}
	if err != nil {
		return failedSummary(err)
	}

	var headerText []string
	if len(header.Cells) > 0 {
		headerText = header.Strings()
	}

	driverOpts := append([]DriverOption{
		WithRowBase(rowBase),
		withSource(headerText, sheet, streaming),
	}, options...)
	return NewDriver(hm, opts, fn, driverOpts...).Run(ctx, rows)
}

// resolveSheet checks the sheet index and returns the sheet's name.
// Flat files have a single unnamed sheet.
func resolveSheet(ctx context.Context, fh *source.FileHandle, opts ImportOptions) (string, error) {
	if !fh.Format.HasSheets() {
		if opts.ActiveSheet != 0 {
			return "", fmt.Errorf("%w: %d (%s files have a single sheet)", ErrInvalidSheetIndex, opts.ActiveSheet, fh.Format)
		}
		return "", nil
	}

	sheets, err := source.ListSheets(ctx, fh, opts.IOTimeout)
	if err != nil {
		return "", err
	}
	if opts.ActiveSheet >= len(sheets) {
		return "", fmt.Errorf("%w: %d (workbook has %d sheets)", ErrInvalidSheetIndex, opts.ActiveSheet, len(sheets))
	}
	return sheets[opts.ActiveSheet].Name, nil
}

func failedSummary(err error) (*ImportSummary, error) {
	c := NewCollector(nil, 0)
	c.Fail(err)
	c.Finish()
	summary, _ := c.Summarize()
	return summary, err
}
