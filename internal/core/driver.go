package core

// driver.go pulls rows from a RowReader, maps them, and feeds them to the
// per-record callback one at a time in file order.
//
// Rows are grouped into batches of ChunkSize. A Batcher, when configured, is
// told where batches begin and end so that a store can use them as
// transaction boundaries. Batches are a grouping hint only: every row gets its
// own outcome regardless of which batch it falls in.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goerrors "github.com/go-errors/errors"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

// RecordFunc imports one mapped row. A returned error is fatal and aborts
// the run; row-level problems are reported through the outcome instead.
type RecordFunc func(ctx context.Context, rec Record) (RowOutcome, error)

// Batcher receives batch boundaries.
type Batcher interface {
	BeginBatch(ctx context.Context) error
	CommitBatch(ctx context.Context) error
	AbortBatch(ctx context.Context) error
}

// ProgressFunc is called after every processed row.
type ProgressFunc func(RowProgress)

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithBatcher sets the batch boundary receiver.
func WithBatcher(b Batcher) DriverOption {
	return func(d *Driver) { d.batcher = b }
}

// WithProgress sets the per-row progress callback.
func WithProgress(fn ProgressFunc) DriverOption {
	return func(d *Driver) { d.progress = fn }
}

// WithSignatures sets the persistence error table.
func WithSignatures(t *SignatureTable) DriverOption {
	return func(d *Driver) { d.signatures = t }
}

// WithSkipDuplicates counts duplicate-value rejections as skipped rows.
func WithSkipDuplicates(skip bool) DriverOption {
	return func(d *Driver) { d.skipDuplicates = skip }
}

// WithLogger sets the logger used for batch and abort messages.
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithRowBase sets how many rows are subtracted from physical row numbers
// when reporting them. Import uses 1 when a header row was consumed.
func WithRowBase(n int) DriverOption {
	return func(d *Driver) { d.rowBase = n }
}

// withSource records where the rows came from in the summary.
func withSource(header []string, sheet string, streaming bool) DriverOption {
	return func(d *Driver) {
		d.header = header
		d.sheet = sheet
		d.streaming = streaming
	}
}

// Driver runs the rows of one import through a RecordFunc.
type Driver struct {
	hm   HeaderMap
	opts ImportOptions
	fn   RecordFunc

	batcher        Batcher
	progress       ProgressFunc
	signatures     *SignatureTable
	skipDuplicates bool
	logger         *slog.Logger
	rowBase        int

	header    []string
	sheet     string
	streaming bool
}

// NewDriver returns a driver for one run. opts should already have defaults applied.
func NewDriver(hm HeaderMap, opts ImportOptions, fn RecordFunc, options ...DriverOption) *Driver {
	d := &Driver{hm: hm, opts: opts, fn: fn, logger: slog.Default()}
	for _, o := range options {
		o(d)
	}
	if d.opts.ChunkSize <= 0 {
		d.opts.ChunkSize = DefaultChunkSize
	}
	return d
}

// batch tracks the open batch.
type batch struct {
	open      bool
	rows      int
	succeeded int
}

// Run consumes rows until they are exhausted, the row limit is hit, ctx is
// cancelled, or a fatal error occurs. It always returns a summary. The error
// is non-nil only for a fatal error, and is then a *FatalError.
func (d *Driver) Run(ctx context.Context, rows source.RowReader) (*ImportSummary, error) {
	c := NewCollector(d.signatures, d.rowBase)
	c.SkipDuplicates(d.skipDuplicates)
	c.SetHeader(d.header)
	c.SetSource(d.sheet, d.streaming)

	fatal := d.loop(ctx, rows, c)

	c.Finish()
	summary, _ := c.Summarize()
	return summary, fatal
}

func (d *Driver) loop(ctx context.Context, rows source.RowReader, c *Collector) error {
	var b batch

	for {
		if ctx.Err() != nil {
			c.Cancel()
			break
		}

		if d.opts.MaxRows > 0 && c.summary.Processed >= d.opts.MaxRows {
			if rows.Next() {
				c.Truncate()
			}
			break
		}

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				if ctx.Err() != nil {
					c.Cancel()
					break
				}
				return d.abort(ctx, c, &b, &FatalError{Err: err})
			}
			break
		}
		// A cancel that lands while Next reads drops the row it returned.
		if ctx.Err() != nil {
			c.Cancel()
			break
		}

		row := rows.Row()
		if row.Err == nil && row.IsBlank() {
			continue
		}

		if !b.open {
			if err := d.begin(ctx); err != nil {
				return d.abort(ctx, c, &b, &FatalError{Row: c.ReportedRow(row.Number), Err: err})
			}
			b = batch{open: true}
		}

		outcome, err := d.process(ctx, row, c)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			c.Cancel()
			break
		}
		if err != nil {
			return d.abort(ctx, c, &b, &FatalError{Row: c.ReportedRow(row.Number), Err: err})
		}

		b.rows++
		if c.Record(row, outcome) == OutcomeSuccess {
			b.succeeded++
		}

		if d.progress != nil {
			p := c.Progress()
			p.BytesRead = rows.BytesRead()
			d.progress(p)
		}

		if b.rows >= d.opts.ChunkSize {
			if err := d.commit(ctx, &b); err != nil {
				return d.abort(ctx, c, &b, &FatalError{Row: c.ReportedRow(row.Number), Err: err})
			}
		}
	}

	// Rows already processed are kept even when the run was cancelled, so
	// the final commit must not see the cancelled context.
	if err := d.commit(context.WithoutCancel(ctx), &b); err != nil {
		return d.abort(ctx, c, &b, &FatalError{Err: err})
	}
	return nil
}

// process maps row and invokes the callback. Corrupt rows fail without
// reaching the callback; a panic in the callback becomes a fatal error.
func (d *Driver) process(ctx context.Context, row source.RawRow, c *Collector) (out RowOutcome, err error) {
	if row.Err != nil {
		return Failed("", KindCorruptRow, row.Err.Error()), nil
	}

	rec := Record{
		Fields: ApplyMap(row, d.hm),
		Row:    c.ReportedRow(row.Number),
		Line:   row.Number,
		Extras: d.opts.Extras,
	}

	defer func() {
		if r := recover(); r != nil {
			wrapped := goerrors.Wrap(r, 2)
			d.logger.Error("panic in record callback",
				"row", rec.Row,
				"panic", wrapped.Error(),
				"stack", wrapped.ErrorStack(),
			)
			out, err = RowOutcome{}, fmt.Errorf("panic: %w", wrapped)
		}
	}()
	return d.fn(ctx, rec)
}

func (d *Driver) begin(ctx context.Context) error {
	if d.batcher == nil {
		return nil
	}
	if err := d.batcher.BeginBatch(ctx); err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	return nil
}

func (d *Driver) commit(ctx context.Context, b *batch) error {
	if !b.open {
		return nil
	}
	if d.batcher != nil {
		if err := d.batcher.CommitBatch(ctx); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	d.logger.Debug("batch committed", "rows", b.rows, "succeeded", b.succeeded)
	*b = batch{}
	return nil
}

// abort discards the open batch and marks the run aborted.
func (d *Driver) abort(ctx context.Context, c *Collector, b *batch, fatal *FatalError) error {
	rolledBack := 0
	if b.open {
		rolledBack = b.succeeded
		if d.batcher != nil {
			if err := d.batcher.AbortBatch(context.WithoutCancel(ctx)); err != nil {
				d.logger.Warn("abort batch failed", "error", err)
			}
		}
		*b = batch{}
	}
	if errors.Is(fatal.Err, ErrUnreadableFile) {
		d.logger.Warn("source became unreadable", "error", fatal.Err)
	}
	d.logger.Error("import aborted", "row", fatal.Row, "error", fatal.Err, "rolled_back", rolledBack)
	c.Abort(fatal, rolledBack)
	return fatal
}
