package core

import (
	"cmp"
	"errors"
	"slices"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

// Collector accumulates row outcomes for one run and assembles the summary.
// It is owned by a single driver and is not safe for concurrent use.
type Collector struct {
	signatures     *SignatureTable
	skipDuplicates bool
	rowBase        int

	summary  ImportSummary
	finished bool
	built    *ImportSummary
}

// NewCollector returns a collector that translates persistence errors with
// signatures (nil means DefaultSignatures). Reported row numbers are the
// physical row minus rowBase.
func NewCollector(signatures *SignatureTable, rowBase int) *Collector {
	if signatures == nil {
		signatures = DefaultSignatures()
	}
	return &Collector{signatures: signatures, rowBase: rowBase}
}

// SkipDuplicates makes duplicate-value rejections count as skipped rows.
func (c *Collector) SkipDuplicates(skip bool) { c.skipDuplicates = skip }

// ReportedRow converts a physical row number to the reported one.
func (c *Collector) ReportedRow(line int) int {
	if line-c.rowBase < 1 {
		return line
	}
	return line - c.rowBase
}

// Record adds the outcome of one processed row and returns the kind it was
// counted as after translation.
func (c *Collector) Record(row source.RawRow, outcome RowOutcome) OutcomeKind {
	c.summary.Processed++

	switch outcome.Kind {
	case OutcomeSuccess:
		c.summary.Succeeded++
		return OutcomeSuccess
	case OutcomeSkippedDuplicate:
		c.summary.Skipped++
		return OutcomeSkippedDuplicate
	}

	f := Failure{
		Row:     c.ReportedRow(row.Number),
		Line:    row.Number,
		Field:   outcome.Field,
		Kind:    outcome.ErrorKind,
		Message: outcome.Message,
		Values:  row.Strings(),
	}
	if outcome.Err != nil {
		tr := c.signatures.Translate(outcome.Err)
		if tr.Kind == KindDuplicateValue && c.skipDuplicates {
			c.summary.Skipped++
			return OutcomeSkippedDuplicate
		}
		f.Kind, f.Message, f.Code = tr.Kind, tr.Message, tr.Code
		if f.Field == "" {
			f.Field = tr.Field
		}
	}
	if f.Kind == "" {
		f.Kind = KindUnknown
	}
	if f.Code == "" {
		f.Code = MapError(errors.New(f.Message)).Code
	}

	c.summary.Failed++
	c.summary.Failures = append(c.summary.Failures, f)
	return OutcomeFailed
}

// Progress reports the running counts.
func (c *Collector) Progress() RowProgress {
	return RowProgress{
		Processed: c.summary.Processed,
		Succeeded: c.summary.Succeeded,
		Failed:    c.summary.Failed,
		Skipped:   c.summary.Skipped,
		BytesRead: -1,
	}
}

func (c *Collector) SetHeader(header []string) { c.summary.Header = header }

func (c *Collector) SetSource(sheet string, streaming bool) {
	c.summary.Sheet = sheet
	c.summary.Streaming = streaming
}

// Truncate marks the run as stopped by the row limit.
func (c *Collector) Truncate() { c.summary.Truncated = true }

// Cancel marks the run as stopped by cancellation.
func (c *Collector) Cancel() { c.summary.Cancelled = true }

// Abort marks the run as aborted by err. rolledBack successes from the
// discarded batch are moved out of the succeeded count.
func (c *Collector) Abort(err error, rolledBack int) {
	c.summary.Aborted = true
	if err != nil {
		c.summary.Fatal = err.Error()
	}
	rolledBack = min(rolledBack, c.summary.Succeeded)
	c.summary.Succeeded -= rolledBack
	c.summary.RolledBack += rolledBack
}

// Fail records a pre-flight error; no rows were processed.
func (c *Collector) Fail(err error) {
	if err != nil {
		c.summary.Fatal = err.Error()
	}
}

// Finish closes the collector. Further Record calls are a programming error.
func (c *Collector) Finish() { c.finished = true }

// Summarize builds the summary. It is idempotent and returns
// ErrRunInProgress until Finish has been called.
func (c *Collector) Summarize() (*ImportSummary, error) {
	if !c.finished {
		return nil, ErrRunInProgress
	}
	if c.built == nil {
		s := c.summary
		s.Failures = slices.Clone(s.Failures)
		if s.Failures == nil {
			s.Failures = []Failure{}
		}
		slices.SortStableFunc(s.Failures, func(a, b Failure) int { return cmp.Compare(a.Line, b.Line) })
		c.built = &s
	}
	return c.built, nil
}
