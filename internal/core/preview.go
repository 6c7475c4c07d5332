package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

// PreviewSummary counts what an import of the previewed rows would do.
type PreviewSummary struct {
	TotalRows       int  `json:"totalRows"`
	ValidRows       int  `json:"validRows"`
	ErrorRows       int  `json:"errorRows"`
	DuplicateInFile int  `json:"duplicateInFile"`
	Truncated       bool `json:"truncated"`
}

// RowPreview is a row that passed validation, as it would be persisted.
type RowPreview struct {
	Row    int               `json:"row"`
	Line   int               `json:"line"`
	Values map[string]string `json:"values"`
}

// DuplicatePreview lists the lines sharing one unique key within the file.
type DuplicatePreview struct {
	RowKey string `json:"rowKey"`
	Lines  []int  `json:"lines"`
}

// PreviewResponse is a read-only analysis of the first rows of a file.
type PreviewResponse struct {
	Header           []string           `json:"header,omitempty"`
	Sheet            string             `json:"sheet,omitempty"`
	Summary          PreviewSummary     `json:"summary"`
	ValidSamples     []RowPreview       `json:"validSamples"`
	ErrorSamples     []Failure          `json:"errorSamples"`
	DuplicateSamples []DuplicatePreview `json:"duplicateSamples"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

// Sample limits
const (
	DefaultPreviewRows  = 500
	maxValidSamples     = 10
	maxErrorSamples     = 20
	maxDuplicateSamples = 10
)

// PreviewImport validates up to limit rows of fh against imp without
// persisting anything. Rows repeating the importer's unique key within the
// file are reported as duplicates.
func PreviewImport(ctx context.Context, fh *source.FileHandle, imp Importer, opts ImportOptions, limit int) (*PreviewResponse, error) {
	start := time.Now()
	if limit <= 0 {
		limit = DefaultPreviewRows
	}
	opts.MaxRows = limit

	var valid []RowPreview
	seen := make(map[string][]int)

	fn := func(_ context.Context, rec Record) (RowOutcome, error) {
		values, err := PrepareRecord(imp.Schema, rec.Fields)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return Failed(verr.Field, KindValidationFailed, verr.Message), nil
			}
			return RowOutcome{}, err
		}

		if key := rowKey(imp.UniqueKey, values); key != "" {
			seen[key] = append(seen[key], rec.Line)
			if len(seen[key]) > 1 {
				return Failed(imp.UniqueKey[0], KindDuplicateValue, "duplicate value in file"), nil
			}
		}

		if len(valid) < maxValidSamples {
			valid = append(valid, RowPreview{Row: rec.Row, Line: rec.Line, Values: values})
		}
		return Success(), nil
	}

	summary, err := Import(ctx, fh, imp.Schema, opts, fn)
	if err != nil {
		return nil, err
	}

	resp := &PreviewResponse{
		Header: summary.Header,
		Sheet:  summary.Sheet,
		Summary: PreviewSummary{
			TotalRows: summary.Processed,
			ValidRows: summary.Succeeded,
			ErrorRows: summary.Failed,
			Truncated: summary.Truncated,
		},
		ValidSamples:     valid,
		ErrorSamples:     summary.Failures[:min(len(summary.Failures), maxErrorSamples)],
		DuplicateSamples: []DuplicatePreview{},
	}

	for key, lines := range seen {
		if len(lines) > 1 {
			resp.Summary.DuplicateInFile++
			resp.DuplicateSamples = append(resp.DuplicateSamples, DuplicatePreview{RowKey: key, Lines: lines})
		}
	}
	slices.SortFunc(resp.DuplicateSamples, func(a, b DuplicatePreview) int {
		return a.Lines[0] - b.Lines[0]
	})
	if len(resp.DuplicateSamples) > maxDuplicateSamples {
		resp.DuplicateSamples = resp.DuplicateSamples[:maxDuplicateSamples]
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// rowKey joins the unique key values. Empty if no key is configured or any
// part is empty.
func rowKey(fields []string, values map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		v := strings.ToLower(values[f])
		if v == "" {
			return ""
		}
		parts[i] = v
	}
	return strings.Join(parts, "|")
}

// Preview spools r and previews it with the importer registered as key.
func (s *Service) Preview(ctx context.Context, key, name string, r io.Reader, opts ImportOptions, limit int) (*PreviewResponse, error) {
	imp, ok := Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownImporter, key)
	}
	opts = s.runOptions(opts)

	fh, err := source.Spool(name, r, s.cfg.SpoolDir)
	if err != nil {
		return nil, err
	}
	defer fh.Remove()

	return PreviewImport(ctx, fh, imp, opts, limit)
}
