package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

// fakeRows is an in-memory RowReader.
type fakeRows struct {
	rows   []source.RawRow
	pos    int
	err    error // returned once rows are exhausted
	closed bool

	// onNext runs before each Next; used to cancel mid-run.
	onNext func(pos int)
}

func rowsOf(values ...[]string) *fakeRows {
	r := &fakeRows{}
	for i, v := range values {
		cells := make([]source.Cell, len(v))
		for j, s := range v {
			cells[j] = source.StringCell(s)
		}
		r.rows = append(r.rows, source.RawRow{Number: i + 1, Cells: cells})
	}
	return r
}

func (r *fakeRows) Next() bool {
	if r.onNext != nil {
		r.onNext(r.pos)
	}
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Row() source.RawRow { return r.rows[r.pos-1] }

func (r *fakeRows) Err() error {
	if r.pos >= len(r.rows) {
		return r.err
	}
	return nil
}

func (r *fakeRows) BytesRead() int64 { return int64(r.pos * 10) }

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

// fakeBatcher records batch boundaries.
type fakeBatcher struct {
	mu        sync.Mutex
	events    []string
	commitErr error
}

func (b *fakeBatcher) record(ev string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *fakeBatcher) BeginBatch(context.Context) error { b.record("begin"); return nil }

func (b *fakeBatcher) CommitBatch(context.Context) error {
	b.record("commit")
	return b.commitErr
}

func (b *fakeBatcher) AbortBatch(context.Context) error { b.record("abort"); return nil }

func (b *fakeBatcher) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func contactSchema() Schema {
	return Schema{
		{Name: "name", Required: true},
		{Name: "email", Required: true, Type: FieldEmail, Aliases: []string{"e-mail", "email address"}},
		{Name: "phone"},
	}
}

// validatingFunc validates against schema and succeeds otherwise.
func validatingFunc(schema Schema) RecordFunc {
	return func(_ context.Context, rec Record) (RowOutcome, error) {
		if _, err := PrepareRecord(schema, rec.Fields); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return Failed(verr.Field, KindValidationFailed, verr.Message), nil
			}
			return RowOutcome{}, err
		}
		return Success(), nil
	}
}

func acceptAll(context.Context, Record) (RowOutcome, error) { return Success(), nil }

// writeFile writes content into a temp file and opens it.
func writeFile(t *testing.T, name, content string) *source.FileHandle {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	fh, err := source.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	return fh
}

// registerImporter registers imp for the duration of the test.
func registerImporter(t *testing.T, imp Importer) {
	t.Helper()
	Clear()
	Register(imp)
	t.Cleanup(Clear)
}
