package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// RunIDColumn is added to every import table and holds the run that wrote the row.
const RunIDColumn = "import_run_id"

// DefaultStatementTimeout bounds a single row's statements.
const DefaultStatementTimeout = 30 * time.Second

// SinkFactory opens a TableSink per run.
type SinkFactory struct {
	db          DB
	stmtTimeout time.Duration
}

// NewSinkFactory returns a factory writing through db.
func NewSinkFactory(db DB, stmtTimeout time.Duration) *SinkFactory {
	if stmtTimeout <= 0 {
		stmtTimeout = DefaultStatementTimeout
	}
	return &SinkFactory{db: db, stmtTimeout: stmtTimeout}
}

func (f *SinkFactory) NewSink(ctx context.Context, imp core.Importer, runID string) (core.Sink, error) {
	return NewTableSink(f.db, imp, runID, f.stmtTimeout), nil
}

// TableSink inserts rows into the importer's table. Each batch is one
// transaction and each row runs inside its own savepoint, so a rejected row
// leaves the rest of the batch intact.
type TableSink struct {
	db          DB
	imp         core.Importer
	run         string
	stmtTimeout time.Duration

	tx        pgx.Tx
	savepoint int
}

// NewTableSink returns a sink for one run.
func NewTableSink(db DB, imp core.Importer, runID string, stmtTimeout time.Duration) *TableSink {
	return &TableSink{db: db, imp: imp, run: runID, stmtTimeout: stmtTimeout}
}

// stmtContext detaches statements from run cancellation so a cancel never
// interrupts a statement halfway and poisons the connection.
func (s *TableSink) stmtContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.stmtTimeout)
}

func (s *TableSink) BeginBatch(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("batch already open")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	s.savepoint = 0
	return nil
}

func (s *TableSink) CommitBatch(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil

	sctx, cancel := s.stmtContext(ctx)
	defer cancel()
	if err := tx.Commit(sctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *TableSink) AbortBatch(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil

	sctx, cancel := s.stmtContext(ctx)
	defer cancel()
	if err := tx.Rollback(sctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// Insert writes one row. Statement errors reported by the server are
// returned as core.Reject so only this row fails; anything else is fatal.
func (s *TableSink) Insert(ctx context.Context, values map[string]string) error {
	if s.tx == nil {
		return errors.New("insert outside of a batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sql, args := insertStatement(s.imp, s.run, values)

	sctx, cancel := s.stmtContext(ctx)
	defer cancel()

	s.savepoint++
	sp := fmt.Sprintf("sp_%d", s.savepoint)
	if _, err := s.tx.Exec(sctx, "SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	if _, err := s.tx.Exec(sctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return fmt.Errorf("insert into %s: %w", s.imp.Table, err)
		}
		if _, rbErr := s.tx.Exec(sctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return fmt.Errorf("rollback savepoint: %w", rbErr)
		}
		logging.FromContext(ctx).Debug("row rejected", "table", s.imp.Table, "sqlstate", pgErr.Code, "error", pgErr.Message)
		return core.Reject(err)
	}

	if _, err := s.tx.Exec(sctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// Close rolls back a batch left open.
func (s *TableSink) Close(ctx context.Context) error {
	if s.tx != nil {
		slog.Warn("closing sink with an open batch", "table", s.imp.Table)
		return s.AbortBatch(ctx)
	}
	return nil
}

// insertStatement builds the INSERT for the fields present in values, in
// schema order, plus the run ID column.
func insertStatement(imp core.Importer, runID string, values map[string]string) (string, []any) {
	cols := make([]string, 0, len(values)+1)
	placeholders := make([]string, 0, len(values)+1)
	args := make([]any, 0, len(values)+1)

	for _, f := range imp.Schema {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		args = append(args, core.ToPgValue(v, f.Type))
		cols = append(cols, quoteIdentifier(f.DBColumn()))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	args = append(args, core.ToPgUUID(runID))
	cols = append(cols, quoteIdentifier(RunIDColumn))
	placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(imp.Table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
	return sql, args
}
