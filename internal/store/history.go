package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/source"
)

//go:embed schema.sql
var historySchema string

// History stores finished runs in the import_runs table.
type History struct {
	db DB
}

func NewHistory(db DB) *History {
	return &History{db: db}
}

// EnsureSchema creates the history table if needed.
func (h *History) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, historySchema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

const saveRunSQL = `
INSERT INTO import_runs (id, importer, file_name, format, size, client_ip, status, started_at, finished_at, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    finished_at = EXCLUDED.finished_at,
    summary = EXCLUDED.summary`

// SaveRun inserts or updates a run.
func (h *History) SaveRun(ctx context.Context, rec *core.RunRecord) error {
	id := core.ToPgUUID(rec.ID)
	if !id.Valid {
		return fmt.Errorf("save run: invalid run id %q", rec.ID)
	}

	var summary []byte
	if rec.Summary != nil {
		var err error
		if summary, err = json.Marshal(rec.Summary); err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
	}

	_, err := h.db.Exec(ctx, saveRunSQL,
		id,
		rec.Importer,
		rec.FileName,
		string(rec.Format),
		rec.Size,
		core.ToPgText(rec.ClientIP),
		string(rec.Status),
		rec.StartedAt,
		toPgTimestamptz(rec.FinishedAt),
		summary,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

const loadRunSQL = `
SELECT id, importer, file_name, format, size, client_ip, status, started_at, finished_at, summary
FROM import_runs WHERE id = $1`

// LoadRun returns a run, or nil when it does not exist.
func (h *History) LoadRun(ctx context.Context, id string) (*core.RunRecord, error) {
	uid := core.ToPgUUID(id)
	if !uid.Valid {
		return nil, nil
	}

	var (
		rec      core.RunRecord
		gotID    pgtype.UUID
		format   string
		status   string
		clientIP pgtype.Text
		finished pgtype.Timestamptz
		summary  []byte
	)
	err := h.db.QueryRow(ctx, loadRunSQL, uid).Scan(
		&gotID, &rec.Importer, &rec.FileName, &format, &rec.Size,
		&clientIP, &status, &rec.StartedAt, &finished, &summary,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	rec.ID = core.PgUUIDToString(gotID)
	rec.Format = source.Format(format)
	rec.Status = core.Status(status)
	rec.ClientIP = clientIP.String
	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	if len(summary) > 0 {
		rec.Summary = &core.ImportSummary{}
		if err := json.Unmarshal(summary, rec.Summary); err != nil {
			return nil, fmt.Errorf("decode summary of run %s: %w", id, err)
		}
	}
	return &rec, nil
}

// PurgeBefore deletes runs that finished before cutoff.
func (h *History) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := h.db.Exec(ctx, `DELETE FROM import_runs WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func toPgTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
