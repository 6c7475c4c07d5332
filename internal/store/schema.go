package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// columnType maps a field type to its PostgreSQL column type.
func columnType(t core.FieldType) string {
	switch t {
	case core.FieldDate:
		return "DATE"
	case core.FieldNumeric:
		return "NUMERIC"
	case core.FieldBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// createTableSQL returns the statements that create imp's table and the
// unique index on its natural key.
func createTableSQL(imp core.Importer) []string {
	cols := []string{"id BIGSERIAL PRIMARY KEY"}
	for _, f := range imp.Schema {
		col := quoteIdentifier(f.DBColumn()) + " " + columnType(f.Type)
		if f.Required && !f.AllowEmpty {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	cols = append(cols,
		quoteIdentifier(RunIDColumn)+" UUID",
		"imported_at TIMESTAMPTZ NOT NULL DEFAULT now()",
	)

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quoteIdentifier(imp.Table), strings.Join(cols, ",\n\t"))}

	if len(imp.UniqueKey) > 0 {
		keyCols := make([]string, len(imp.UniqueKey))
		for i, name := range imp.UniqueKey {
			col := name
			if f, ok := imp.Schema.Field(name); ok {
				col = f.DBColumn()
			}
			keyCols[i] = quoteIdentifier(col)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdentifier(imp.Table+"_natural_key"),
			quoteIdentifier(imp.Table),
			strings.Join(keyCols, ", ")))
	}
	return stmts
}

// EnsureTables creates the tables of the given importers if they are missing.
func EnsureTables(ctx context.Context, db DB, importers []core.Importer) error {
	for _, imp := range importers {
		for _, stmt := range createTableSQL(imp) {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create table %s: %w", imp.Table, err)
			}
		}
	}
	return nil
}
