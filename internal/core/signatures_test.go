package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSignatures_SQLState(t *testing.T) {
	table := DefaultSignatures()

	tests := []struct {
		name      string
		err       error
		wantKind  ErrorKind
		wantField string
		wantCode  string
	}{
		{
			name: "unique violation with key detail",
			err: &pgconn.PgError{
				Code:    "23505",
				Message: `duplicate key value violates unique constraint "contacts_email_key"`,
				Detail:  "Key (email)=(bob@example.com) already exists.",
			},
			wantKind:  KindDuplicateValue,
			wantField: "email",
			wantCode:  "DB001",
		},
		{
			name:      "not null uses column name",
			err:       &pgconn.PgError{Code: "23502", Message: "null value", ColumnName: "name"},
			wantKind:  KindRequiredFieldMissing,
			wantField: "name",
			wantCode:  "VAL003",
		},
		{
			name:     "foreign key wrapped",
			err:      fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503", Message: "fk"}),
			wantKind: KindInvalidReference,
			wantCode: "DB003",
		},
		{
			name:     "sqlstate wins over message",
			err:      &pgconn.PgError{Code: "22001", Message: "duplicate key value"},
			wantKind: KindValidationFailed,
			wantCode: "VAL009",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := table.Translate(tt.err)
			assert.Equal(t, tt.wantKind, tr.Kind)
			assert.Equal(t, tt.wantField, tr.Field)
			assert.Equal(t, tt.wantCode, tr.Code)
			assert.NotEmpty(t, tr.Message)
		})
	}
}

func TestDefaultSignatures_Patterns(t *testing.T) {
	table := DefaultSignatures()

	tr := table.Translate(errors.New("UNIQUE constraint failed: contacts.email"))
	assert.Equal(t, KindDuplicateValue, tr.Kind)

	tr = table.Translate(&pgconn.PgError{Code: "XX999", Message: "new row violates check constraint \"price_positive\""})
	assert.Equal(t, KindValidationFailed, tr.Kind)
}

func TestTranslate_Unknown(t *testing.T) {
	tr := DefaultSignatures().Translate(errors.New("disk quota exceeded"))
	assert.Equal(t, KindUnknown, tr.Kind)
	assert.Equal(t, "disk quota exceeded", tr.Message)

	var nilTable *SignatureTable
	tr = nilTable.Translate(errors.New("duplicate key value"))
	assert.Equal(t, KindUnknown, tr.Kind)
}

func TestLoadSignatures(t *testing.T) {
	table, err := LoadSignatures([]byte(`
signatures:
  - kind: duplicate_value
    patterns: ["Already Taken"]
`))
	require.NoError(t, err)

	tr := table.Translate(errors.New("login already taken"))
	assert.Equal(t, KindDuplicateValue, tr.Kind)
	assert.Equal(t, "login already taken", tr.Message, "empty message keeps the original")
}

func TestLoadSignatures_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "signatures: [", "parse signatures"},
		{"unknown kind", "signatures:\n  - kind: exploded\n    sqlstate: '1'\n", `unknown kind "exploded"`},
		{"no matcher", "signatures:\n  - kind: unknown\n", "needs a sqlstate"},
		{"duplicate state", "signatures:\n  - kind: unknown\n    sqlstate: '1'\n  - kind: unknown\n    sqlstate: '1'\n", "duplicate sqlstate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSignatures([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSignaturesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sig.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signatures:\n  - kind: invalid_reference\n    sqlstate: '23503'\n"), 0o600))

	table, err := LoadSignaturesFile(path)
	require.NoError(t, err)
	assert.Equal(t, KindInvalidReference, table.Translate(&pgconn.PgError{Code: "23503"}).Kind)

	_, err = LoadSignaturesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
