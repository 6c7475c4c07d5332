package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:        "duplicate key",
			err:         errors.New("ERROR: duplicate key value violates unique constraint \"contacts_email_key\""),
			wantCode:    "DB001",
			wantMessage: "A record with this key already exists",
		},
		{
			name:     "foreign key",
			err:      errors.New("insert violates foreign key constraint"),
			wantCode: "DB003",
		},
		{
			name:     "unsupported format sentinel",
			err:      fmt.Errorf("%w: .pdf", source.ErrUnsupportedFormat),
			wantCode: "FILE001",
		},
		{
			name:     "unreadable wins over timeout",
			err:      fmt.Errorf("%w: context deadline exceeded", source.ErrUnreadableFile),
			wantCode: "FILE002",
		},
		{
			name:     "missing required field before empty field",
			err:      &MissingRequiredFieldError{Fields: []string{"email"}},
			wantCode: "VAL004",
		},
		{
			name:     "required field is empty",
			err:      errors.New("required field is empty"),
			wantCode: "VAL003",
		},
		{
			name:     "invalid email",
			err:      errors.New("invalid email address"),
			wantCode: "VAL007",
		},
		{
			name:     "limiter",
			err:      ErrTooManyImports,
			wantCode: "UPL002",
		},
		{
			name:     "unknown importer",
			err:      fmt.Errorf("%w: widgets", ErrUnknownImporter),
			wantCode: "IMP001",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:     "case insensitive matching",
			err:      errors.New("DUPLICATE KEY value"),
			wantCode: "DB001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.wantMessage != "" && got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("duplicate key value violates"))

	expected := "A record with this key already exists (Code: DB001). Download failed rows to review duplicates"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil error should not be user facing")
	}
	if !IsUserFacing(ErrInvalidMapping) {
		t.Error("invalid mapping should be user facing")
	}
	if IsUserFacing(errors.New("random internal error xyz")) {
		t.Error("unknown error should not be user facing")
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	techErr := fmt.Errorf("%w: 9", source.ErrInvalidSheetIndex)
	userErr := NewUserError(techErr)
	if userErr.Error() != "The selected sheet does not exist" {
		t.Errorf("Error() = %q, want user message", userErr.Error())
	}
	if !errors.Is(userErr, source.ErrInvalidSheetIndex) {
		t.Error("Unwrap() should reach the original error")
	}
}
