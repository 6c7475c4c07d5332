package core

// validation.go checks mapped records against their schema before they are
// handed to a sink. Only the first problem of a row is reported, since the
// row fails as a whole.

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidationError describes why a single field was rejected.
type ValidationError struct {
	Field   string // Field name
	Value   string // The offending value
	Message string // Human-readable message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// PrepareRecord cleans, normalizes and validates the mapped fields of rec.
// It returns cleaned text keyed by field name, or a *ValidationError for the
// first field that fails. Unmapped fields are absent from the result.
func PrepareRecord(schema Schema, rec MappedRecord) (map[string]string, error) {
	values := make(map[string]string, len(rec))

	for _, spec := range schema {
		cell, mapped := rec[spec.Name]
		if !mapped {
			continue
		}

		raw := CleanCell(cell.String())
		if raw == "" {
			if spec.Required && !spec.AllowEmpty {
				return nil, &ValidationError{Field: spec.Name, Message: "required field is empty"}
			}
			values[spec.Name] = ""
			continue
		}

		if spec.Normalizer != nil {
			raw = spec.Normalizer(raw)
		}
		if err := ValidateCell(raw, spec); err != nil {
			return nil, &ValidationError{Field: spec.Name, Value: raw, Message: err.Error()}
		}
		values[spec.Name] = raw
	}

	return values, nil
}

// ValidateCell validates a non-empty value against its field type.
func ValidateCell(value string, spec FieldSpec) error {
	if value == "" {
		return nil
	}

	switch spec.Type {
	case FieldNumeric:
		if !ToPgNumeric(value).Valid {
			return fmt.Errorf("invalid number format")
		}
	case FieldDate:
		if !ToPgDate(value).Valid {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD or similar)")
		}
	case FieldBool:
		if !ToPgBool(value).Valid {
			return fmt.Errorf("must be yes/no, true/false, or 1/0")
		}
	case FieldEmail:
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
			return fmt.Errorf("invalid email address")
		}
	case FieldEnum:
		if len(spec.EnumValues) > 0 {
			for _, ev := range spec.EnumValues {
				if strings.EqualFold(ev, value) {
					return nil
				}
			}
			return fmt.Errorf("invalid enum value, must be one of: %s", strings.Join(spec.EnumValues, ", "))
		}
	}
	return nil
}
