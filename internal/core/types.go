package core

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FieldType represents the expected data type of a field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
	FieldEmail
)

func (t FieldType) String() string {
	switch t {
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	case FieldEmail:
		return "email"
	default:
		return "text"
	}
}

func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// FieldSpec declares one field of an importer schema.
type FieldSpec struct {
	Name       string              // Field name; also the default header text
	Column     string              // Database column (derived from Name if empty)
	Aliases    []string            // Other header spellings that map to this field
	Type       FieldType           // Expected data type
	Required   bool                // Field must be mapped to a column
	AllowEmpty bool                // If true, empty values are allowed even when Required
	EnumValues []string            // Valid values for FieldEnum type
	Normalizer func(string) string // Optional transformation applied before validation
}

// DBColumn returns the database column for the field.
func (f FieldSpec) DBColumn() string {
	if f.Column != "" {
		return f.Column
	}
	return toDBColumnName(f.Name)
}

// Schema is the ordered list of fields an importer recognises.
type Schema []FieldSpec

// Field looks up a field by exact name.
func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Required returns the names of required fields in schema order.
func (s Schema) Required() []string {
	var names []string
	for _, f := range s {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// toDBColumnName converts a field name like "Unit Price" to "unit_price".
func toDBColumnName(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		default:
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// MappedRecord holds one row's cells keyed by field name.
type MappedRecord map[string]source.Cell

// Text returns the field's cell rendered as text, or "" when unmapped.
func (r MappedRecord) Text(field string) string {
	return r[field].String()
}

// Record is what the per-record callback receives.
type Record struct {
	Fields MappedRecord
	Row    int    // Row number as reported in failures
	Line   int    // Physical row in the source file
	Extras Extras // Caller options for this run
}

// ErrorKind classifies a failed row.
type ErrorKind string

const (
	KindValidationFailed     ErrorKind = "validation_failed"
	KindCorruptRow           ErrorKind = "corrupt_row"
	KindDuplicateValue       ErrorKind = "duplicate_value"
	KindRequiredFieldMissing ErrorKind = "required_field_missing"
	KindInvalidReference     ErrorKind = "invalid_reference"
	KindUnknown              ErrorKind = "unknown"
)

func (k ErrorKind) valid() bool {
	switch k {
	case KindValidationFailed, KindCorruptRow, KindDuplicateValue,
		KindRequiredFieldMissing, KindInvalidReference, KindUnknown:
		return true
	}
	return false
}

// OutcomeKind is the result class of one processed row.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSkippedDuplicate
	OutcomeFailed
)

// RowOutcome is what the per-record callback returns for a row.
type RowOutcome struct {
	Kind      OutcomeKind
	Field     string
	ErrorKind ErrorKind
	Message   string

	// Err is a persistence error still to be translated by the collector.
	Err error
}

func Success() RowOutcome { return RowOutcome{Kind: OutcomeSuccess} }

func SkippedDuplicate() RowOutcome { return RowOutcome{Kind: OutcomeSkippedDuplicate} }

// Failed reports a row rejected for a known reason.
func Failed(field string, kind ErrorKind, message string) RowOutcome {
	return RowOutcome{Kind: OutcomeFailed, Field: field, ErrorKind: kind, Message: message}
}

// PersistenceFailed reports a row the store rejected. The error is
// translated through the signature table when the row is recorded.
func PersistenceFailed(err error) RowOutcome {
	return RowOutcome{Kind: OutcomeFailed, Err: err}
}

// Failure describes one failed row in a summary.
type Failure struct {
	Row     int       `json:"row"`  // Reported row number
	Line    int       `json:"line"` // Physical row in the source
	Field   string    `json:"field,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Values  []string  `json:"values,omitempty"` // Raw cells in input column order
}

// Status is the overall state of a finished run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusTruncated Status = "truncated"
	StatusCancelled Status = "cancelled"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// ImportSummary is the final aggregate of a run.
// It is built once by the collector and must not be modified afterwards.
type ImportSummary struct {
	Processed  int `json:"processed"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	RolledBack int `json:"rolled_back"` // Successes discarded when a batch was aborted

	Truncated bool `json:"truncated"`
	Cancelled bool `json:"cancelled"`
	Aborted   bool `json:"aborted"`

	// Fatal is the error that stopped the run before or during processing.
	Fatal string `json:"fatal,omitempty"`

	Sheet     string    `json:"sheet,omitempty"`
	Streaming bool      `json:"streaming"`
	Header    []string  `json:"header,omitempty"`
	Failures  []Failure `json:"failures"`
}

// Status derives the run state from the summary flags.
func (s *ImportSummary) Status() Status {
	switch {
	case s == nil:
		return StatusRunning
	case s.Aborted:
		return StatusAborted
	case s.Fatal != "":
		return StatusFailed
	case s.Cancelled:
		return StatusCancelled
	case s.Truncated:
		return StatusTruncated
	default:
		return StatusCompleted
	}
}

// RowProgress is reported by the driver after each row.
type RowProgress struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	BytesRead int64 // -1 when the reader cannot tell
}
