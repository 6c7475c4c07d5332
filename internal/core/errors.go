package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

// Errors surfaced by the row source.
var (
	ErrUnreadableFile    = source.ErrUnreadableFile
	ErrInvalidSheetIndex = source.ErrInvalidSheetIndex
	ErrCorruptRow        = source.ErrCorruptRow
	ErrUnsupportedFormat = source.ErrUnsupportedFormat
)

var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrValidationFailed     = errors.New("validation failed")
	ErrFatalProcessing      = errors.New("fatal processing error")
	ErrInvalidOptions       = errors.New("invalid import options")
	ErrInvalidMapping       = errors.New("invalid column mapping")
	ErrRunInProgress        = errors.New("import run still in progress")
	ErrUnknownImporter      = errors.New("unknown importer")
	ErrRunNotFound          = errors.New("import run not found")
)

// MissingRequiredFieldError lists every required field that no column maps to.
type MissingRequiredFieldError struct {
	Fields []string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", strings.Join(e.Fields, ", "))
}

func (e *MissingRequiredFieldError) Is(target error) bool {
	return target == ErrMissingRequiredField
}

// FatalError aborts a run. Row is the reported number of the row being
// processed when it happened, or 0 outside row processing.
type FatalError struct {
	Row int
	Err error
}

func (e *FatalError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("fatal processing error at row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("fatal processing error: %v", e.Err)
}

func (e *FatalError) Unwrap() []error {
	return []error{ErrFatalProcessing, e.Err}
}

// RejectedError marks a persistence error that affects only the current row.
// Sinks wrap statement failures with Reject; any other error they return
// aborts the run.
type RejectedError struct {
	Err error
}

func (e *RejectedError) Error() string { return e.Err.Error() }

func (e *RejectedError) Unwrap() error { return e.Err }

// Reject wraps err as a row-level rejection. It returns nil for a nil err.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &RejectedError{Err: err}
}
