package core

// error_messages.go maps technical errors to messages with support codes.
//
// Codes by category:
//
//	FILE001-FILE099  file handling and parsing
//	IMP001-IMP099    import setup and run lookup
//	VAL001-VAL099    row and column validation
//	DB001-DB099      persistence
//	UPL001-UPL099    upload process and throttling
//	ERR000           fallback; check the logs for the technical error
//
// Patterns match case-insensitively with strings.Contains. The first match
// wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File errors
	{"unsupported file format", UserMessage{
		Message: "This file type is not supported",
		Action:  "Upload a CSV, TSV, XLSX or XLS file",
		Code:    "FILE001",
	}},
	{"unreadable file", UserMessage{
		Message: "The file could not be read",
		Action:  "Check that the file is not damaged or password protected",
		Code:    "FILE002",
	}},
	{"invalid sheet index", UserMessage{
		Message: "The selected sheet does not exist",
		Action:  "Choose one of the sheets listed for this workbook",
		Code:    "FILE003",
	}},
	{"corrupt row", UserMessage{
		Message: "This row could not be parsed",
		Action:  "Check the row for stray quotes or broken cells",
		Code:    "FILE004",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select a file to upload",
		Code:    "FILE005",
	}},
	{"file too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller parts",
		Code:    "FILE006",
	}},

	// Import setup errors
	{"unknown importer", UserMessage{
		Message: "Unknown import type",
		Action:  "Choose one of the configured importers",
		Code:    "IMP001",
	}},
	{"invalid import options", UserMessage{
		Message: "The import options are not valid",
		Action:  "Review the chunk size, offsets and sheet selection",
		Code:    "IMP002",
	}},
	{"invalid column mapping", UserMessage{
		Message: "The column mapping is not valid",
		Action:  "Map each field to a distinct, non-negative column",
		Code:    "IMP003",
	}},
	{"import run not found", UserMessage{
		Message: "Import run not found",
		Action:  "The run may have expired. Start a new import",
		Code:    "IMP004",
	}},
	{"import run still in progress", UserMessage{
		Message: "The import is still running",
		Action:  "Wait for the import to finish",
		Code:    "IMP005",
	}},
	{"fatal processing error", UserMessage{
		Message: "The import stopped because of an unexpected error",
		Action:  "Rows saved before the failure were rolled back. Please try again",
		Code:    "IMP006",
	}},

	// Validation errors
	{"invalid date", UserMessage{
		Message: "Invalid date format detected",
		Action:  "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024",
		Code:    "VAL001",
	}},
	{"invalid number", UserMessage{
		Message: "Invalid number format detected",
		Action:  "Remove currency symbols and use standard decimal format",
		Code:    "VAL002",
	}},
	{"missing required field", UserMessage{
		Message: "A required column is missing from the file",
		Action:  "Add the column to the header row or map it explicitly",
		Code:    "VAL004",
	}},
	{"required field", UserMessage{
		Message: "Required field is empty",
		Action:  "Ensure all required columns have values",
		Code:    "VAL003",
	}},
	{"must be yes/no", UserMessage{
		Message: "Invalid yes/no value",
		Action:  "Use yes/no, true/false, or 1/0",
		Code:    "VAL005",
	}},
	{"invalid enum", UserMessage{
		Message: "Value is not in the allowed list",
		Action:  "Check the allowed values for this field",
		Code:    "VAL006",
	}},
	{"invalid email", UserMessage{
		Message: "Invalid email address",
		Action:  "Use a full address such as name@example.com",
		Code:    "VAL007",
	}},

	// Persistence errors
	{"duplicate key", UserMessage{
		Message: "A record with this key already exists",
		Action:  "Download failed rows to review duplicates",
		Code:    "DB001",
	}},
	{"unique constraint", UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in your file",
		Code:    "DB002",
	}},
	{"foreign key", UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Ensure parent records are imported first",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},

	// Upload errors
	{"too many concurrent imports", UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}},
	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "UPL005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB006",
	}},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "UPL006",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message. Unknown
// errors map to ERR000.
//
//	msg := MapError(errors.New("duplicate key value"))
//	// msg.Code == "DB001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError keeps the technical error for logging and exposes the mapped
// message through Error.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
