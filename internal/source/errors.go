package source

import "errors"

var (
	// ErrUnreadableFile is returned when a file cannot be opened or parsed at
	// all, including when an I/O deadline expires.
	ErrUnreadableFile = errors.New("unreadable file")

	// ErrInvalidSheetIndex is returned when the requested sheet does not exist.
	ErrInvalidSheetIndex = errors.New("invalid sheet index")

	// ErrCorruptRow marks a single row that could not be decoded.
	ErrCorruptRow = errors.New("corrupt row")

	// ErrUnsupportedFormat is returned by Open for files that are not tabular.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
