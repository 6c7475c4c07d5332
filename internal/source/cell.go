// Package source reads tabular files (CSV, TSV, XLSX, XLS) as a uniform,
// forward-only sequence of rows.
//
// A file is opened once with [Open] (or [Spool] for byte streams) and read
// with [ReadRows] in either full-load or streaming mode. Both modes yield the
// same rows with the same 1-based row numbers; they differ only in how much of
// the file is held in memory at once.
package source

import (
	"strconv"
	"strings"
)

// CellKind identifies the scalar type held by a Cell.
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellString
	CellNumber
	CellBool
)

func (k CellKind) String() string {
	switch k {
	case CellString:
		return "string"
	case CellNumber:
		return "number"
	case CellBool:
		return "bool"
	default:
		return "empty"
	}
}

// Cell is a loosely typed scalar read from a file.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Bool   bool
}

// StringCell returns a string cell, or an empty cell when s is blank.
func StringCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	return Cell{Kind: CellString, Text: s}
}

// NumberCell returns a numeric cell.
func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Number: f}
}

// BoolCell returns a boolean cell.
func BoolCell(b bool) Cell {
	return Cell{Kind: CellBool, Bool: b}
}

// IsEmpty reports whether the cell holds no value.
func (c Cell) IsEmpty() bool {
	return c.Kind == CellEmpty
}

// String renders the cell the way it would appear in a delimited file.
func (c Cell) String() string {
	switch c.Kind {
	case CellString:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellBool:
		if c.Bool {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// RawRow is one row as read from the file.
type RawRow struct {
	// Number is the 1-based position of the row in the sheet or file.
	// Rows skipped by an offset still count toward it.
	Number int
	Cells  []Cell

	// Err is set when the row could not be decoded. It wraps ErrCorruptRow.
	Err error
}

// Strings returns the text of every cell.
func (r RawRow) Strings() []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.String()
	}
	return out
}

// IsBlank reports whether every cell in the row is empty.
func (r RawRow) IsBlank() bool {
	for _, c := range r.Cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

func stringCells(values []string) []Cell {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = StringCell(v)
	}
	return cells
}
