package core

// mapper.go resolves which source column feeds which schema field.
//
// A HeaderMap is built once per run, either by matching header text against
// field names and aliases or from an explicit field -> column mapping, and is
// read-only afterwards. Required fields that end up unmapped fail the run
// before any data row is read.

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

// ColumnMapping pairs a source column with the field it feeds.
type ColumnMapping struct {
	Column int    `json:"column"`
	Field  string `json:"field"`
}

// HeaderMap is an ordered, immutable set of column mappings.
// Columns and fields are each unique.
type HeaderMap struct {
	pairs []ColumnMapping
}

// Pairs returns the mappings ordered by column.
func (m HeaderMap) Pairs() []ColumnMapping {
	return slices.Clone(m.pairs)
}

// Column returns the source column mapped to field.
func (m HeaderMap) Column(field string) (int, bool) {
	for _, p := range m.pairs {
		if p.Field == field {
			return p.Column, true
		}
	}
	return 0, false
}

func (m HeaderMap) Len() int { return len(m.pairs) }

// normalizeHeader trims, strips spreadsheet artifacts, collapses internal
// whitespace and lowercases header text for matching.
func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(CleanCell(s)), " "))
}

// BuildHeaderMap matches header cells to schema fields. Matching is
// case-insensitive on normalized text and considers aliases. When several
// columns match the same field the leftmost one wins.
func BuildHeaderMap(header source.RawRow, schema Schema) (HeaderMap, error) {
	lookup := make(map[string]string, len(schema))
	for _, f := range schema {
		for _, name := range append([]string{f.Name}, f.Aliases...) {
			key := normalizeHeader(name)
			if _, taken := lookup[key]; !taken {
				lookup[key] = f.Name
			}
		}
	}

	var pairs []ColumnMapping
	mapped := make(map[string]bool, len(schema))
	for col, cell := range header.Cells {
		field, ok := lookup[normalizeHeader(cell.String())]
		if !ok || mapped[field] {
			continue
		}
		mapped[field] = true
		pairs = append(pairs, ColumnMapping{Column: col, Field: field})
	}

	if err := checkRequired(schema, mapped); err != nil {
		return HeaderMap{}, err
	}
	return HeaderMap{pairs: pairs}, nil
}

// BuildExplicitMap validates a caller-supplied mapping and uses it verbatim.
func BuildExplicitMap(mapping Mapping, schema Schema) (HeaderMap, error) {
	pairs := make([]ColumnMapping, 0, len(mapping))
	mapped := make(map[string]bool, len(mapping))
	columns := make(map[int]string, len(mapping))

	for field, col := range mapping {
		if _, ok := schema.Field(field); !ok {
			return HeaderMap{}, fmt.Errorf("%w: unknown field %q", ErrInvalidMapping, field)
		}
		if col < 0 {
			return HeaderMap{}, fmt.Errorf("%w: field %q has negative column %d", ErrInvalidMapping, field, col)
		}
		if other, dup := columns[col]; dup {
			a, b := min(field, other), max(field, other)
			return HeaderMap{}, fmt.Errorf("%w: column %d mapped to both %q and %q", ErrInvalidMapping, col, a, b)
		}
		columns[col] = field
		mapped[field] = true
		pairs = append(pairs, ColumnMapping{Column: col, Field: field})
	}

	if err := checkRequired(schema, mapped); err != nil {
		return HeaderMap{}, err
	}
	slices.SortFunc(pairs, func(a, b ColumnMapping) int { return cmp.Compare(a.Column, b.Column) })
	return HeaderMap{pairs: pairs}, nil
}

func checkRequired(schema Schema, mapped map[string]bool) error {
	var missing []string
	for _, name := range schema.Required() {
		if !mapped[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingRequiredFieldError{Fields: missing}
	}
	return nil
}

// ApplyMap builds a record from row. Columns outside the map are dropped;
// mapped columns beyond the end of the row yield empty cells.
func ApplyMap(row source.RawRow, m HeaderMap) MappedRecord {
	rec := make(MappedRecord, len(m.pairs))
	for _, p := range m.pairs {
		var cell source.Cell
		if p.Column < len(row.Cells) {
			cell = row.Cells[p.Column]
		}
		rec[p.Field] = cell
	}
	return rec
}
