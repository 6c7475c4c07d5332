package core

import (
	"fmt"
	"sort"
	"sync"
)

// Importer describes one import target: the schema its files are mapped to
// and the table accepted rows are written into.
type Importer struct {
	Key       string   `json:"key"`   // Unique identifier: "contacts"
	Label     string   `json:"label"` // Display name: "Contacts"
	Table     string   `json:"table"` // Target table
	Schema    Schema   `json:"-"`
	UniqueKey []string `json:"unique_key,omitempty"` // Fields forming the natural key

	// SkipDuplicates is the default for the skip_duplicates extra.
	SkipDuplicates bool `json:"skip_duplicates"`
}

// FieldInfo is the public description of a schema field.
type FieldInfo struct {
	Name     string    `json:"name"`
	Aliases  []string  `json:"aliases,omitempty"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Enum     []string  `json:"enum,omitempty"`
}

// Fields describes the importer's schema.
func (imp Importer) Fields() []FieldInfo {
	out := make([]FieldInfo, len(imp.Schema))
	for i, f := range imp.Schema {
		out[i] = FieldInfo{Name: f.Name, Aliases: f.Aliases, Type: f.Type, Required: f.Required, Enum: f.EnumValues}
	}
	return out
}

var (
	registry   = make(map[string]Importer)
	registryMu sync.RWMutex
)

// Register adds an importer to the registry.
// Panics on an empty or duplicate key, or a schema with duplicate fields.
func Register(imp Importer) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if imp.Key == "" {
		panic("importer key is empty")
	}
	if _, exists := registry[imp.Key]; exists {
		panic(fmt.Sprintf("importer already registered: %s", imp.Key))
	}
	if imp.Table == "" {
		imp.Table = imp.Key
	}
	seen := make(map[string]bool, len(imp.Schema))
	for _, f := range imp.Schema {
		if seen[f.Name] {
			panic(fmt.Sprintf("importer %s: duplicate field %q", imp.Key, f.Name))
		}
		seen[f.Name] = true
	}

	registry[imp.Key] = imp
}

// Get returns an importer by key.
func Get(key string) (Importer, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	imp, ok := registry[key]
	return imp, ok
}

// All returns all registered importers sorted by key.
func All() []Importer {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Importer, 0, len(registry))
	for _, imp := range registry {
		result = append(result, imp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// Clear removes all registered importers. Used by tests.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Importer)
}
