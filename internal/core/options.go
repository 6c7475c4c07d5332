package core

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

const (
	// DefaultChunkSize is the number of rows handed to a batch boundary at once.
	DefaultChunkSize = 1000

	// DefaultStreamingThreshold is the file size above which auto mode streams.
	DefaultStreamingThreshold int64 = 10 << 20
)

// StreamingMode selects between full-load and streaming reads.
// The zero value, StreamingUnset, takes the service default and resolves to
// StreamingAuto in WithDefaults, so a run only ever sees auto, on or off.
type StreamingMode int

const (
	StreamingUnset StreamingMode = iota
	StreamingAuto
	StreamingOn
	StreamingOff
)

func (m StreamingMode) String() string {
	switch m {
	case StreamingOn:
		return "on"
	case StreamingOff:
		return "off"
	default:
		return "auto"
	}
}

// ParseStreamingMode accepts auto/on/off and the usual boolean spellings.
// An empty string is StreamingUnset.
func ParseStreamingMode(s string) (StreamingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return StreamingUnset, nil
	case "auto":
		return StreamingAuto, nil
	case "on", "true", "yes", "1":
		return StreamingOn, nil
	case "off", "false", "no", "0":
		return StreamingOff, nil
	default:
		return StreamingUnset, fmt.Errorf("%w: unknown streaming mode %q", ErrInvalidOptions, s)
	}
}

func (m StreamingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *StreamingMode) UnmarshalText(b []byte) error {
	parsed, err := ParseStreamingMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Mapping assigns schema fields to zero-based source columns.
type Mapping map[string]int

// ImportOptions configures one import run. Build it once, then treat it as
// read-only; WithDefaults returns a copy that shares nothing with the original.
type ImportOptions struct {
	ChunkSize    int // Rows per batch; 0 means DefaultChunkSize
	MaxRows      int // Stop after this many processed rows; 0 is unlimited
	HeaderOffset int // Rows skipped before the header (or first data row)

	// NoHeader declares that the first row after HeaderOffset is data.
	// An explicit Mapping is then required.
	NoHeader bool

	ActiveSheet        int // Zero-based; flat files only have sheet 0
	Streaming          StreamingMode
	StreamingThreshold int64         // Bytes; 0 means DefaultStreamingThreshold
	IOTimeout          time.Duration // Bounds opening the file; 0 means source.DefaultIOTimeout

	// Mapping, when set, replaces header matching.
	Mapping Mapping

	// Extras is passed through untouched to the per-record callback.
	Extras Extras
}

// WithDefaults returns a copy of o with zero values replaced by defaults.
func (o ImportOptions) WithDefaults() ImportOptions {
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Streaming == StreamingUnset {
		o.Streaming = StreamingAuto
	}
	if o.StreamingThreshold == 0 {
		o.StreamingThreshold = DefaultStreamingThreshold
	}
	if o.IOTimeout == 0 {
		o.IOTimeout = source.DefaultIOTimeout
	}
	if o.Mapping != nil {
		o.Mapping = maps.Clone(o.Mapping)
	}
	return o
}

// Validate reports every out-of-range option at once.
func (o ImportOptions) Validate() error {
	var errs []error
	if o.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize))
	}
	if o.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("max rows must not be negative, got %d", o.MaxRows))
	}
	if o.HeaderOffset < 0 {
		errs = append(errs, fmt.Errorf("header offset must not be negative, got %d", o.HeaderOffset))
	}
	if o.ActiveSheet < 0 {
		errs = append(errs, fmt.Errorf("active sheet must not be negative, got %d", o.ActiveSheet))
	}
	if o.StreamingThreshold < 0 {
		errs = append(errs, fmt.Errorf("streaming threshold must not be negative, got %d", o.StreamingThreshold))
	}
	if o.IOTimeout < 0 {
		errs = append(errs, fmt.Errorf("I/O timeout must not be negative, got %s", o.IOTimeout))
	}
	if o.Streaming < StreamingUnset || o.Streaming > StreamingOff {
		errs = append(errs, fmt.Errorf("unknown streaming mode %d", o.Streaming))
	}
	if o.NoHeader && len(o.Mapping) == 0 {
		errs = append(errs, errors.New("a column mapping is required when the file has no header row"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
	}
	return nil
}

// Extras is an immutable bag of caller-supplied key/value options.
// Lookups take an explicit default that is returned when the key is
// absent or cannot be parsed as the requested type.
type Extras struct {
	values map[string]string
}

// NewExtras copies values into a new bag. Keys are matched case-insensitively.
func NewExtras(values map[string]string) Extras {
	if len(values) == 0 {
		return Extras{}
	}
	m := make(map[string]string, len(values))
	for k, v := range values {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return Extras{values: m}
}

func (e Extras) lookup(key string) (string, bool) {
	v, ok := e.values[strings.ToLower(key)]
	return v, ok
}

// Has reports whether key was supplied.
func (e Extras) Has(key string) bool {
	_, ok := e.lookup(key)
	return ok
}

func (e Extras) String(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e Extras) Int(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Bool accepts the same spellings as boolean cells (yes/no, true/false, 1/0).
func (e Extras) Bool(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b := ToPgBool(v)
	if !b.Valid {
		return def
	}
	return b.Bool
}

func (e Extras) Duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}

// Keys returns the supplied keys in sorted order.
func (e Extras) Keys() []string {
	return slices.Sorted(maps.Keys(e.values))
}

// Map returns a copy of the bag's contents.
func (e Extras) Map() map[string]string {
	return maps.Clone(e.values)
}

func (e Extras) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.values)
}

func (e *Extras) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*e = NewExtras(m)
	return nil
}
