package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
)

// extraPrefix marks form fields that are passed through as Extras.
const extraPrefix = "extra."

// parseImportOptions reads ImportOptions from a parsed multipart form.
// Absent fields stay zero so the service defaults apply.
func parseImportOptions(r *http.Request) (core.ImportOptions, error) {
	var opts core.ImportOptions
	form := r.MultipartForm.Value
	get := func(key string) string {
		if v := form[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	invalid := func(field string, err error) error {
		return fmt.Errorf("%w: %s: %v", core.ErrInvalidOptions, field, err)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"chunk_size", &opts.ChunkSize},
		{"max_rows", &opts.MaxRows},
		{"header_offset", &opts.HeaderOffset},
		{"active_sheet", &opts.ActiveSheet},
	}
	for _, f := range ints {
		if v := get(f.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, invalid(f.key, err)
			}
			*f.dst = n
		}
	}

	if v := get("no_header"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, invalid("no_header", err)
		}
		opts.NoHeader = b
	}
	if v := get("header_row"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, invalid("header_row", err)
		}
		opts.NoHeader = !b
	}

	if v := get("streaming"); v != "" {
		mode, err := core.ParseStreamingMode(v)
		if err != nil {
			return opts, err
		}
		opts.Streaming = mode
	}
	if v := get("streaming_threshold"); v != "" {
		n, err := config.ParseSize(v)
		if err != nil {
			return opts, invalid("streaming_threshold", err)
		}
		opts.StreamingThreshold = n
	}
	if v := get("io_timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return opts, invalid("io_timeout", err)
		}
		opts.IOTimeout = d
	}

	if v := get("mapping"); v != "" {
		var m core.Mapping
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return opts, fmt.Errorf("%w: %v", core.ErrInvalidMapping, err)
		}
		opts.Mapping = m
	}

	extras := make(map[string]string)
	for key, values := range form {
		if name, ok := strings.CutPrefix(key, extraPrefix); ok && name != "" && len(values) > 0 {
			extras[name] = values[0]
		}
	}
	if len(extras) > 0 {
		opts.Extras = core.NewExtras(extras)
	}

	return opts, opts.Validate()
}
