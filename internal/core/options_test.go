package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetimport/internal/source"
)

func TestImportOptions_WithDefaults(t *testing.T) {
	orig := ImportOptions{Mapping: Mapping{"name": 0}}
	got := orig.WithDefaults()

	assert.Equal(t, DefaultChunkSize, got.ChunkSize)
	assert.Equal(t, int64(DefaultStreamingThreshold), got.StreamingThreshold)
	assert.Equal(t, source.DefaultIOTimeout, got.IOTimeout)
	assert.Equal(t, StreamingAuto, got.Streaming)
	assert.False(t, got.NoHeader)

	got.Mapping["name"] = 5
	assert.Equal(t, 0, orig.Mapping["name"], "mapping must be copied")
}

func TestImportOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    ImportOptions
		wantErr []string
	}{
		{
			name: "defaults are valid",
			opts: ImportOptions{}.WithDefaults(),
		},
		{
			name:    "negative chunk size",
			opts:    ImportOptions{ChunkSize: -1},
			wantErr: []string{"chunk size"},
		},
		{
			name:    "every problem is reported",
			opts:    ImportOptions{ChunkSize: 1, MaxRows: -1, HeaderOffset: -2, ActiveSheet: -1},
			wantErr: []string{"max rows", "header offset", "active sheet"},
		},
		{
			name:    "no header needs mapping",
			opts:    ImportOptions{ChunkSize: 1, NoHeader: true},
			wantErr: []string{"column mapping is required"},
		},
		{
			name: "no header with mapping",
			opts: ImportOptions{ChunkSize: 1, NoHeader: true, Mapping: Mapping{"name": 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidOptions))
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestParseStreamingMode(t *testing.T) {
	for in, want := range map[string]StreamingMode{
		"":     StreamingUnset,
		"auto": StreamingAuto,
		"ON":   StreamingOn,
		"off":  StreamingOff,
	} {
		got, err := ParseStreamingMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStreamingMode("sometimes")
	assert.ErrorIs(t, err, ErrInvalidOptions)

	var m StreamingMode
	require.NoError(t, m.UnmarshalText([]byte("on")))
	text, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "on", string(text))
}

func TestUseStreaming(t *testing.T) {
	tests := []struct {
		name      string
		size      int64
		mode      StreamingMode
		threshold int64
		want      bool
	}{
		{"auto below threshold", 100, StreamingAuto, 1000, false},
		{"auto at threshold", 1000, StreamingAuto, 1000, false},
		{"zero threshold uses default", DefaultStreamingThreshold + 1, StreamingAuto, 0, true},
		{"auto above threshold", 5000, StreamingAuto, 1000, true},
		{"unset behaves as auto", 5000, StreamingUnset, 1000, true},
		{"forced on small file", 1, StreamingOn, 1000, true},
		{"forced off large file", 1 << 40, StreamingOff, 1000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UseStreaming(tt.size, tt.mode, tt.threshold))
		})
	}
}

func TestExtras(t *testing.T) {
	e := NewExtras(map[string]string{
		"Skip_Duplicates": "yes",
		"batch":           "25",
		"wait":            "1500ms",
		"region":          "eu",
		"bad_int":         "x",
	})

	assert.True(t, e.Has("skip_duplicates"))
	assert.True(t, e.Bool("SKIP_DUPLICATES", false))
	assert.Equal(t, 25, e.Int("batch", 0))
	assert.Equal(t, 7, e.Int("bad_int", 7))
	assert.Equal(t, 1500*time.Millisecond, e.Duration("wait", 0))
	assert.Equal(t, "eu", e.String("region", ""))
	assert.Equal(t, "def", e.String("missing", "def"))
	assert.Equal(t, []string{"bad_int", "batch", "region", "skip_duplicates", "wait"}, e.Keys())

	var empty Extras
	assert.False(t, empty.Has("anything"))
	assert.True(t, empty.Bool("anything", true))
}

func TestExtras_JSON(t *testing.T) {
	var e Extras
	require.NoError(t, json.Unmarshal([]byte(`{"Tenant":"acme"}`), &e))
	assert.Equal(t, "acme", e.String("tenant", ""))

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenant":"acme"}`, string(out))
}
