package cli

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// importFlags are the ImportOptions settable from the command line.
type importFlags struct {
	chunkSize    int
	maxRows      int
	headerOffset int
	noHeader     bool
	sheet        int
	streaming    string
	mapping      map[string]int
	extras       map[string]string
}

func (f *importFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.chunkSize, "chunk-size", 0, "Rows per batch (0 = default)")
	flags.IntVar(&f.maxRows, "max-rows", 0, "Stop after this many rows (0 = no limit)")
	flags.IntVar(&f.headerOffset, "header-offset", 0, "Rows to skip before the header")
	flags.BoolVar(&f.noHeader, "no-header", false, "The first row is data; requires --map")
	flags.IntVar(&f.sheet, "sheet", 0, "Zero-based sheet index for workbooks")
	flags.StringVar(&f.streaming, "streaming", "", "Streaming mode: auto, on, off (default IMPORT_STREAMING)")
	flags.StringToIntVar(&f.mapping, "map", nil, "Explicit field=column mapping (zero-based columns)")
	flags.StringToStringVar(&f.extras, "extra", nil, "Extra key=value options, e.g. skip_duplicates=true")
}

func (f *importFlags) options() (core.ImportOptions, error) {
	mode, err := core.ParseStreamingMode(f.streaming)
	if err != nil {
		return core.ImportOptions{}, err
	}
	opts := core.ImportOptions{
		ChunkSize:    f.chunkSize,
		MaxRows:      f.maxRows,
		HeaderOffset: f.headerOffset,
		NoHeader:     f.noHeader,
		ActiveSheet:  f.sheet,
		Streaming:    mode,
		Extras:       core.NewExtras(f.extras),
	}
	if len(f.mapping) > 0 {
		opts.Mapping = core.Mapping(f.mapping)
	}
	return opts, opts.Validate()
}
