// Package core is the import engine: it reads a tabular file row by row,
// maps columns to importer fields, validates and persists each row through
// a caller-supplied function, and accounts for every outcome.
//
// # Architecture
//
//   - Importers: registered via [Register]; each names a schema of
//     [FieldSpec] values and the table it loads.
//   - Pipeline: [Import] resolves the sheet, chooses full-load or streaming
//     reads ([UseStreaming]), reads the header row, builds the column map and
//     hands rows to the driver.
//   - Driver: sequential row processing in chunks, with batch boundaries,
//     row limits, cancellation and panic capture.
//   - Collector: tallies outcomes and translates persistence errors through a
//     [SignatureTable] into stable error kinds.
//   - Service: background runs with bounded concurrency, progress
//     subscriptions, result lookup and failed-row reports.
//
// # Importer Registry
//
//	core.Register(core.Importer{
//	    Key:   "contacts",
//	    Label: "Contacts",
//	    Schema: core.Schema{
//	        {Name: "name", Required: true},
//	        {Name: "email", Required: true, Type: core.FieldEmail},
//	    },
//	    UniqueKey: []string{"email"},
//	})
//
// # Row Numbering
//
// [Failure.Line] is the 1-based physical row in the sheet. [Failure.Row]
// is the data row number reported to users: the physical row minus one
// when a header row was consumed.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError].
// Codes are grouped as FILE, IMP, VAL, DB and UPL.
package core
