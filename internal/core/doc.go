// Package core builds spreadsheet templates with dropdown validation and
// reads filled-in copies of them back.
//
// It has no HTTP or database code of its own. The web server, the CLI and
// tests drive it through [Service].
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Head index: which column holds which field, resolved from explicit
//     bindings and header text ([HeadIndex], [Locator]).
//   - Rules: dropdown lists anchored to a column, a row or a field, plain
//     or cascading from a parent column ([Rule], [CascadeRule]).
//   - Renderer and Writer: write headers, rows and rules into excelize
//     workbooks, including hidden option sheets and defined names.
//   - Pipeline: a streaming reader that maps rows to records, batches them,
//     runs hooks and collects per-cell errors ([Pipeline], [Hooks]).
//   - Annotator: paints error cells and attaches the messages as comments.
//   - Templates: named layouts in a [Registry] that tie all of the above
//     together ([TemplateDefinition]).
//
// # Template Registry
//
// Built-in templates register at init time using [Register]:
//
//	core.Register(core.TemplateDefinition{
//	    Info: core.TemplateInfo{Key: "orders", Group: "Sales", Label: "Orders"},
//	    Fields: []core.FieldSpec{
//	        {Name: "Order ID", Required: true, Unique: true},
//	        {Name: "Country", Options: []string{"US", "CA"}},
//	        {Name: "Region", Parent: "Country", Cascade: core.NewCascadeMap().
//	            Add("US", "CA", "NY", "TX").
//	            Add("CA", "ON", "QC")},
//	    },
//	})
//
// Template files loaded at run time replace definitions per source file.
//
// # Reading Uploads
//
// Uploads stream through the pipeline with memory bounded by the batch
// size:
//
//  1. A decoder reads .xlsx or .csv rows, skipping a BOM and replacing
//     invalid UTF-8
//  2. Header rows feed the head index and the header check
//  3. Data rows are mapped, validated and collected into batches
//  4. Verify and Handle hooks see each batch; errors land in an ErrorSink
//  5. [Pipeline.AllErrors] returns the cell errors sorted by row and column
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError].
// Each category has a code for support reference:
//
//   - HEAD001-HEAD002: header and sheet problems
//   - RULE001-RULE006: malformed dropdown rules
//   - VAL001-VAL003: cell values
//   - FILE001-FILE005: size, encoding and format
//   - UPL001-UPL003: busy, cancelled, timed out
//   - TPL001-TPL002: unknown templates and bad template files
//   - DB001-DB002: row sink failures
package core
