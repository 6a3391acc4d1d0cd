package core

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
)

// ErrorRow is one line of an error report workbook.
type ErrorRow struct {
	Cell    string `excel:"Cell,width=8"`
	Row     int    `excel:"Row,width=8"`
	Message string `excel:"Message,width=60"`
	Status  string `excel:"Status,width=12" options:"Open|Fixed|Ignored"`
}

// ErrorStatuses are the triage states offered in the Status column.
var ErrorStatuses = []string{"Open", "Fixed", "Ignored"}

// RecordSheet lays out records of struct type T as a sheet. Headers, widths
// and pinned columns come from T's excel tags. Dropdowns declared by options
// tags are merged after rules; a tag rule for a column rules already covers
// is dropped.
func RecordSheet[T any](name string, records []T, rules []*Rule, opts ...RuleOption) (Sheet, error) {
	schema, err := SchemaOf[T]()
	if err != nil {
		return Sheet{}, err
	}
	declared, err := schema.Rules(opts...)
	if err != nil {
		return Sheet{}, err
	}

	layout := schema.Layout()
	widths := make(map[int]float64)
	for i, c := range schema.Columns {
		if c.Width > 0 {
			widths[layout[i].Column] = c.Width
		}
	}
	rows := make([][]any, len(records))
	for i := range records {
		rows[i] = schema.Values(&records[i])
	}
	return Sheet{
		Name:     name,
		Headers:  [][]string{schema.Headers()},
		Bindings: layout,
		Rows:     rows,
		Rules:    MergeRules(rules, declared),
		Widths:   widths,
	}, nil
}

// ErrorRows flattens a report into one row per message, the header error
// first.
func ErrorRows(report *ValidationReport) []ErrorRow {
	var out []ErrorRow
	if report.HeadError != "" {
		out = append(out, ErrorRow{Cell: "A1", Row: 1, Message: report.HeadError, Status: ErrorStatuses[0]})
	}
	for _, e := range report.Errors {
		for _, msg := range e.Messages {
			out = append(out, ErrorRow{Cell: e.Cell(), Row: e.Row + 1, Message: msg, Status: ErrorStatuses[0]})
		}
	}
	return out
}

// ErrorReport writes a workbook listing every problem in report, with a
// Status dropdown for tracking fixes.
func (s *Service) ErrorReport(ctx context.Context, report *ValidationReport, out io.Writer) (WriteReport, error) {
	rows := ErrorRows(report)
	span := WithRowSpan(max(len(rows), 1))
	status, err := ColumnRule(ByField("Status"), ErrorStatuses, span,
		WithErrorBox("Status", "Pick Open, Fixed or Ignored"))
	if err != nil {
		return WriteReport{}, err
	}
	sheet, err := RecordSheet("Errors", rows, []*Rule{status}, span)
	if err != nil {
		return WriteReport{}, fmt.Errorf("error report: %w", err)
	}
	reports, err := s.w.Write(out, sheet)
	if err != nil {
		return WriteReport{}, fmt.Errorf("error report: %w", err)
	}
	logFromContext(ctx, s.log).Debug("error report written", "run_id", report.RunID, "rows", len(rows))
	return reports[0], nil
}

// TriageReport is an error report workbook read back after review.
type TriageReport struct {
	Rows      []ErrorRow     `json:"rows"`
	Counts    map[string]int `json:"counts"`
	HeadError string         `json:"head_error,omitempty"`
	Errors    []CellError    `json:"errors,omitempty"`
}

// Open is the number of rows nobody has dealt with yet.
func (t *TriageReport) Open() int { return t.Counts[ErrorStatuses[0]] }

// ReadErrorReport reads a workbook written by ErrorReport and counts rows
// per Status. Rows with an unknown status are reported as cell errors and
// left out of the counts.
func (s *Service) ReadErrorReport(ctx context.Context, r io.Reader) (*TriageReport, error) {
	if r == nil {
		return nil, ErrNoFile
	}
	mapper, err := NewStructMapper[ErrorRow]()
	if err != nil {
		return nil, err
	}

	out := &TriageReport{Counts: make(map[string]int)}
	var p *Pipeline[ErrorRow]
	hooks := Hooks[ErrorRow]{
		HeadCheck: func(_ context.Context, head Head) string {
			for _, b := range head.Bindings {
				if b.Field == "Status" {
					return ""
				}
			}
			return "missing required columns: Status"
		},
		Verify: func(_ context.Context, batch []Row[ErrorRow], errs ErrorSink) {
			for _, row := range batch {
				if !slices.Contains(ErrorStatuses, row.Record.Status) {
					errs.AddError(row.Index, ByField("Status"), "status must be one of "+strings.Join(ErrorStatuses, ", "))
				}
			}
		},
		Handle: func(_ context.Context, batch []Row[ErrorRow]) error {
			for _, row := range batch {
				if p.HasDataErrorOnRow(row.Index) {
					continue
				}
				out.Rows = append(out.Rows, row.Record)
				out.Counts[row.Record.Status]++
			}
			return nil
		},
	}
	p = NewPipeline(hooks, PipelineConfig{
		BatchSize: s.cfg.BatchSize,
		Observer:  s.cfg.Observer,
		Logger:    logFromContext(ctx, s.log),
	})
	dec := XLSXDecoder[ErrorRow]{Reader: s.sizeLimit(r), Sheet: "Errors", Mapper: mapper}
	if err := p.Run(ctx, dec); err != nil {
		return nil, fmt.Errorf("error report: %w", err)
	}

	out.HeadError = p.HeadErrorMessage()
	out.Errors = p.AllErrors()
	return out, nil
}
