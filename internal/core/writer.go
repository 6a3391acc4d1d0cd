package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/xuri/excelize/v2"
)

// Sheet is everything the Writer puts on one worksheet.
type Sheet struct {
	Name string

	// Headers are the header rows, top to bottom. Overrides rewrite them
	// before they are written; Bindings let rules and errors target fields.
	Headers   [][]string
	Bindings  []FieldBinding
	Overrides []HeaderOverride

	// Rows are data rows written directly below the headers.
	Rows [][]any

	Rules     []*Rule
	Dropdowns []ExplicitDropdown

	// Errors use resolved coordinates; Located are resolved against the
	// final headers.
	Errors  []CellError
	Located []LocatedError

	// Widths maps zero-based columns to widths.
	Widths map[int]float64
}

// WriterConfig configures a Writer. Render.HeadRows is ignored; every sheet
// uses its own header count.
type WriterConfig struct {
	Render   RendererConfig
	Annotate AnnotatorConfig
	Logger   *slog.Logger
}

// WriteReport summarizes one written sheet.
type WriteReport struct {
	Sheet     string
	Render    RenderReport
	Explicit  int
	Annotated int
	Dropped   int
}

// Writer produces workbooks from Sheet descriptions.
type Writer struct {
	cfg WriterConfig
	log *slog.Logger
}

// NewWriter returns a writer.
func NewWriter(cfg WriterConfig) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Render.Logger == nil {
		cfg.Render.Logger = logger
	}
	return &Writer{cfg: cfg, log: logger}
}

// Build creates a new workbook holding sheets in order. The caller owns
// the returned file and must Close it.
func (w *Writer) Build(sheets ...Sheet) (*excelize.File, []WriteReport, error) {
	if len(sheets) == 0 {
		return nil, nil, errors.New("writer: no sheets")
	}
	f := excelize.NewFile()
	reports := make([]WriteReport, 0, len(sheets))
	for i, s := range sheets {
		if s.Name == "" {
			s.Name = fmt.Sprintf("Sheet%d", i+1)
		}
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				f.Close()
				return nil, nil, fmt.Errorf("name sheet %q: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("add sheet %q: %w", s.Name, err)
		}

		rep, err := w.writeSheet(f, s)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("sheet %q: %w", s.Name, err)
		}
		reports = append(reports, rep)
	}
	f.SetActiveSheet(0)
	return f, reports, nil
}

// Write builds the workbook and streams it to out.
func (w *Writer) Write(out io.Writer, sheets ...Sheet) ([]WriteReport, error) {
	f, reports, err := w.Build(sheets...)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.WriteTo(out); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return reports, nil
}

func (w *Writer) writeSheet(f *excelize.File, s Sheet) (WriteReport, error) {
	rep := WriteReport{Sheet: s.Name}

	headers := make([][]string, len(s.Headers))
	for i, row := range s.Headers {
		headers[i] = slices.Clone(row)
	}
	ApplyOverrides(headers, s.Bindings, s.Overrides)

	if err := w.writeHeaders(f, s.Name, headers); err != nil {
		return rep, err
	}
	for i, row := range s.Rows {
		cells := row
		if err := f.SetSheetRow(s.Name, cellName(len(headers)+i, 0), &cells); err != nil {
			return rep, fmt.Errorf("row %d: %w", len(headers)+i+1, err)
		}
	}
	for col, width := range s.Widths {
		letter := ColumnLetter(col)
		if err := f.SetColWidth(s.Name, letter, letter, width); err != nil {
			return rep, fmt.Errorf("width of %s: %w", letter, err)
		}
	}

	idx := BuildHeadIndex(headers, s.Bindings)
	rcfg := w.cfg.Render
	rcfg.HeadRows = len(headers)
	r := NewRenderer(f, s.Name, idx, rcfg)

	var err error
	if rep.Render, err = r.Render(s.Rules); err != nil {
		return rep, err
	}
	if rep.Explicit, err = r.RenderExplicit(s.Dropdowns); err != nil {
		return rep, err
	}

	errs := slices.Clone(s.Errors)
	for _, le := range s.Located {
		e, ok := NewCellError(idx, le.Row, le.At, le.Messages...)
		if !ok {
			rep.Dropped++
			continue
		}
		errs = append(errs, e)
	}
	if len(errs) > 0 {
		sortCellErrors(errs)
		if rep.Annotated, err = NewAnnotator(f, w.cfg.Annotate).AnnotateAll(s.Name, errs); err != nil {
			return rep, err
		}
	}

	w.log.Debug("sheet written",
		"sheet", s.Name,
		"rows", len(s.Rows),
		"rules", rep.Render.Rendered,
		"annotated", rep.Annotated,
		"dropped", rep.Dropped,
	)
	return rep, nil
}

func (w *Writer) writeHeaders(f *excelize.File, sheet string, headers [][]string) error {
	if len(headers) == 0 {
		return nil
	}
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	widest := 0
	for i, row := range headers {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		if err := f.SetSheetRow(sheet, cellName(i, 0), &cells); err != nil {
			return fmt.Errorf("header row %d: %w", i+1, err)
		}
		widest = max(widest, len(row))
	}
	if widest == 0 {
		return nil
	}
	if err := f.SetCellStyle(sheet, "A1", cellName(len(headers)-1, widest-1), style); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for col := 0; col < widest; col++ {
		text := ""
		for _, row := range headers {
			if col < len(row) && textWidth(row[col]) > textWidth(text) {
				text = row[col]
			}
		}
		if text == "" {
			continue
		}
		letter := ColumnLetter(col)
		if err := f.SetColWidth(sheet, letter, letter, textWidth(text)); err != nil {
			return fmt.Errorf("width of %s: %w", letter, err)
		}
	}
	return nil
}
