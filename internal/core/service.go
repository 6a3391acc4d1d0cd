package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

var (
	ErrNoFile            = errors.New("no file provided")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// DefaultMaxFileSize caps uploads at 100MB.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// Format is an uploaded file's container.
type Format int

const (
	FormatXLSX Format = iota
	FormatCSV
)

// DetectFormat picks the decoder from a file name.
func DetectFormat(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileName)
}

// BatchSink persists validated rows of templates that name a table.
type BatchSink interface {
	CopyRows(ctx context.Context, def TemplateDefinition, runID uuid.UUID, rows []Row[TemplateRecord]) (int64, error)
}

// ServiceConfig wires a Service. Zero values fall back to defaults.
type ServiceConfig struct {
	BatchSize   int
	HeadRows    int
	MaxFileSize int64

	// RowSpan applies to templates that set none. ColumnSpan bounds
	// row-anchored dropdowns.
	RowSpan    int
	ColumnSpan int
	// SkipFieldChecks limits reads to header, conversion and uniqueness
	// checks.
	SkipFieldChecks bool

	Writer   WriterConfig
	Observer Observer
	Limiter  *UploadLimiter
	Sink     BatchSink
	Logger   *slog.Logger
}

// Service builds template workbooks and checks uploaded copies of them.
type Service struct {
	reg *Registry
	cfg ServiceConfig
	w   *Writer
	log *slog.Logger
}

// NewService creates a service over reg.
func NewService(reg *Registry, cfg ServiceConfig) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.HeadRows <= 0 {
		cfg.HeadRows = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Writer.Logger == nil {
		cfg.Writer.Logger = logger
	}
	if cfg.Writer.Render.Observer == nil {
		cfg.Writer.Render.Observer = cfg.Observer
	}
	return &Service{reg: reg, cfg: cfg, w: NewWriter(cfg.Writer), log: logger}
}

// Registry returns the template registry.
func (s *Service) Registry() *Registry { return s.reg }

// Limiter returns the configured limiter, if any.
func (s *Service) Limiter() *UploadLimiter { return s.cfg.Limiter }

// ListTemplates returns information about all registered templates.
func (s *Service) ListTemplates() []TemplateInfo {
	defs := s.reg.All()
	infos := make([]TemplateInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// ListTemplatesByGroup returns templates organized by group.
func (s *Service) ListTemplatesByGroup() map[string][]TemplateInfo {
	result := make(map[string][]TemplateInfo)
	for _, group := range s.reg.Groups() {
		for _, def := range s.reg.ByGroup(group) {
			result[group] = append(result[group], def.Info)
		}
	}
	return result
}

// BuildTemplate writes the blank workbook for key to out.
func (s *Service) BuildTemplate(ctx context.Context, key string, out io.Writer) (WriteReport, error) {
	def, err := s.reg.Lookup(key)
	if err != nil {
		return WriteReport{}, err
	}
	if def.RowSpan <= 0 {
		def.RowSpan = s.cfg.RowSpan
	}
	var opts []RuleOption
	if s.cfg.ColumnSpan > 0 {
		opts = append(opts, WithColumnSpan(s.cfg.ColumnSpan))
	}
	sheet, err := def.Sheet(opts...)
	if err != nil {
		return WriteReport{}, fmt.Errorf("template %s: %w", key, err)
	}
	reports, err := s.w.Write(out, sheet)
	if err != nil {
		return WriteReport{}, fmt.Errorf("template %s: %w", key, err)
	}
	logFromContext(ctx, s.log).Info("template built",
		"template", key,
		"rules", reports[0].Render.Rendered,
		"constraints", reports[0].Render.Constraints,
	)
	return reports[0], nil
}

// Validate reads an uploaded file and checks it against template key.
// Header and cell problems are reported, not returned as errors.
func (s *Service) Validate(ctx context.Context, key, fileName string, r io.Reader) (*ValidationReport, error) {
	var report *ValidationReport
	err := s.limited(ctx, func(ctx context.Context) error {
		var err error
		report, err = s.validate(ctx, key, fileName, r)
		return err
	})
	return report, err
}

// Annotate validates an uploaded file and writes a copy with every error
// cell filled and commented. Workbooks keep their own formatting; CSV
// files are converted to a workbook.
func (s *Service) Annotate(ctx context.Context, key, fileName string, r io.Reader, out io.Writer) (*ValidationReport, error) {
	var report *ValidationReport
	err := s.limited(ctx, func(ctx context.Context) error {
		data, err := io.ReadAll(s.sizeLimit(r))
		if err != nil {
			return err
		}
		if report, err = s.validate(ctx, key, fileName, bytes.NewReader(data)); err != nil {
			return err
		}
		return s.annotate(ctx, report, data, out)
	})
	return report, err
}

func (s *Service) limited(ctx context.Context, fn func(context.Context) error) error {
	if s.cfg.Limiter == nil {
		return fn(ctx)
	}
	return s.cfg.Limiter.Do(ctx, fn)
}

func (s *Service) validate(ctx context.Context, key, fileName string, r io.Reader) (*ValidationReport, error) {
	if r == nil {
		return nil, ErrNoFile
	}
	def, err := s.reg.Lookup(key)
	if err != nil {
		return nil, err
	}
	format, err := DetectFormat(fileName)
	if err != nil {
		return nil, err
	}
	var validator FieldValidator
	if !s.cfg.SkipFieldChecks {
		if validator, err = def.Validator(); err != nil {
			return nil, fmt.Errorf("template %s: %w", key, err)
		}
	}

	runID := uuid.New()
	log := logFromContext(ctx, s.log).With("run_id", runID.String(), "template", key, "file", fileName)
	report := &ValidationReport{RunID: runID.String(), Template: key, FileName: fileName}
	start := time.Now()

	var p *Pipeline[TemplateRecord]
	hooks := Hooks[TemplateRecord]{
		HeadCheck: def.HeadCheck(),
		Verify:    def.UniqueCheck(),
		Complete: func(context.Context) error {
			log.Debug("all batches handled", "rows", p.RowsRead())
			return nil
		},
	}
	if s.cfg.Sink != nil && def.Table != "" {
		hooks.Handle = func(ctx context.Context, batch []Row[TemplateRecord]) error {
			clean := make([]Row[TemplateRecord], 0, len(batch))
			for _, row := range batch {
				if !p.HasDataErrorOnRow(row.Index) {
					clean = append(clean, row)
				}
			}
			if len(clean) == 0 {
				return nil
			}
			n, err := s.cfg.Sink.CopyRows(ctx, def, runID, clean)
			report.Stored += n
			return err
		}
	}
	p = NewPipeline(hooks, PipelineConfig{
		BatchSize: s.cfg.BatchSize,
		Validator: validator,
		Observer:  s.cfg.Observer,
		Logger:    log,
	})

	counter := NewCountingReader(s.sizeLimit(r))
	// Uploads are read from their first sheet so a renamed tab still decodes.
	var dec Decoder[TemplateRecord]
	switch format {
	case FormatCSV:
		dec = CSVDecoder[TemplateRecord]{Reader: counter, HeadRows: s.cfg.HeadRows, Mapper: def.Mapper()}
	default:
		dec = XLSXDecoder[TemplateRecord]{Reader: counter, HeadRows: s.cfg.HeadRows, Mapper: def.Mapper()}
	}
	if err := p.Run(ctx, dec); err != nil {
		return nil, err
	}

	report.Rows = p.RowsRead()
	report.HeadError = p.HeadErrorMessage()
	report.Errors = p.AllErrors()
	report.Bytes = counter.BytesRead
	report.Duration = time.Since(start)
	rows := make(map[int]bool)
	for _, e := range report.Errors {
		rows[e.Row] = true
	}
	report.ErrorRows = len(rows)

	log.Info("upload validated",
		"rows", report.Rows,
		"error_rows", report.ErrorRows,
		"head_error", report.HeadError != "",
		"stored", report.Stored,
		"duration", report.Duration,
	)
	return report, nil
}

func (s *Service) annotate(ctx context.Context, report *ValidationReport, data []byte, out io.Writer) error {
	format, err := DetectFormat(report.FileName)
	if err != nil {
		return err
	}
	def, err := s.reg.Lookup(report.Template)
	if err != nil {
		return err
	}

	if format == FormatCSV {
		return s.annotateCSV(ctx, def, report, data, out)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	errs := report.Errors
	if report.HeadError != "" {
		errs = append(errs, CellError{Row: 0, Column: 0, Messages: []string{report.HeadError}})
	}
	n, err := NewAnnotator(f, s.cfg.Writer.Annotate).AnnotateAll(sheet, errs)
	if err != nil {
		return fmt.Errorf("annotate: %w", err)
	}
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	logFromContext(ctx, s.log).Debug("workbook annotated", "run_id", report.RunID, "cells", n)
	return nil
}

// annotateCSV converts the CSV to a workbook with the template's dropdowns
// and the errors marked.
func (s *Service) annotateCSV(ctx context.Context, def TemplateDefinition, report *ValidationReport, data []byte, out io.Writer) error {
	var head [][]string
	var rows [][]any
	p := NewPipeline(Hooks[map[int]string]{
		HeadCheck: func(_ context.Context, h Head) string {
			head = h.Rows
			return ""
		},
		Handle: func(_ context.Context, batch []Row[map[int]string]) error {
			for _, r := range batch {
				for len(rows) < r.Index-len(head) {
					rows = append(rows, nil)
				}
				rows = append(rows, rowValues(r.Record))
			}
			return nil
		},
	}, PipelineConfig{BatchSize: s.cfg.BatchSize, Logger: s.log})
	dec := CSVDecoder[map[int]string]{Reader: bytes.NewReader(data), HeadRows: s.cfg.HeadRows, Mapper: positionMapper{}}
	if err := p.Run(ctx, dec); err != nil {
		return err
	}

	sheet, err := def.Sheet()
	if err != nil {
		return err
	}
	sheet.Headers = head
	sheet.Bindings = def.Mapper().Bindings(head)
	sheet.Rows = rows
	sheet.Errors = report.Errors
	if report.HeadError != "" {
		sheet.Errors = append(sheet.Errors, CellError{Row: 0, Column: 0, Messages: []string{report.HeadError}})
	}
	_, err = s.w.Write(out, sheet)
	return err
}

// positionMapper keeps raw cells by column for re-emitting a CSV as a sheet.
type positionMapper struct{}

func (positionMapper) Bindings([][]string) []FieldBinding { return nil }

func (positionMapper) Map(_ int, cells []string, _ *HeadIndex) (map[int]string, error) {
	rec := make(map[int]string, len(cells))
	for i, c := range cells {
		rec[i] = c
	}
	return rec, nil
}

func rowValues(rec map[int]string) []any {
	width := 0
	for col := range rec {
		width = max(width, col+1)
	}
	out := make([]any, width)
	for col, v := range rec {
		out[col] = v
	}
	return out
}

// sizeLimit fails reads past MaxFileSize with ErrFileTooLarge.
func (s *Service) sizeLimit(r io.Reader) io.Reader {
	return &limitReader{r: r, left: s.cfg.MaxFileSize}
}

type limitReader struct {
	r    io.Reader
	left int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.left < 0 {
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > l.left+1 {
		p = p[:l.left+1]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	if l.left < 0 {
		return n, ErrFileTooLarge
	}
	return n, err
}
