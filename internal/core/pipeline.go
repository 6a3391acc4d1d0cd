package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// DefaultBatchSize is the number of rows buffered before the batch hooks run.
const DefaultBatchSize = 500

// ErrPipelineUsed is returned when Run is called on a pipeline that already ran.
var ErrPipelineUsed = errors.New("pipeline already ran")

// State is a step of the read state machine:
//
//	AwaitingHead -> Reading -> Draining -> Done
//	AwaitingHead -> HeadError
type State int

const (
	AwaitingHead State = iota
	Reading
	HeadError
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingHead:
		return "awaiting_head"
	case Reading:
		return "reading"
	case HeadError:
		return "head_error"
	case Draining:
		return "draining"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Head is what a decoder knows about the header of a sheet: the literal
// header rows and, for typed records, which field each column carries.
type Head struct {
	Rows     [][]string
	Bindings []FieldBinding
}

// Row is one decoded record with its zero-based sheet row index.
type Row[T any] struct {
	Index  int
	Record T
}

// ErrorSink lets batch hooks record additional cell errors.
type ErrorSink interface {
	AddError(row int, at Locator, messages ...string) bool
	AddCellErrors(errs ...CellError)
	HasDataErrorOnRow(row int) bool
}

// FieldValidator checks one record and returns messages keyed by field
// identifier. A nil or empty map means the record is valid.
type FieldValidator interface {
	ValidateRecord(record any) map[string][]string
}

// FieldValidatorFunc adapts a function to FieldValidator.
type FieldValidatorFunc func(record any) map[string][]string

func (fn FieldValidatorFunc) ValidateRecord(record any) map[string][]string {
	return fn(record)
}

// Hooks are the caller-supplied steps of a read. Every hook is optional.
type Hooks[T any] struct {
	// HeadCheck inspects the header and returns a non-blank message to
	// reject the whole sheet.
	HeadCheck func(ctx context.Context, head Head) string

	// Verify runs over each full batch before Handle, for cross-row checks.
	Verify func(ctx context.Context, batch []Row[T], errs ErrorSink)

	// Handle consumes each batch, e.g. to persist it. An error aborts the read.
	Handle func(ctx context.Context, batch []Row[T]) error

	// Complete runs once after the last batch, unless the header was rejected.
	Complete func(ctx context.Context) error
}

// PipelineConfig tunes a pipeline. The zero value is usable.
type PipelineConfig struct {
	BatchSize int
	Validator FieldValidator
	Observer  Observer
	Logger    *slog.Logger
}

// Pipeline runs one streaming read of one sheet. Decoders push the header,
// rows and conversion failures into it; it batches rows, runs the hooks
// and keeps every cell error for the whole read.
//
// A Pipeline is single-use and single-threaded.
type Pipeline[T any] struct {
	hooks Hooks[T]
	cfg   PipelineConfig
	obs   Observer
	log   *slog.Logger

	state    State
	headMsg  string
	idx      *HeadIndex
	batch    []Row[T]
	errs     map[int][]CellError
	rowsRead int
	started  time.Time
}

// NewPipeline returns a pipeline awaiting its header.
func NewPipeline[T any](hooks Hooks[T], cfg PipelineConfig) *Pipeline[T] {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline[T]{
		hooks: hooks,
		cfg:   cfg,
		obs:   observerOrNop(cfg.Observer),
		log:   logger,
		idx:   NewHeadIndex(),
		batch: make([]Row[T], 0, cfg.BatchSize),
		errs:  make(map[int][]CellError),
	}
}

// Run drives the pipeline with dec. It returns decoder failures other than
// per-cell conversion errors, and errors from Handle or Complete.
func (p *Pipeline[T]) Run(ctx context.Context, dec Decoder[T]) error {
	if p.state != AwaitingHead || !p.started.IsZero() {
		return ErrPipelineUsed
	}
	p.started = time.Now()
	defer func() { p.obs.ReadFinished(time.Since(p.started)) }()

	if err := dec.Decode(ctx, p); err != nil {
		return err
	}
	p.log.Debug("read finished",
		"state", p.state.String(),
		"rows", p.rowsRead,
		"error_rows", len(p.errs),
	)
	return nil
}

// OnHead processes the header rows. It is called once per sheet.
func (p *Pipeline[T]) OnHead(ctx context.Context, head Head) {
	if p.state != AwaitingHead {
		return
	}
	if p.hooks.HeadCheck != nil {
		p.headMsg = p.hooks.HeadCheck(ctx, head)
	}
	p.idx = BuildHeadIndex(head.Rows, head.Bindings)

	if strings.TrimSpace(p.headMsg) != "" {
		p.state = HeadError
		p.obs.HeadError()
		p.log.Warn("header rejected", "message", p.headMsg)
		return
	}
	p.state = Reading
}

// Continue reports whether the decoder should keep delivering rows.
func (p *Pipeline[T]) Continue() bool {
	return p.state == AwaitingHead || p.state == Reading
}

// OnRow validates and buffers one record, flushing a full batch.
func (p *Pipeline[T]) OnRow(ctx context.Context, index int, record T) error {
	if p.state != Reading {
		return nil
	}
	p.rowsRead++
	p.obs.RowsRead(1)

	if p.cfg.Validator != nil {
		p.recordViolations(index, p.cfg.Validator.ValidateRecord(record))
	}

	p.batch = append(p.batch, Row[T]{Index: index, Record: record})
	if len(p.batch) >= p.cfg.BatchSize {
		return p.flush(ctx)
	}
	return nil
}

// OnConversionError records a cell that couldn't be decoded. The row is
// dropped and reading continues.
func (p *Pipeline[T]) OnConversionError(err *ConversionError) {
	if p.state != Reading || err == nil {
		return
	}
	p.rowsRead++
	p.obs.RowsRead(1)
	p.add(CellError{Row: err.Row, Column: err.Column, Messages: []string{TypeMismatchMessage}})
	p.obs.CellErrors(ErrorKindTypeMismatch, 1)
	p.log.Debug("cell conversion failed", "row", err.Row, "column", err.Column, "error", err.Err)
}

// OnEnd drains the last batch and runs Complete. After a header error it
// does nothing.
func (p *Pipeline[T]) OnEnd(ctx context.Context) error {
	switch p.state {
	case HeadError, Done:
		return nil
	case AwaitingHead:
		// No header row at all: treat as an empty sheet.
		p.state = Reading
	}

	p.state = Draining
	if len(p.batch) > 0 {
		if err := p.flush(ctx); err != nil {
			return err
		}
	}
	p.state = Done
	if p.hooks.Complete != nil {
		if err := p.hooks.Complete(ctx); err != nil {
			return fmt.Errorf("complete: %w", err)
		}
	}
	return nil
}

func (p *Pipeline[T]) flush(ctx context.Context) error {
	batch := p.batch
	p.batch = make([]Row[T], 0, p.cfg.BatchSize)

	if p.hooks.Verify != nil {
		p.hooks.Verify(ctx, batch, verifySink[T]{p})
	}
	p.obs.BatchFlushed(len(batch))
	if p.hooks.Handle != nil {
		if err := p.hooks.Handle(ctx, batch); err != nil {
			return fmt.Errorf("handle batch ending at row %d: %w", batch[len(batch)-1].Index+1, err)
		}
	}
	return nil
}

func (p *Pipeline[T]) recordViolations(row int, violations map[string][]string) {
	if len(violations) == 0 {
		return
	}
	fields := make([]string, 0, len(violations))
	for f := range violations {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	n := 0
	for _, field := range fields {
		msgs := violations[field]
		if len(msgs) == 0 {
			continue
		}
		col, ok := p.idx.Field(field)
		if !ok {
			col, ok = p.idx.Head(field)
		}
		if !ok {
			p.log.Debug("violation on unmapped field dropped", "row", row, "field", field)
			continue
		}
		p.add(CellError{Row: row, Column: col, Messages: slices.Clone(msgs)})
		n++
	}
	p.obs.CellErrors(ErrorKindValidation, n)
}

func (p *Pipeline[T]) add(e CellError) {
	p.errs[e.Row] = append(p.errs[e.Row], e)
}

// AddError resolves at against the header and records messages on row.
// It reports false when the location can't be resolved.
func (p *Pipeline[T]) AddError(row int, at Locator, messages ...string) bool {
	e, ok := NewCellError(p.idx, row, at, messages...)
	if !ok {
		return false
	}
	p.add(e)
	return true
}

// AddCellErrors records already-resolved errors. Negative coordinates are dropped.
func (p *Pipeline[T]) AddCellErrors(errs ...CellError) {
	for _, e := range errs {
		if e.Row < 0 || e.Column < 0 {
			continue
		}
		p.add(e)
	}
}

// HasDataErrorOnRow reports whether any error has been recorded for row so far.
func (p *Pipeline[T]) HasDataErrorOnRow(row int) bool {
	return len(p.errs[row]) > 0
}

// State returns the current state.
func (p *Pipeline[T]) State() State { return p.state }

// HasHeadError reports whether the header check rejected the sheet.
func (p *Pipeline[T]) HasHeadError() bool { return p.state == HeadError }

// HeadErrorMessage returns the header check's message, if any.
func (p *Pipeline[T]) HeadErrorMessage() string { return p.headMsg }

// HasDataError reports whether any cell error was recorded.
func (p *Pipeline[T]) HasDataError() bool { return len(p.errs) > 0 }

// ErrorsForRow returns the errors recorded for one row.
func (p *Pipeline[T]) ErrorsForRow(row int) []CellError {
	return slices.Clone(p.errs[row])
}

// AllErrors returns every recorded error ordered by row, then column.
func (p *Pipeline[T]) AllErrors() []CellError {
	var all []CellError
	for _, errs := range p.errs {
		all = append(all, errs...)
	}
	sortCellErrors(all)
	return all
}

// ResolveColumn returns the column displaying header text.
func (p *Pipeline[T]) ResolveColumn(text string) (int, bool) {
	return p.idx.Head(text)
}

// HeadIndex exposes the index built from the header rows.
func (p *Pipeline[T]) HeadIndex() *HeadIndex { return p.idx }

// RowsRead is the number of data rows delivered, including ones that
// failed conversion.
func (p *Pipeline[T]) RowsRead() int { return p.rowsRead }

// verifySink counts errors added by Verify hooks separately.
type verifySink[T any] struct{ p *Pipeline[T] }

func (s verifySink[T]) AddError(row int, at Locator, messages ...string) bool {
	ok := s.p.AddError(row, at, messages...)
	if ok {
		s.p.obs.CellErrors(ErrorKindVerify, 1)
	}
	return ok
}

func (s verifySink[T]) AddCellErrors(errs ...CellError) {
	s.p.AddCellErrors(errs...)
	s.p.obs.CellErrors(ErrorKindVerify, len(errs))
}

func (s verifySink[T]) HasDataErrorOnRow(row int) bool { return s.p.HasDataErrorOnRow(row) }
