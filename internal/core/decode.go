package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// contextCheckInterval is how often decoders check for cancellation.
const contextCheckInterval = 100

// Listener receives a decoded sheet. *Pipeline implements it.
type Listener[T any] interface {
	OnHead(ctx context.Context, head Head)
	HeadIndex() *HeadIndex
	Continue() bool
	OnRow(ctx context.Context, index int, record T) error
	OnConversionError(err *ConversionError)
	OnEnd(ctx context.Context) error
}

// Decoder pushes one sheet into a listener.
type Decoder[T any] interface {
	Decode(ctx context.Context, l Listener[T]) error
}

// ErrSheetNotFound is returned when the requested sheet doesn't exist.
var ErrSheetNotFound = errors.New("sheet not found")

// XLSXDecoder reads one worksheet of a workbook row by row.
type XLSXDecoder[T any] struct {
	Reader   io.Reader
	Sheet    string // defaults to the first sheet
	HeadRows int    // defaults to 1
	Mapper   RecordMapper[T]
}

func (d XLSXDecoder[T]) Decode(ctx context.Context, l Listener[T]) error {
	f, err := excelize.OpenReader(d.Reader)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := d.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	fd := newFeeder(l, d.Mapper, d.HeadRows)
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read row %d: %w", fd.index+1, err)
		}
		done, err := fd.feed(ctx, cells)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return fd.end(ctx)
}

// CSVDecoder reads delimited text. Input goes through NewTextReader.
type CSVDecoder[T any] struct {
	Reader    io.Reader
	Comma     rune // defaults to ','
	HeadRows  int  // defaults to 1
	Mapper    RecordMapper[T]
	LazyQuote bool
}

func (d CSVDecoder[T]) Decode(ctx context.Context, l Listener[T]) error {
	r := csv.NewReader(NewTextReader(d.Reader))
	r.FieldsPerRecord = -1
	r.LazyQuotes = d.LazyQuote
	r.ReuseRecord = true
	if d.Comma != 0 {
		r.Comma = d.Comma
	}

	fd := newFeeder(l, d.Mapper, d.HeadRows)
	for {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse csv: %w", err)
		}
		done, err := fd.feed(ctx, cells)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	return fd.end(ctx)
}

// feeder holds the row loop shared by the decoders.
type feeder[T any] struct {
	l        Listener[T]
	mapper   RecordMapper[T]
	headRows int
	head     [][]string
	headSent bool
	index    int
}

func newFeeder[T any](l Listener[T], m RecordMapper[T], headRows int) *feeder[T] {
	if headRows <= 0 {
		headRows = 1
	}
	return &feeder[T]{l: l, mapper: m, headRows: headRows}
}

// feed handles one physical row and reports whether the listener stopped.
func (fd *feeder[T]) feed(ctx context.Context, cells []string) (bool, error) {
	index := fd.index
	fd.index++

	if index%contextCheckInterval == 0 {
		if err := ctx.Err(); err != nil {
			return true, err
		}
	}

	if index < fd.headRows {
		fd.head = append(fd.head, trimRow(cells))
		if len(fd.head) == fd.headRows {
			fd.sendHead(ctx)
		}
		return !fd.l.Continue(), nil
	}

	if blankRow(cells) {
		return false, nil
	}
	if !fd.l.Continue() {
		return true, nil
	}

	rec, err := fd.mapper.Map(index, cells, fd.l.HeadIndex())
	if err != nil {
		var convErr *ConversionError
		if errors.As(err, &convErr) {
			fd.l.OnConversionError(convErr)
			return false, nil
		}
		return true, fmt.Errorf("map row %d: %w", index+1, err)
	}
	return false, fd.l.OnRow(ctx, index, rec)
}

func (fd *feeder[T]) sendHead(ctx context.Context) {
	fd.headSent = true
	fd.l.OnHead(ctx, Head{Rows: fd.head, Bindings: fd.mapper.Bindings(fd.head)})
}

func (fd *feeder[T]) end(ctx context.Context) error {
	// A sheet shorter than its header still gets its header checked.
	if !fd.headSent && len(fd.head) > 0 {
		fd.sendHead(ctx)
	}
	return fd.l.OnEnd(ctx)
}

func trimRow(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
