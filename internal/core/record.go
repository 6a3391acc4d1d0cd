package core

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ConversionError reports a cell whose text could not be converted to the
// type of the field it feeds. Pipelines record it as a type-mismatch cell
// error and keep reading.
type ConversionError struct {
	Row    int
	Column int
	Field  string
	Value  string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("row %d column %s (%s): cannot convert %q: %v",
		e.Row+1, ColumnLetter(e.Column), e.Field, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// RecordMapper turns the cells of one row into a record.
type RecordMapper[T any] interface {
	// Bindings reports which field each column carries, or nil when the
	// record type has no fixed fields.
	Bindings(head [][]string) []FieldBinding
	// Map converts one row. Cell failures are returned as *ConversionError.
	Map(row int, cells []string, idx *HeadIndex) (T, error)
}

// ColumnSpec describes one record field as a sheet column. Struct tags:
//
//	excel:"Header"                  header text (defaults to the field name)
//	excel:"Header,index=2,width=18" pinned column and column width
//	excel:"-"                       not a column
//	options:"a|b|c"                 dropdown options for the column
type ColumnSpec struct {
	Field   string
	Header  string
	Index   int
	Width   float64
	Options []string

	fieldIndex []int
	typ        reflect.Type
}

// RecordSchema is the column layout of a struct type.
type RecordSchema struct {
	Type    reflect.Type
	Columns []ColumnSpec
}

var timeType = reflect.TypeOf(time.Time{})

// SchemaOf reads the column layout of struct type T.
func SchemaOf[T any]() (*RecordSchema, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %s is not a struct", t)
	}

	s := &RecordSchema{Type: t}
	used := make(map[int]string)
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag := f.Tag.Get("excel")
		if tag == "-" {
			continue
		}
		if !supportedKind(f.Type) {
			return nil, fmt.Errorf("schema: field %s has unsupported type %s", f.Name, f.Type)
		}

		col := ColumnSpec{Field: f.Name, Header: f.Name, Index: -1, fieldIndex: f.Index, typ: f.Type}
		parts := strings.Split(tag, ",")
		if h := strings.TrimSpace(parts[0]); h != "" {
			col.Header = h
		}
		for _, p := range parts[1:] {
			key, val, _ := strings.Cut(strings.TrimSpace(p), "=")
			switch key {
			case "index":
				n, err := strconv.Atoi(val)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("schema: field %s: bad index %q", f.Name, val)
				}
				if other, dup := used[n]; dup {
					return nil, fmt.Errorf("schema: fields %s and %s share index %d", other, f.Name, n)
				}
				used[n] = f.Name
				col.Index = n
			case "width":
				w, err := strconv.ParseFloat(val, 64)
				if err != nil || w <= 0 {
					return nil, fmt.Errorf("schema: field %s: bad width %q", f.Name, val)
				}
				col.Width = w
			default:
				return nil, fmt.Errorf("schema: field %s: unknown excel option %q", f.Name, key)
			}
		}
		if opts := f.Tag.Get("options"); opts != "" {
			for _, o := range strings.Split(opts, "|") {
				if o = strings.TrimSpace(o); o != "" {
					col.Options = append(col.Options, o)
				}
			}
		}
		s.Columns = append(s.Columns, col)
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("schema: %s has no columns", t)
	}
	return s, nil
}

func supportedKind(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Layout assigns every column a position: pinned columns keep their index,
// the rest fill the free positions in declaration order.
func (s *RecordSchema) Layout() []FieldBinding {
	taken := make(map[int]bool)
	for _, c := range s.Columns {
		if c.Index >= 0 {
			taken[c.Index] = true
		}
	}
	out := make([]FieldBinding, 0, len(s.Columns))
	next := 0
	for _, c := range s.Columns {
		col := c.Index
		if col < 0 {
			for taken[next] {
				next++
			}
			col = next
			taken[col] = true
		}
		out = append(out, FieldBinding{Field: c.Field, Column: col, Texts: []string{c.Header}})
	}
	return out
}

// Headers returns the header row implied by Layout.
func (s *RecordSchema) Headers() []string {
	layout := s.Layout()
	width := 0
	for _, b := range layout {
		width = max(width, b.Column+1)
	}
	row := make([]string, width)
	for _, b := range layout {
		row[b.Column] = b.Texts[0]
	}
	return row
}

// Bind matches schema columns against header rows read from a file. Pinned
// columns bind by index; the others bind by header text. Columns whose
// header is absent are left unbound.
func (s *RecordSchema) Bind(head [][]string) []FieldBinding {
	idx := BuildHeadIndex(head, nil)
	var out []FieldBinding
	for _, c := range s.Columns {
		col := c.Index
		if col < 0 {
			var ok bool
			if col, ok = idx.Head(c.Header); !ok {
				continue
			}
		}
		out = append(out, FieldBinding{Field: c.Field, Column: col, Texts: []string{c.Header}})
	}
	return out
}

// Rules returns a column rule for every column declaring options.
func (s *RecordSchema) Rules(opts ...RuleOption) ([]*Rule, error) {
	var rules []*Rule
	for _, c := range s.Columns {
		if len(c.Options) == 0 {
			continue
		}
		r, err := ColumnRule(ByField(c.Field), c.Options, opts...)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c.Field, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Values returns the field values of record in Layout order, with time
// values and nil pointers flattened for writing.
func (s *RecordSchema) Values(record any) []any {
	v := reflect.Indirect(reflect.ValueOf(record))
	layout := s.Layout()
	width := 0
	for _, b := range layout {
		width = max(width, b.Column+1)
	}
	row := make([]any, width)
	for i, c := range s.Columns {
		fv := v.FieldByIndex(c.fieldIndex)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		row[layout[i].Column] = fv.Interface()
	}
	return row
}

// StructMapper decodes rows into struct records described by SchemaOf.
type StructMapper[T any] struct {
	schema *RecordSchema
}

// NewStructMapper builds a mapper for struct type T.
func NewStructMapper[T any]() (*StructMapper[T], error) {
	s, err := SchemaOf[T]()
	if err != nil {
		return nil, err
	}
	return &StructMapper[T]{schema: s}, nil
}

// Schema returns the record layout.
func (m *StructMapper[T]) Schema() *RecordSchema { return m.schema }

func (m *StructMapper[T]) Bindings(head [][]string) []FieldBinding {
	return m.schema.Bind(head)
}

func (m *StructMapper[T]) Map(row int, cells []string, idx *HeadIndex) (T, error) {
	var rec T
	v := reflect.ValueOf(&rec).Elem()
	for _, c := range m.schema.Columns {
		col, ok := idx.Field(c.Field)
		if !ok || col >= len(cells) {
			continue
		}
		raw := cells[col]
		if err := setCell(v.FieldByIndex(c.fieldIndex), raw); err != nil {
			var zero T
			return zero, &ConversionError{Row: row, Column: col, Field: c.Field, Value: raw, Err: err}
		}
	}
	return rec, nil
}

// HeaderMapper decodes rows into maps keyed by header text.
type HeaderMapper struct{}

func (HeaderMapper) Bindings([][]string) []FieldBinding { return nil }

func (HeaderMapper) Map(_ int, cells []string, idx *HeadIndex) (map[string]string, error) {
	rec := make(map[string]string, idx.Width())
	for col := 0; col < idx.Width(); col++ {
		key := idx.Text(col)
		if key == "" {
			continue
		}
		if _, dup := rec[key]; dup {
			continue
		}
		if col < len(cells) {
			rec[key] = cells[col]
		} else {
			rec[key] = ""
		}
	}
	return rec, nil
}

var errNotBool = errors.New("not a boolean")

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1/2/06",
	"1/2/06 15:04",
}

func setCell(field reflect.Value, raw string) error {
	s := strings.TrimSpace(raw)
	if field.Kind() == reflect.Pointer {
		if s == "" {
			field.SetZero()
			return nil
		}
		ptr := reflect.New(field.Type().Elem())
		if err := setCell(ptr.Elem(), raw); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}
	if field.Kind() == reflect.String {
		field.SetString(raw)
		return nil
	}
	if s == "" {
		field.SetZero()
		return nil
	}

	if field.Type() == timeType {
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}

	switch field.Kind() {
	case reflect.Bool:
		b, err := parseBool(s)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || field.OverflowInt(int64(f)) {
				return err
			}
			n = int64(f)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no":
		return false, nil
	}
	return false, errNotBool
}

// parseTime accepts common date layouts and spreadsheet serial numbers.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		return excelize.ExcelDateToTime(serial, false)
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
