package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Rule construction errors. They are returned before any workbook I/O.
var (
	ErrNoLocator     = errors.New("rule needs a column index, field or header")
	ErrNoParent      = errors.New("cascade rule needs a parent rule")
	ErrNegativeIndex = errors.New("row and column indexes must be >= 0")
	ErrNoOptions     = errors.New("rule has no options")
	ErrCascadeName   = errors.New("cascade parent value can't form a workbook name")
	ErrTwoLocators   = errors.New("rule names more than one of column index, field and header")
)

const (
	// DefaultRowSpan is how many data rows a column-anchored rule covers.
	DefaultRowSpan = 10000
	// DefaultColumnSpan is how many columns a row-anchored rule covers.
	DefaultColumnSpan = 100
)

// Locator names a column by exactly one of: explicit index, field
// identifier, or header text. The zero value names nothing.
type Locator struct {
	Field string
	Head  string

	col    int
	hasCol bool
}

// AtColumn locates a zero-based column index.
func AtColumn(index int) Locator {
	return Locator{col: index, hasCol: true}
}

// ByField locates the column bound to a record field.
func ByField(name string) Locator {
	return Locator{Field: name}
}

// ByHead locates the column displaying a header text.
func ByHead(text string) Locator {
	return Locator{Head: text}
}

// ColumnIndex returns the explicit column index, if set.
func (l Locator) ColumnIndex() (int, bool) {
	return l.col, l.hasCol
}

// IsZero reports whether the locator names nothing.
func (l Locator) IsZero() bool {
	return !l.hasCol && strings.TrimSpace(l.Field) == "" && strings.TrimSpace(l.Head) == ""
}

// ambiguous reports whether more than one of index, field and header is set.
func (l Locator) ambiguous() bool {
	n := 0
	if l.hasCol {
		n++
	}
	if strings.TrimSpace(l.Field) != "" {
		n++
	}
	if strings.TrimSpace(l.Head) != "" {
		n++
	}
	return n > 1
}

func (l Locator) String() string {
	switch {
	case l.hasCol:
		return "column " + ColumnLetter(l.col)
	case l.Field != "":
		return "field " + l.Field
	case l.Head != "":
		return fmt.Sprintf("header %q", l.Head)
	}
	return "nowhere"
}

// RuleKind distinguishes flat option lists from cascading dropdowns.
type RuleKind int

const (
	Ordinary RuleKind = iota
	Cascade
)

func (k RuleKind) String() string {
	if k == Cascade {
		return "cascade"
	}
	return "ordinary"
}

// RuleConfig is the full declaration of one dropdown. Most callers use the
// builders in rule_builders.go instead of filling it by hand.
type RuleConfig struct {
	Kind   RuleKind
	Target Locator

	// Row pins the rule to one sheet row. Nil means every data row.
	Row *int

	// RowSpan and ColumnSpan bound the unpinned axis. Zero means default.
	RowSpan    int
	ColumnSpan int

	Options []string

	Parent   *Rule
	Children *CascadeMap

	// Dictionary writes options to a visible, named sheet instead of a
	// hidden per-rule one.
	Dictionary      bool
	DictionaryTitle string
	SheetName       string

	// SkipValidityCheck disables the error box so free text is accepted.
	SkipValidityCheck bool
	ErrorTitle        string
	ErrorMessage      string
}

// Rule is an immutable dropdown declaration built by NewRule.
type Rule struct {
	kind       RuleKind
	target     Locator
	row        *int
	rowSpan    int
	columnSpan int
	options    []string
	parent     *Rule
	children   *CascadeMap

	dictionary      bool
	dictionaryTitle string
	sheetName       string

	checkValidity bool
	errorTitle    string
	errorMessage  string
}

// NewRule validates cfg and returns the rule it describes.
func NewRule(cfg RuleConfig) (*Rule, error) {
	if cfg.Row != nil && *cfg.Row < 0 {
		return nil, fmt.Errorf("row %d: %w", *cfg.Row, ErrNegativeIndex)
	}
	if col, ok := cfg.Target.ColumnIndex(); ok && col < 0 {
		return nil, fmt.Errorf("column %d: %w", col, ErrNegativeIndex)
	}
	if cfg.Target.ambiguous() {
		return nil, fmt.Errorf("field %q, header %q: %w", cfg.Target.Field, cfg.Target.Head, ErrTwoLocators)
	}
	if cfg.RowSpan < 0 || cfg.ColumnSpan < 0 {
		return nil, fmt.Errorf("span: %w", ErrNegativeIndex)
	}

	switch cfg.Kind {
	case Cascade:
		if cfg.Parent == nil {
			return nil, ErrNoParent
		}
		if cfg.Target.IsZero() {
			return nil, fmt.Errorf("cascade: %w", ErrNoLocator)
		}
		if err := checkCascadeNames(cfg.Children, cfg.Parent.sheetName); err != nil {
			return nil, err
		}
	case Ordinary:
		dictionaryOnly := cfg.Dictionary && cfg.Row == nil && cfg.Target.IsZero()
		if cfg.Target.IsZero() && cfg.Row == nil && !dictionaryOnly {
			return nil, ErrNoLocator
		}
		if len(cfg.Options) == 0 && !cfg.Dictionary {
			return nil, fmt.Errorf("%s: %w", cfg.Target, ErrNoOptions)
		}
	default:
		return nil, fmt.Errorf("unknown rule kind %d", cfg.Kind)
	}
	if cfg.Dictionary && strings.TrimSpace(cfg.SheetName) == "" {
		return nil, errors.New("dictionary rule needs a sheet name")
	}

	r := &Rule{
		kind:            cfg.Kind,
		target:          cfg.Target,
		rowSpan:         cfg.RowSpan,
		columnSpan:      cfg.ColumnSpan,
		options:         slices.Clone(cfg.Options),
		parent:          cfg.Parent,
		dictionary:      cfg.Dictionary,
		dictionaryTitle: cfg.DictionaryTitle,
		sheetName:       strings.TrimSpace(cfg.SheetName),
		checkValidity:   !cfg.SkipValidityCheck,
		errorTitle:      cfg.ErrorTitle,
		errorMessage:    cfg.ErrorMessage,
	}
	if cfg.Row != nil {
		row := *cfg.Row
		r.row = &row
	}
	if r.rowSpan == 0 {
		r.rowSpan = DefaultRowSpan
	}
	if r.columnSpan == 0 {
		r.columnSpan = DefaultColumnSpan
	}
	if cfg.Children != nil {
		r.children = cfg.Children.Clone()
	} else if cfg.Kind == Cascade {
		r.children = NewCascadeMap()
	}
	return r, nil
}

func (r *Rule) Kind() RuleKind          { return r.kind }
func (r *Rule) Target() Locator         { return r.target }
func (r *Rule) RowSpan() int            { return r.rowSpan }
func (r *Rule) ColumnSpan() int         { return r.columnSpan }
func (r *Rule) Options() []string       { return slices.Clone(r.options) }
func (r *Rule) Parent() *Rule           { return r.parent }
func (r *Rule) Children() *CascadeMap   { return r.children }
func (r *Rule) Dictionary() bool        { return r.dictionary }
func (r *Rule) DictionaryTitle() string { return r.dictionaryTitle }
func (r *Rule) CheckValidity() bool     { return r.checkValidity }

// Row returns the pinned row, if any.
func (r *Rule) Row() (int, bool) {
	if r.row == nil {
		return 0, false
	}
	return *r.row, true
}

// ErrorBox returns the title and message shown on invalid input.
func (r *Rule) ErrorBox() (title, message string) {
	return r.errorTitle, r.errorMessage
}

// SheetName returns the backing sheet name, drawing one from alloc the
// first time it is needed. The name is then fixed for the rule's lifetime
// so cascades can refer to their parent's sheet. Not safe for concurrent use.
func (r *Rule) SheetName(alloc NameAllocator) string {
	if r.sheetName == "" {
		r.sheetName = alloc.SheetName()
	}
	return r.sheetName
}

// Accepts reports whether value is one of the rule's options. For cascade
// rules the parent value selects the option list.
func (r *Rule) Accepts(value, parentValue string) bool {
	if r.kind == Cascade {
		return slices.Contains(r.children.Children(parentValue), value)
	}
	return slices.Contains(r.options, value)
}

// SameDeclaration reports whether a and b declare the same dropdown.
// Rules match when their pinned rows are equal and either (a) a row is
// pinned and the explicit columns are equal, (b) the fields match, or
// (c) the header texts match.
//
// Two row-pinned rules with no explicit column count as equal even when
// one of them targets a field or header. Callers merging declared and
// programmatic rules rely on this exact behaviour.
func SameDeclaration(a, b *Rule) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if !sameRow(a.row, b.row) {
		return false
	}
	if a.row != nil && sameColumn(a.target, b.target) {
		return true
	}
	if strings.TrimSpace(a.target.Field) != "" && a.target.Field == b.target.Field {
		return true
	}
	if strings.TrimSpace(a.target.Head) != "" && a.target.Head == b.target.Head {
		return true
	}
	return false
}

func sameRow(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameColumn(a, b Locator) bool {
	ac, aok := a.ColumnIndex()
	bc, bok := b.ColumnIndex()
	if !aok || !bok {
		return aok == bok
	}
	return ac == bc
}

// generatedSheet stands in for a parent sheet name not drawn yet.
// RandomAllocator names are plain identifiers with this prefix.
const generatedSheet = "dic_"

// checkCascadeNames reports the first parent value whose option block name
// (value followed by the parent sheet) is not a valid workbook name. An
// empty parentSheet means the allocator will generate one.
func checkCascadeNames(children *CascadeMap, parentSheet string) error {
	if parentSheet == "" {
		parentSheet = generatedSheet
	}
	for _, value := range children.Keys() {
		if len(children.Children(value)) == 0 {
			continue
		}
		if !isValidName(value + parentSheet) {
			return fmt.Errorf("value %q with parent sheet %q: %w", value, parentSheet, ErrCascadeName)
		}
	}
	return nil
}

// MergeRules returns primary followed by every rule of extra that does not
// duplicate one already in the result.
func MergeRules(primary, extra []*Rule) []*Rule {
	out := slices.Clone(primary)
	for _, r := range extra {
		dup := slices.ContainsFunc(out, func(o *Rule) bool {
			return SameDeclaration(r, o)
		})
		if !dup {
			out = append(out, r)
		}
	}
	return out
}
