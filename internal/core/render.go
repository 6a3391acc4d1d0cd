package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/width"
)

// RendererConfig controls where option blocks land and who hears about it.
type RendererConfig struct {
	// HeadRows is the number of header rows above the first data row.
	HeadRows int

	// HiddenColumnRange and HiddenRowRange bound the random position of
	// option blocks on hidden sheets. Zero means 200 and 1000.
	HiddenColumnRange int
	HiddenRowRange    int

	Allocator NameAllocator
	Observer  Observer
	Logger    *slog.Logger
}

// RenderReport summarizes one Render call.
type RenderReport struct {
	Rendered    int
	Skipped     int
	Constraints int
	Names       []string
}

// ExplicitDropdown is an inline option list over a fixed cell range. It needs
// no auxiliary sheet but is limited to 255 characters of options.
type ExplicitDropdown struct {
	FirstRow, LastRow int
	FirstCol, LastCol int
	Options           []string
}

// Renderer turns rules into auxiliary sheets, defined names and data
// validations on one sheet of a workbook.
//
// A Renderer is sequential-only. Later rules may reuse sheets and names
// created by earlier ones, and the lookup-then-create steps are not safe
// under concurrent mutation of the same workbook.
type Renderer struct {
	f     *excelize.File
	sheet string
	idx   *HeadIndex
	cfg   RendererConfig
	alloc NameAllocator
	obs   Observer
	log   *slog.Logger

	names     map[string]bool
	boldStyle int
}

// area is an inclusive, zero-based cell rectangle.
type area struct {
	firstRow, lastRow int
	firstCol, lastCol int
}

// NewRenderer returns a renderer targeting sheet. idx resolves field and
// header locators; it may be nil when every rule uses explicit columns.
func NewRenderer(f *excelize.File, sheet string, idx *HeadIndex, cfg RendererConfig) *Renderer {
	if cfg.HiddenColumnRange <= 0 {
		cfg.HiddenColumnRange = 200
	}
	if cfg.HiddenRowRange <= 0 {
		cfg.HiddenRowRange = 1000
	}
	if cfg.HeadRows < 0 {
		cfg.HeadRows = 0
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = RandomAllocator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		f:     f,
		sheet: sheet,
		idx:   idx,
		cfg:   cfg,
		alloc: alloc,
		obs:   observerOrNop(cfg.Observer),
		log:   logger.With("sheet", sheet),
	}
}

// Render applies rules in declaration order. Rules whose column can't be
// found among the headers are skipped and counted, not reported as errors.
func (r *Renderer) Render(rules []*Rule) (RenderReport, error) {
	var rep RenderReport
	for i, rule := range rules {
		if rule == nil {
			continue
		}
		var (
			ok  bool
			err error
		)
		if rule.Kind() == Cascade {
			ok, err = r.renderCascade(rule, &rep)
		} else {
			ok, err = r.renderOrdinary(rule, &rep)
		}
		if err != nil {
			return rep, fmt.Errorf("rule %d (%s at %s): %w", i, rule.Kind(), rule.Target(), err)
		}
		if !ok {
			rep.Skipped++
			r.obs.RuleSkipped(rule.Kind())
			r.log.Debug("rule skipped, column not present", "kind", rule.Kind().String(), "target", rule.Target().String())
			continue
		}
		rep.Rendered++
		r.obs.RuleRendered(rule.Kind())
	}
	r.log.Debug("rules rendered", "rendered", rep.Rendered, "skipped", rep.Skipped, "constraints", rep.Constraints)
	return rep, nil
}

// areaOf computes the cells a rule constrains. It reports false when the
// rule has no resolvable target.
func (r *Renderer) areaOf(rule *Rule) (area, bool) {
	row, pinned := rule.Row()
	col, resolved := r.idx.Resolve(rule.Target())
	if !rule.Target().IsZero() && !resolved {
		return area{}, false
	}

	switch {
	case pinned && resolved:
		return area{row, row, col, col}, true
	case pinned:
		return area{row, row, 0, rule.ColumnSpan() - 1}, true
	case resolved:
		first := r.cfg.HeadRows
		return area{first, first + rule.RowSpan() - 1, col, col}, true
	}
	return area{}, false
}

func (r *Renderer) renderOrdinary(rule *Rule, rep *RenderReport) (bool, error) {
	a, hasArea := r.areaOf(rule)
	if !hasArea && !rule.Dictionary() {
		return false, nil
	}

	name, err := r.optionBlock(rule, rep)
	if err != nil {
		return false, err
	}
	if !hasArea {
		// Dictionary sheets are written even when their column is absent.
		return rule.Target().IsZero(), nil
	}
	if name == "" {
		return true, nil
	}

	dv := r.newValidation(rule, a)
	dv.SetSqrefDropList(name)
	if err := r.f.AddDataValidation(r.sheet, dv); err != nil {
		return false, fmt.Errorf("add validation: %w", err)
	}
	rep.Constraints++
	return true, nil
}

// optionBlock writes a rule's options to its backing sheet and names the
// span. An existing name is reused as-is. Returns "" when there is nothing
// to name.
func (r *Renderer) optionBlock(rule *Rule, rep *RenderReport) (string, error) {
	sheet := rule.SheetName(r.alloc)
	name := rangeName(sheet)
	if r.hasName(name) {
		return name, nil
	}

	created, err := r.ensureSheet(sheet)
	if err != nil {
		return "", err
	}

	col, start := 0, 0
	if !rule.Dictionary() {
		col = r.alloc.Intn(r.cfg.HiddenColumnRange)
		start = r.alloc.Intn(r.cfg.HiddenRowRange)
		if created {
			if err := r.hideSheet(sheet, col); err != nil {
				return "", err
			}
		}
	} else if title := rule.DictionaryTitle(); strings.TrimSpace(title) != "" {
		start = 1
		if err := r.writeTitle(sheet, title); err != nil {
			return "", err
		}
	}

	options := rule.Options()
	if len(options) == 0 {
		return "", nil
	}
	if err := r.writeColumn(sheet, col, start, options); err != nil {
		return "", err
	}
	if err := r.defineName(name, absColumnRange(sheet, col, start, start+len(options)-1), rep); err != nil {
		return "", err
	}
	return name, nil
}

func (r *Renderer) renderCascade(rule *Rule, rep *RenderReport) (bool, error) {
	parent := rule.Parent()
	if parent.Target().IsZero() {
		return false, nil
	}
	parentCol, ok := r.idx.Resolve(parent.Target())
	if !ok {
		return false, nil
	}
	a, ok := r.areaOf(rule)
	if !ok {
		return false, nil
	}

	parentSheet := parent.SheetName(r.alloc)
	if err := checkCascadeNames(rule.Children(), parentSheet); err != nil {
		return false, err
	}
	childSheet := rule.SheetName(r.alloc)

	created, err := r.ensureSheet(childSheet)
	if err != nil {
		return false, err
	}
	if created && !rule.Dictionary() {
		if err := r.hideSheet(childSheet, 0); err != nil {
			return false, err
		}
	}

	next, err := r.usedRows(childSheet)
	if err != nil {
		return false, err
	}
	children := rule.Children()
	for _, value := range children.Keys() {
		name := value + parentSheet
		if r.hasName(name) {
			continue
		}
		kids := children.Children(value)
		if len(kids) == 0 {
			continue
		}
		if err := r.writeColumn(childSheet, 0, next, kids); err != nil {
			return false, err
		}
		if err := r.defineName(name, absColumnRange(childSheet, 0, next, next+len(kids)-1), rep); err != nil {
			return false, err
		}
		next += len(kids)
	}

	// INDIRECT must see the parent cell of the row being validated, so every
	// row gets its own constraint.
	letter := ColumnLetter(parentCol)
	for row := a.firstRow; row <= a.lastRow; row++ {
		formula := fmt.Sprintf(`INDIRECT(CONCATENATE($%s$%d,"%s"))`, letter, row+1, parentSheet)
		dv := r.newValidation(rule, area{row, row, a.firstCol, a.lastCol})
		dv.SetSqrefDropList(formula)
		if err := r.f.AddDataValidation(r.sheet, dv); err != nil {
			return false, fmt.Errorf("add cascade validation on row %d: %w", row+1, err)
		}
		rep.Constraints++
	}
	return true, nil
}

// RenderExplicit applies inline list constraints. Returns how many were added.
func (r *Renderer) RenderExplicit(dropdowns []ExplicitDropdown) (int, error) {
	n := 0
	for _, d := range dropdowns {
		if d.FirstRow < 0 || d.FirstCol < 0 || d.LastRow < d.FirstRow || d.LastCol < d.FirstCol {
			return n, fmt.Errorf("dropdown %d: %w", n, ErrNegativeIndex)
		}
		dv := excelize.NewDataValidation(true)
		dv.SetSqref(rangeRef(d.FirstRow, d.LastRow, d.FirstCol, d.LastCol))
		if err := dv.SetDropList(d.Options); err != nil {
			return n, fmt.Errorf("dropdown %s: %w", rangeRef(d.FirstRow, d.LastRow, d.FirstCol, d.LastCol), err)
		}
		dv.ShowErrorMessage = true
		if err := r.f.AddDataValidation(r.sheet, dv); err != nil {
			return n, fmt.Errorf("add validation: %w", err)
		}
		n++
	}
	return n, nil
}

func (r *Renderer) newValidation(rule *Rule, a area) *excelize.DataValidation {
	dv := excelize.NewDataValidation(true)
	dv.SetSqref(rangeRef(a.firstRow, a.lastRow, a.firstCol, a.lastCol))
	if rule.CheckValidity() {
		title, msg := rule.ErrorBox()
		if title != "" || msg != "" {
			dv.SetError(excelize.DataValidationErrorStyleStop, title, msg)
		}
		dv.ShowErrorMessage = true
	}
	return dv
}

// ensureSheet creates sheet unless it exists. Reports whether it was created.
func (r *Renderer) ensureSheet(sheet string) (bool, error) {
	idx, err := r.f.GetSheetIndex(sheet)
	if err != nil {
		return false, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	if idx != -1 {
		return false, nil
	}
	if _, err := r.f.NewSheet(sheet); err != nil {
		return false, fmt.Errorf("create sheet %q: %w", sheet, err)
	}
	return true, nil
}

// hideSheet hides the option column, protects the sheet with a random token
// and hides the sheet itself. This deters casual edits only.
func (r *Renderer) hideSheet(sheet string, col int) error {
	if err := r.f.SetColVisible(sheet, ColumnLetter(col), false); err != nil {
		return fmt.Errorf("hide column: %w", err)
	}
	if err := r.f.ProtectSheet(sheet, &excelize.SheetProtectionOptions{Password: r.alloc.Token()}); err != nil {
		return fmt.Errorf("protect sheet %q: %w", sheet, err)
	}
	if err := r.f.SetSheetVisible(sheet, false); err != nil {
		return fmt.Errorf("hide sheet %q: %w", sheet, err)
	}
	return nil
}

func (r *Renderer) writeTitle(sheet, title string) error {
	if r.boldStyle == 0 {
		style, err := r.f.NewStyle(&excelize.Style{
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{WrapText: true},
		})
		if err != nil {
			return fmt.Errorf("title style: %w", err)
		}
		r.boldStyle = style
	}
	if err := r.f.SetCellValue(sheet, "A1", title); err != nil {
		return err
	}
	if err := r.f.SetCellStyle(sheet, "A1", "A1", r.boldStyle); err != nil {
		return err
	}
	return r.f.SetColWidth(sheet, "A", "A", textWidth(title))
}

func (r *Renderer) writeColumn(sheet string, col, start int, values []string) error {
	for i, v := range values {
		if err := r.f.SetCellValue(sheet, cellName(start+i, col), v); err != nil {
			return fmt.Errorf("write option %q: %w", v, err)
		}
	}
	return nil
}

func (r *Renderer) usedRows(sheet string) (int, error) {
	rows, err := r.f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return len(rows), nil
}

func (r *Renderer) hasName(name string) bool {
	if r.names == nil {
		r.names = make(map[string]bool)
		for _, dn := range r.f.GetDefinedName() {
			r.names[strings.ToLower(dn.Name)] = true
		}
	}
	return r.names[strings.ToLower(name)]
}

func (r *Renderer) defineName(name, refersTo string, rep *RenderReport) error {
	err := r.f.SetDefinedName(&excelize.DefinedName{Name: name, RefersTo: refersTo})
	if err != nil && !errors.Is(err, excelize.ErrDefinedNameDuplicate) {
		return fmt.Errorf("define name %q: %w", name, err)
	}
	r.hasName(name)
	r.names[strings.ToLower(name)] = true
	rep.Names = append(rep.Names, name)
	return nil
}

// rangeName derives the defined name of an ordinary rule's option block
// from its sheet. Bytes outside [A-Za-z0-9._] are hex-escaped.
func rangeName(sheet string) string {
	var b strings.Builder
	b.WriteByte('_')
	for i := 0; i < len(sheet); i++ {
		c := sheet[i]
		if c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "_%02X", c)
	}
	return b.String()
}

// isValidName reports whether s can be used as a workbook defined name.
func isValidName(s string) bool {
	if s == "" || utf8.RuneCountInString(s) > 255 {
		return false
	}
	for i, c := range s {
		if i == 0 {
			if !unicode.IsLetter(c) && c != '_' && c != '\\' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' && c != '.' {
			return false
		}
	}
	// Names that parse as cell references are rejected by spreadsheet apps.
	if _, _, err := excelize.CellNameToCoordinates(s); err == nil {
		return false
	}
	return true
}

// textWidth estimates a column width that fits s, counting wide runes twice.
func textWidth(s string) float64 {
	w := 0.0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w += 2
		default:
			w++
		}
	}
	w = w*1.2 + 2
	if w < 10 {
		w = 10
	}
	if w > 255 {
		w = 255
	}
	return w
}
