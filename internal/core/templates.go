package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// prepare checks a definition and fills in derived values.
func prepare(def TemplateDefinition) (TemplateDefinition, error) {
	if err := def.Check(); err != nil {
		return def, err
	}
	if def.Info.Label == "" {
		def.Info.Label = def.Info.Key
	}
	if def.Info.Sheet == "" {
		def.Info.Sheet = def.Info.Label
	}
	def.Info.Columns = def.Headers()
	return def, nil
}

// Check reports the first structural problem in def.
func (def TemplateDefinition) Check() error {
	key := def.Info.Key
	if strings.TrimSpace(key) == "" {
		return errors.New("template has no key")
	}
	if len(def.Fields) == 0 {
		return fmt.Errorf("template %s: no fields", key)
	}

	dicts := make(map[string]bool, len(def.Dictionaries))
	for _, d := range def.Dictionaries {
		if strings.TrimSpace(d.Sheet) == "" {
			return fmt.Errorf("template %s: dictionary without sheet", key)
		}
		if dicts[d.Sheet] {
			return fmt.Errorf("template %s: dictionary %s declared twice", key, d.Sheet)
		}
		dicts[d.Sheet] = true
	}

	names := make(map[string]bool, len(def.Fields))
	keys := make(map[string]FieldSpec, len(def.Fields))
	for _, f := range def.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("template %s: field without name", key)
		}
		if names[headKey(f.Name)] {
			return fmt.Errorf("template %s: field %q declared twice", key, f.Name)
		}
		names[headKey(f.Name)] = true
		if _, dup := keys[f.FieldKey()]; dup {
			return fmt.Errorf("template %s: field key %q declared twice", key, f.FieldKey())
		}

		if f.Dictionary != "" && !dicts[f.Dictionary] {
			return fmt.Errorf("template %s: field %q uses unknown dictionary %s", key, f.Name, f.Dictionary)
		}
		if f.Parent != "" {
			parent, ok := keys[f.Parent]
			if !ok {
				return fmt.Errorf("template %s: field %q: parent %q must be declared before it", key, f.Name, f.Parent)
			}
			if !parent.hasDropdown() {
				return fmt.Errorf("template %s: field %q: parent %q has no dropdown: %w", key, f.Name, f.Parent, ErrNoParent)
			}
			if f.Cascade.Len() == 0 {
				return fmt.Errorf("template %s: field %q: %w", key, f.Name, ErrNoOptions)
			}
			if err := checkCascadeNames(f.Cascade, parent.Dictionary); err != nil {
				return fmt.Errorf("template %s: field %q: %w", key, f.Name, err)
			}
		}
		keys[f.FieldKey()] = f
	}
	return nil
}

func (f FieldSpec) hasDropdown() bool {
	return len(f.Options) > 0 || f.Dictionary != "" || f.Parent != ""
}

// Headers returns the header row of generated workbooks.
func (def TemplateDefinition) Headers() []string {
	out := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		out[i] = f.Name
	}
	return out
}

// Bindings binds every field to its position in Headers.
func (def TemplateDefinition) Bindings() []FieldBinding {
	out := make([]FieldBinding, len(def.Fields))
	for i, f := range def.Fields {
		out[i] = FieldBinding{Field: f.FieldKey(), Column: i, Texts: []string{f.Name}}
	}
	return out
}

// RequiredHeaders lists the headers an uploaded file must carry.
func (def TemplateDefinition) RequiredHeaders() []string {
	var out []string
	for _, f := range def.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

func (def TemplateDefinition) dictionary(sheet string) (DictionarySpec, bool) {
	for _, d := range def.Dictionaries {
		if d.Sheet == sheet {
			return d, true
		}
	}
	return DictionarySpec{}, false
}

// Rules builds fresh dropdown rules for one render. Rules remember their
// generated sheet names, so each workbook needs its own set.
func (def TemplateDefinition) Rules(opts ...RuleOption) ([]*Rule, error) {
	rowSpan := def.RowSpan
	if rowSpan <= 0 {
		rowSpan = DefaultRowSpan
	}
	base := append([]RuleOption{WithRowSpan(rowSpan)}, opts...)

	var rules []*Rule
	byKey := make(map[string]*Rule)
	usedDicts := make(map[string]bool)
	for _, f := range def.Fields {
		at := ByField(f.FieldKey())
		var (
			r   *Rule
			err error
		)
		switch {
		case f.Parent != "":
			r, err = CascadeRule(at, byKey[f.Parent], f.Cascade, base...)
		case f.Dictionary != "":
			d, _ := def.dictionary(f.Dictionary)
			usedDicts[d.Sheet] = true
			r, err = ColumnRule(at, d.Options, append(slices.Clone(base), AsDictionary(d.Sheet, d.Title))...)
		case len(f.Options) > 0:
			r, err = ColumnRule(at, f.Options, base...)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		byKey[f.FieldKey()] = r
		rules = append(rules, r)
	}

	for _, d := range def.Dictionaries {
		if usedDicts[d.Sheet] {
			continue
		}
		r, err := DictionaryRule(d.Sheet, d.Title, d.Options)
		if err != nil {
			return nil, fmt.Errorf("dictionary %s: %w", d.Sheet, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Sheet describes the blank template workbook sheet. opts apply to every
// dropdown rule.
func (def TemplateDefinition) Sheet(opts ...RuleOption) (Sheet, error) {
	rules, err := def.Rules(opts...)
	if err != nil {
		return Sheet{}, err
	}
	widths := make(map[int]float64)
	for i, f := range def.Fields {
		if f.Width > 0 {
			widths[i] = f.Width
		}
	}
	return Sheet{
		Name:     def.Info.Sheet,
		Headers:  [][]string{def.Headers()},
		Bindings: def.Bindings(),
		Rules:    rules,
		Widths:   widths,
	}, nil
}

// HeadCheck rejects uploads missing a required column.
func (def TemplateDefinition) HeadCheck() func(context.Context, Head) string {
	return RequiredHeaders(def.RequiredHeaders()...)
}

// Mapper decodes uploaded rows into records keyed by field.
func (def TemplateDefinition) Mapper() RecordMapper[TemplateRecord] {
	return templateMapper{fields: def.Fields}
}

type templateMapper struct {
	fields []FieldSpec
}

func (m templateMapper) Bindings(head [][]string) []FieldBinding {
	idx := BuildHeadIndex(head, nil)
	var out []FieldBinding
	for _, f := range m.fields {
		if col, ok := idx.Head(f.Name); ok {
			out = append(out, FieldBinding{Field: f.FieldKey(), Column: col, Texts: []string{f.Name}})
		}
	}
	return out
}

func (m templateMapper) Map(_ int, cells []string, idx *HeadIndex) (TemplateRecord, error) {
	rec := make(TemplateRecord, len(m.fields))
	for _, f := range m.fields {
		key := f.FieldKey()
		col, ok := idx.Field(key)
		if !ok || col >= len(cells) {
			rec[key] = ""
			continue
		}
		value := cleanCell(cells[col])
		if f.Normalize != nil && value != "" {
			value = f.Normalize(value)
		}
		rec[key] = value
	}
	return rec, nil
}

// cleanCell strips the artifacts spreadsheet exports leave around values:
// surrounding whitespace, a ="..." text formula, wrapping quotes and the
// "netsuite:" prefix of NetSuite internal IDs.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(strings.TrimPrefix(s, "netsuite:"))
}

// Validator checks records against field types and the same option lists
// the generated dropdowns offer.
func (def TemplateDefinition) Validator() (FieldValidator, error) {
	rules, err := def.Rules()
	if err != nil {
		return nil, err
	}
	v := &templateValidator{fields: def.Fields, rules: make(map[string]*Rule)}
	for _, r := range rules {
		if r.Target().Field != "" {
			v.rules[r.Target().Field] = r
		}
	}
	return v, nil
}

type templateValidator struct {
	fields []FieldSpec
	rules  map[string]*Rule
}

func (v *templateValidator) ValidateRecord(record any) map[string][]string {
	rec, ok := record.(TemplateRecord)
	if !ok {
		return nil
	}
	out := make(map[string][]string)
	for _, f := range v.fields {
		key := f.FieldKey()
		value := rec[key]
		if value == "" {
			if f.Required {
				out[key] = append(out[key], "is required")
			}
			continue
		}
		if msg := typeMessage(f.Type, value); msg != "" {
			out[key] = append(out[key], msg)
			continue
		}
		r, ok := v.rules[key]
		if !ok {
			continue
		}
		parentValue := ""
		if f.Parent != "" {
			parentValue = rec[f.Parent]
		}
		if !r.Accepts(value, parentValue) {
			if f.Parent != "" {
				out[key] = append(out[key], fmt.Sprintf("%q is not one of the options for %s %q", value, v.name(f.Parent), parentValue))
			} else {
				out[key] = append(out[key], fmt.Sprintf("%q is not one of the options", value))
			}
		}
	}
	return out
}

func (v *templateValidator) name(key string) string {
	for _, f := range v.fields {
		if f.FieldKey() == key {
			return f.Name
		}
	}
	return key
}

func typeMessage(t FieldType, value string) string {
	switch t {
	case FieldDate:
		if _, err := parseTime(value); err != nil {
			return "must be a date"
		}
	case FieldNumeric:
		if _, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64); err != nil {
			return "must be a number"
		}
	case FieldBool:
		if _, err := parseBool(value); err != nil {
			return "must be yes or no"
		}
	}
	return ""
}

// UniqueCheck returns a Verify hook flagging repeated values of unique
// fields. It remembers values across batches for one read.
func (def TemplateDefinition) UniqueCheck() func(context.Context, []Row[TemplateRecord], ErrorSink) {
	var unique []string
	for _, f := range def.Fields {
		if f.Unique {
			unique = append(unique, f.FieldKey())
		}
	}
	if len(unique) == 0 {
		return nil
	}
	seen := make(map[string]map[string]int, len(unique))
	for _, k := range unique {
		seen[k] = make(map[string]int)
	}
	return func(_ context.Context, batch []Row[TemplateRecord], errs ErrorSink) {
		for _, row := range batch {
			for _, k := range unique {
				value := row.Record[k]
				if value == "" {
					continue
				}
				if first, dup := seen[k][value]; dup {
					errs.AddError(row.Index, ByField(k), fmt.Sprintf("duplicate of row %d", first+1))
					continue
				}
				seen[k][value] = row.Index
			}
		}
	}
}
