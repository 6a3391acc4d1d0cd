package core

// RuleOption adjusts a RuleConfig before NewRule validates it.
type RuleOption func(*RuleConfig)

// WithRowSpan sets how many data rows a column rule covers.
func WithRowSpan(n int) RuleOption {
	return func(c *RuleConfig) { c.RowSpan = n }
}

// WithColumnSpan sets how many columns a row rule covers.
func WithColumnSpan(n int) RuleOption {
	return func(c *RuleConfig) { c.ColumnSpan = n }
}

// WithErrorBox sets the message shown when a typed value is rejected.
func WithErrorBox(title, message string) RuleOption {
	return func(c *RuleConfig) {
		c.ErrorTitle = title
		c.ErrorMessage = message
	}
}

// WithoutValidityCheck lets users type values outside the list.
func WithoutValidityCheck() RuleOption {
	return func(c *RuleConfig) { c.SkipValidityCheck = true }
}

// WithSheetName fixes the backing sheet name instead of generating one.
func WithSheetName(name string) RuleOption {
	return func(c *RuleConfig) { c.SheetName = name }
}

// AsDictionary keeps the options on a visible sheet, with an optional bold
// title in the first row.
func AsDictionary(sheet, title string) RuleOption {
	return func(c *RuleConfig) {
		c.Dictionary = true
		c.SheetName = sheet
		c.DictionaryTitle = title
	}
}

func build(cfg RuleConfig, opts []RuleOption) (*Rule, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewRule(cfg)
}

// ColumnRule restricts every data row of one column to options.
func ColumnRule(at Locator, options []string, opts ...RuleOption) (*Rule, error) {
	return build(RuleConfig{Kind: Ordinary, Target: at, Options: options}, opts)
}

// RowRule restricts the first ColumnSpan cells of one row to options.
func RowRule(row int, options []string, opts ...RuleOption) (*Rule, error) {
	return build(RuleConfig{Kind: Ordinary, Row: &row, Options: options}, opts)
}

// CellRule restricts a single cell to options.
func CellRule(row int, at Locator, options []string, opts ...RuleOption) (*Rule, error) {
	if at.IsZero() {
		return nil, ErrNoLocator
	}
	return build(RuleConfig{Kind: Ordinary, Row: &row, Target: at, Options: options}, opts)
}

// DictionaryRule only writes options to a visible reference sheet.
func DictionaryRule(sheet, title string, options []string) (*Rule, error) {
	return build(RuleConfig{Kind: Ordinary, Options: options}, []RuleOption{AsDictionary(sheet, title)})
}

// CascadeRule offers, in each row, the children of whatever the parent
// rule's column holds in that row.
func CascadeRule(at Locator, parent *Rule, children *CascadeMap, opts ...RuleOption) (*Rule, error) {
	return build(RuleConfig{Kind: Cascade, Target: at, Parent: parent, Children: children}, opts)
}

// CommonOptionRules builds one column rule per locator, all sharing options.
func CommonOptionRules(targets []Locator, options []string, opts ...RuleOption) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(targets))
	for _, at := range targets {
		r, err := ColumnRule(at, options, opts...)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
