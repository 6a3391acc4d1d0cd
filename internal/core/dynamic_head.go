package core

import (
	"fmt"
	"strings"
)

// HeaderOverride renames a header cell and/or appends a suffix to it when a
// workbook is written. The target is an explicit column or a field.
type HeaderOverride struct {
	Row     int
	At      Locator
	NewName string
	Suffix  string
}

// NewHeaderOverride validates an override on header row `row`.
func NewHeaderOverride(row int, at Locator, newName, suffix string) (HeaderOverride, error) {
	if row < 0 {
		return HeaderOverride{}, fmt.Errorf("header row %d: %w", row, ErrNegativeIndex)
	}
	if at.ambiguous() {
		return HeaderOverride{}, fmt.Errorf("header override: %w", ErrTwoLocators)
	}
	col, hasCol := at.ColumnIndex()
	if hasCol && col < 0 {
		return HeaderOverride{}, fmt.Errorf("column %d: %w", col, ErrNegativeIndex)
	}
	if !hasCol && strings.TrimSpace(at.Field) == "" {
		return HeaderOverride{}, fmt.Errorf("header override: %w", ErrNoLocator)
	}
	return HeaderOverride{Row: row, At: Locator{Field: at.Field, col: col, hasCol: hasCol}, NewName: newName, Suffix: suffix}, nil
}

// Rename replaces the text of a first-row header.
func Rename(at Locator, newName string) (HeaderOverride, error) {
	return NewHeaderOverride(0, at, newName, "")
}

// AppendSuffix keeps a first-row header's text and appends suffix.
func AppendSuffix(at Locator, suffix string) (HeaderOverride, error) {
	return NewHeaderOverride(0, at, "", suffix)
}

// FinalText is the displayed header: the new name when it is not blank,
// otherwise the original text, followed by the suffix.
func FinalText(original string, o HeaderOverride) string {
	if strings.TrimSpace(o.NewName) != "" {
		return o.NewName + o.Suffix
	}
	return original + o.Suffix
}

// ApplyOverrides rewrites header rows in place. Field targets are resolved
// through bindings; overrides that resolve nowhere are ignored. Returns the
// number of cells rewritten.
func ApplyOverrides(headers [][]string, bindings []FieldBinding, overrides []HeaderOverride) int {
	fields := make(map[string]int, len(bindings))
	for _, b := range bindings {
		fields[b.Field] = b.Column
	}

	n := 0
	for _, o := range overrides {
		col, ok := o.At.ColumnIndex()
		if !ok {
			col, ok = fields[o.At.Field]
		}
		if !ok || o.Row >= len(headers) {
			continue
		}
		row := headers[o.Row]
		for len(row) <= col {
			row = append(row, "")
		}
		row[col] = FinalText(row[col], o)
		headers[o.Row] = row
		n++
	}
	return n
}
