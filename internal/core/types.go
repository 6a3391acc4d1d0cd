package core

import (
	"fmt"
	"strings"
	"time"
)

// FieldType is the expected kind of value in a template column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
)

var fieldTypeNames = map[FieldType]string{
	FieldText:    "text",
	FieldEnum:    "enum",
	FieldDate:    "date",
	FieldNumeric: "numeric",
	FieldBool:    "bool",
}

func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType reads a type name as written in template files. The empty
// string is text.
func ParseFieldType(s string) (FieldType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FieldText, nil
	}
	for t, name := range fieldTypeNames {
		if name == s {
			return t, nil
		}
	}
	switch s {
	case "number", "decimal", "int", "integer":
		return FieldNumeric, nil
	case "boolean":
		return FieldBool, nil
	}
	return FieldText, fmt.Errorf("unknown field type %q", s)
}

// FieldSpec describes one column of a template.
type FieldSpec struct {
	Name     string    // Header text
	Key      string    // Field identifier; defaults to Name
	Type     FieldType // Expected value kind
	Required bool      // Cell must not be empty
	Unique   bool      // Value must not repeat within one file
	Width    float64   // Column width; 0 sizes to the header

	// Options is the dropdown list. A field with Options is an enum.
	Options []string
	// Dictionary names a DictionarySpec whose options back the dropdown.
	Dictionary string
	// Parent and Cascade make the dropdown depend on another field: the
	// parent's value picks the option list.
	Parent  string
	Cascade *CascadeMap

	// Normalize rewrites an uploaded value before it is checked.
	Normalize func(string) string
}

// FieldKey returns Key, or Name when Key is empty.
func (f FieldSpec) FieldKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

// TemplateInfo contains display information about a template.
type TemplateInfo struct {
	Key         string   `json:"key"`   // Unique identifier: "orders"
	Group       string   `json:"group"` // Menu grouping: "Sales"
	Label       string   `json:"label"` // Display name: "Orders"
	Description string   `json:"description,omitempty"`
	Sheet       string   `json:"sheet"`   // Worksheet name in generated workbooks
	Columns     []string `json:"columns"` // Header texts
}

// DictionarySpec is a visible sheet of shared reference values.
type DictionarySpec struct {
	Sheet   string
	Title   string
	Options []string
}

// TemplateDefinition is a named spreadsheet layout: its columns, their
// dropdowns and the checks applied to uploaded copies.
type TemplateDefinition struct {
	Info         TemplateInfo
	Fields       []FieldSpec
	Dictionaries []DictionarySpec

	// RowSpan is how many data rows the dropdowns cover. Zero defers to
	// the service, then to DefaultRowSpan.
	RowSpan int
	// Table, when set, receives validated rows through the service's sink.
	Table string
	// Source is where the definition came from: "builtin" or a file path.
	Source string
}

// TemplateRecord is one uploaded row keyed by field identifier.
type TemplateRecord map[string]string

// ValidationReport is the result of checking one uploaded file.
type ValidationReport struct {
	RunID     string        `json:"run_id"`
	Template  string        `json:"template"`
	FileName  string        `json:"file_name"`
	Rows      int           `json:"rows"`
	ErrorRows int           `json:"error_rows"`
	HeadError string        `json:"head_error,omitempty"`
	Errors    []CellError   `json:"errors,omitempty"`
	Stored    int64         `json:"stored"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"duration"`
}

// Valid reports whether the file had neither header nor cell errors.
func (r *ValidationReport) Valid() bool {
	return r.HeadError == "" && len(r.Errors) == 0
}
