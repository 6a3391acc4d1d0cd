package core

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FieldBinding ties a record field to the column that carries it.
// Decoders that know the record layout report bindings alongside the
// literal header text.
type FieldBinding struct {
	Field  string
	Column int
	Texts  []string
}

// HeadIndex resolves field identifiers and header text to column positions
// for one sheet. It is built once from the header rows and is read-only
// afterwards.
//
// Explicit field bindings take precedence over literal header text: when two
// columns display the same text, the one bound to a field wins. Among literal
// texts the leftmost column wins.
type HeadIndex struct {
	fields   map[string]int
	texts    map[string]int
	explicit map[string]bool
	headers  map[int]string
	width    int
}

// NewHeadIndex returns an empty index.
func NewHeadIndex() *HeadIndex {
	return &HeadIndex{
		fields:   make(map[string]int),
		texts:    make(map[string]int),
		explicit: make(map[string]bool),
		headers:  make(map[int]string),
	}
}

// BuildHeadIndex observes header rows and bindings in one call.
func BuildHeadIndex(rows [][]string, bindings []FieldBinding) *HeadIndex {
	idx := NewHeadIndex()
	for _, b := range bindings {
		idx.BindField(b.Field, b.Column, b.Texts...)
	}
	for _, row := range rows {
		for col, text := range row {
			idx.ObserveText(col, text)
		}
	}
	return idx
}

// BindField registers field -> column and claims each text for that column.
func (h *HeadIndex) BindField(field string, col int, texts ...string) {
	if col < 0 {
		return
	}
	if field != "" {
		h.fields[field] = col
	}
	for _, t := range texts {
		key := headKey(t)
		if key == "" {
			continue
		}
		h.texts[key] = col
		h.explicit[key] = true
		if _, ok := h.headers[col]; !ok {
			h.headers[col] = strings.TrimSpace(t)
		}
	}
	h.grow(col)
}

// ObserveText registers a literal header cell. Text already claimed by a
// field binding or by a column further left is left alone.
func (h *HeadIndex) ObserveText(col int, text string) {
	if col < 0 {
		return
	}
	h.grow(col)
	key := headKey(text)
	if key == "" {
		return
	}
	if _, ok := h.headers[col]; !ok {
		h.headers[col] = strings.TrimSpace(text)
	}
	if _, taken := h.texts[key]; taken {
		return
	}
	h.texts[key] = col
}

func (h *HeadIndex) grow(col int) {
	if col+1 > h.width {
		h.width = col + 1
	}
}

// Field returns the column bound to a field identifier.
func (h *HeadIndex) Field(name string) (int, bool) {
	col, ok := h.fields[name]
	return col, ok
}

// Head returns the column displaying the given header text.
func (h *HeadIndex) Head(text string) (int, bool) {
	col, ok := h.texts[headKey(text)]
	return col, ok
}

// Text returns the displayed header of a column, or "".
func (h *HeadIndex) Text(col int) string {
	return h.headers[col]
}

// Width is one past the rightmost column seen in the header rows.
func (h *HeadIndex) Width() int {
	return h.width
}

// Resolve maps a locator to a column. Explicit column indexes always
// resolve; field and header lookups report false when the header rows
// don't carry them.
func (h *HeadIndex) Resolve(loc Locator) (int, bool) {
	if col, ok := loc.ColumnIndex(); ok {
		return col, true
	}
	if h == nil {
		return 0, false
	}
	if loc.Field != "" {
		return h.Field(loc.Field)
	}
	if loc.Head != "" {
		return h.Head(loc.Head)
	}
	return 0, false
}

// headKey normalizes header text so that visually identical headers match
// regardless of Unicode composition or surrounding spaces.
func headKey(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
