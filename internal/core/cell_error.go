package core

import (
	"slices"
	"strings"
)

// TypeMismatchMessage is recorded when a cell can't be converted to the
// record field it feeds.
const TypeMismatchMessage = "data type mismatch"

// CellError is one annotated cell: a resolved row and column plus the
// messages to show there.
type CellError struct {
	Row      int      `json:"row"`
	Column   int      `json:"column"`
	Messages []string `json:"messages"`
}

// NewCellError resolves loc through idx. It reports false when the location
// can't be resolved or an index is negative; such records are dropped by
// callers rather than treated as failures.
func NewCellError(idx *HeadIndex, row int, loc Locator, messages ...string) (CellError, bool) {
	if row < 0 {
		return CellError{}, false
	}
	col, ok := idx.Resolve(loc)
	if !ok || col < 0 {
		return CellError{}, false
	}
	return CellError{Row: row, Column: col, Messages: slices.Clone(messages)}, true
}

// Cell returns the A1 reference of the error.
func (e CellError) Cell() string {
	return cellName(e.Row, e.Column)
}

func (e CellError) String() string {
	return e.Cell() + ": " + strings.Join(e.Messages, "; ")
}

// LocatedError is a CellError whose column is still expressed as a locator.
// Writers resolve it against the header rows they produce.
type LocatedError struct {
	Row      int
	At       Locator
	Messages []string
}

// sortCellErrors orders errors by row, then column, keeping insertion order
// for errors on the same cell.
func sortCellErrors(errs []CellError) {
	slices.SortStableFunc(errs, func(a, b CellError) int {
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		return a.Column - b.Column
	})
}
