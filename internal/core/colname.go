package core

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ColumnLetter converts a zero-based column index to spreadsheet letters:
// 0 is "A", 25 is "Z", 26 is "AA". It returns "" for indexes outside the
// sheet's column range.
func ColumnLetter(index int) string {
	name, err := excelize.ColumnNumberToName(index + 1)
	if err != nil {
		return ""
	}
	return name
}

// ColumnIndex is the inverse of ColumnLetter. Letters are case-insensitive.
func ColumnIndex(letters string) (int, error) {
	n, err := excelize.ColumnNameToNumber(strings.TrimSpace(letters))
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", letters, err)
	}
	return n - 1, nil
}

// cellName returns the A1 reference of a zero-based (row, col) pair.
func cellName(row, col int) string {
	return ColumnLetter(col) + fmt.Sprint(row+1)
}

// rangeRef returns the A1 range covering rows [firstRow, lastRow] and
// columns [firstCol, lastCol], all zero-based and inclusive.
func rangeRef(firstRow, lastRow, firstCol, lastCol int) string {
	from := cellName(firstRow, firstCol)
	to := cellName(lastRow, lastCol)
	if from == to {
		return from
	}
	return from + ":" + to
}

// absColumnRange returns an absolute single-column reference such as
// dic_x!$D$3:$D$9 for use in defined names.
func absColumnRange(sheet string, col, firstRow, lastRow int) string {
	letter := ColumnLetter(col)
	return fmt.Sprintf("%s!$%s$%d:$%s$%d", quoteSheet(sheet), letter, firstRow+1, letter, lastRow+1)
}

// quoteSheet wraps sheet names that are not plain identifiers in single quotes.
// Names that start with a digit or read as a cell reference are quoted too.
func quoteSheet(sheet string) string {
	if first, _ := utf8.DecodeRuneInString(sheet); !(first == '_' || unicode.IsLetter(first)) {
		return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	if _, _, err := excelize.CellNameToCoordinates(sheet); err == nil {
		return "'" + sheet + "'"
	}
	for _, r := range sheet {
		if !(r == '_' || r == '.' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
		}
	}
	return sheet
}
