package core

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// AnnotatorConfig controls the look of annotated cells.
type AnnotatorConfig struct {
	// FillColor is an RGB hex color such as "FF0000".
	FillColor string
	// Prefix and Suffix wrap every message line.
	Prefix string
	Suffix string
	Author string
}

// DefaultAnnotatorConfig paints cells solid red and prefixes lines with "- ".
func DefaultAnnotatorConfig() AnnotatorConfig {
	return AnnotatorConfig{FillColor: "FF0000", Prefix: "- ", Author: "sheetkit"}
}

// Annotator paints error cells and attaches the messages as comments.
// Comments already in a sheet are read once, on its first annotation; later
// comments added to f by other code are not seen.
type Annotator struct {
	f      *excelize.File
	cfg    AnnotatorConfig
	styles map[int]int

	// comments holds comment bodies per sheet, keyed by cell name.
	comments map[string]map[string]string
}

// NewAnnotator returns an annotator writing into f.
func NewAnnotator(f *excelize.File, cfg AnnotatorConfig) *Annotator {
	if cfg.FillColor == "" {
		cfg.FillColor = "FF0000"
	}
	cfg.FillColor = strings.TrimPrefix(cfg.FillColor, "#")
	return &Annotator{f: f, cfg: cfg, styles: make(map[int]int), comments: make(map[string]map[string]string)}
}

// CommentText joins messages one per line, each wrapped in prefix and suffix.
func (a *Annotator) CommentText(messages []string) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = a.cfg.Prefix + m + a.cfg.Suffix
	}
	return strings.Join(lines, "\n")
}

// Annotate fills the cell at (row, col) and comments it with messages.
// Negative coordinates are ignored. A comment already on the cell is kept
// and the new lines are appended to it.
func (a *Annotator) Annotate(sheet string, row, col int, messages []string) error {
	if row < 0 || col < 0 {
		return nil
	}
	cell := cellName(row, col)

	if err := a.fill(sheet, cell); err != nil {
		return fmt.Errorf("fill %s: %w", cell, err)
	}
	if len(messages) == 0 {
		return nil
	}

	text := a.CommentText(messages)
	comments, err := a.sheetComments(sheet)
	if err != nil {
		return err
	}
	if existing := comments[cell]; existing != "" {
		if err := a.f.DeleteComment(sheet, cell); err != nil {
			return fmt.Errorf("replace comment on %s: %w", cell, err)
		}
		text = existing + "\n" + text
	}
	if err := a.f.AddComment(sheet, excelize.Comment{Author: a.cfg.Author, Cell: cell, Text: text}); err != nil {
		return fmt.Errorf("comment %s: %w", cell, err)
	}
	comments[cell] = text
	return nil
}

// AnnotateAll annotates every error and returns how many cells were touched.
// Messages for the same cell are merged into one comment.
func (a *Annotator) AnnotateAll(sheet string, errs []CellError) (int, error) {
	type key struct{ row, col int }
	merged := make(map[key][]string)
	var order []key
	for _, e := range errs {
		if e.Row < 0 || e.Column < 0 {
			continue
		}
		k := key{e.Row, e.Column}
		if _, ok := merged[k]; !ok {
			order = append(order, k)
		}
		merged[k] = append(merged[k], e.Messages...)
	}

	for _, k := range order {
		if err := a.Annotate(sheet, k.row, k.col, merged[k]); err != nil {
			return 0, err
		}
	}
	return len(order), nil
}

// fill sets a solid background on the cell, keeping the rest of its style.
func (a *Annotator) fill(sheet, cell string) error {
	base, err := a.f.GetCellStyle(sheet, cell)
	if err != nil {
		return err
	}
	if id, ok := a.styles[base]; ok {
		return a.f.SetCellStyle(sheet, cell, cell, id)
	}

	style := &excelize.Style{}
	if base != 0 {
		if existing, err := a.f.GetStyle(base); err == nil && existing != nil {
			style = existing
		}
	}
	style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{a.cfg.FillColor}}

	id, err := a.f.NewStyle(style)
	if err != nil {
		return err
	}
	a.styles[base] = id
	return a.f.SetCellStyle(sheet, cell, cell, id)
}

// sheetComments returns the comment bodies of sheet, without the author
// label excelize adds, loading them on first use.
func (a *Annotator) sheetComments(sheet string) (map[string]string, error) {
	if m, ok := a.comments[sheet]; ok {
		return m, nil
	}
	list, err := a.f.GetComments(sheet)
	if err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}
	m := make(map[string]string, len(list))
	for _, c := range list {
		body := commentBody(c)
		if c.Author != "" {
			body = strings.TrimPrefix(body, c.Author+":")
		}
		m[strings.ToUpper(c.Cell)] = strings.TrimLeft(body, " \n")
	}
	a.comments[sheet] = m
	return m, nil
}

func commentBody(c excelize.Comment) string {
	var b strings.Builder
	b.WriteString(c.Text)
	for _, run := range c.Paragraph {
		b.WriteString(run.Text)
	}
	return b.String()
}
