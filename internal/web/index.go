package web

import (
	"context"
	"io"
	"net/http"

	"github.com/JonMunkholm/sheetkit/internal/core"
	"github.com/a-h/templ"
)

type indexGroup struct {
	Name      string
	Templates []core.TemplateInfo
}

// indexPage lists the templates with a download link and an upload form
// per template. The form posts to the annotate endpoint so the browser
// receives the highlighted workbook.
func indexPage(groups []indexGroup) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>sheetkit</title>`+
			`<style>body{font-family:sans-serif;margin:2rem}table{border-collapse:collapse}td,th{padding:.3rem .8rem;text-align:left}</style>`+
			`</head><body><h1>Templates</h1>`); err != nil {
			return err
		}
		if len(groups) == 0 {
			if _, err := io.WriteString(w, `<p>No templates registered.</p>`); err != nil {
				return err
			}
		}
		for _, g := range groups {
			if err := groupSection(g).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func groupSection(g indexGroup) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<h2>`+templ.EscapeString(g.Name)+`</h2><table><tr><th>Template</th><th>Columns</th><th></th><th></th></tr>`); err != nil {
			return err
		}
		for _, t := range g.Templates {
			if err := templateRow(t).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</table>`)
		return err
	})
}

func templateRow(t core.TemplateInfo) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		base := "/api/templates/" + templ.EscapeString(t.Key)
		_, err := io.WriteString(w, `<tr><td title="`+templ.EscapeString(t.Description)+`">`+templ.EscapeString(t.Label)+`</td>`+
			`<td>`+templ.EscapeString(columnSummary(t.Columns))+`</td>`+
			`<td><a href="`+base+`/workbook">Download</a></td>`+
			`<td><form method="post" enctype="multipart/form-data" action="`+base+`/annotate">`+
			`<input type="file" name="file" accept=".xlsx,.xlsm,.csv" required> <button type="submit">Check</button></form></td></tr>`)
		return err
	})
}

func columnSummary(cols []string) string {
	const shown = 4
	out := ""
	for i, c := range cols {
		if i == shown {
			return out + ", ..."
		}
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	byGroup := s.service.ListTemplatesByGroup()
	var groups []indexGroup
	for _, name := range s.service.Registry().Groups() {
		groups = append(groups, indexGroup{Name: name, Templates: byGroup[name]})
	}
	templ.Handler(indexPage(groups)).ServeHTTP(w, r)
}
