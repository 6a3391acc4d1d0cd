package web

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetkit/internal/core"
	"github.com/JonMunkholm/sheetkit/internal/metrics"
	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipartMemory is how much of a form is held in memory before the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// fieldDetail is the API view of one template column.
type fieldDetail struct {
	Name       string   `json:"name"`
	Key        string   `json:"key"`
	Type       string   `json:"type"`
	Required   bool     `json:"required,omitempty"`
	Unique     bool     `json:"unique,omitempty"`
	Options    []string `json:"options,omitempty"`
	Dictionary string   `json:"dictionary,omitempty"`
	Parent     string   `json:"parent,omitempty"`
	Cascade    []string `json:"cascade,omitempty"`
}

type dictionaryDetail struct {
	Sheet   string   `json:"sheet"`
	Title   string   `json:"title,omitempty"`
	Options []string `json:"options"`
}

type templateDetail struct {
	core.TemplateInfo
	Fields       []fieldDetail      `json:"fields"`
	Dictionaries []dictionaryDetail `json:"dictionaries,omitempty"`
	RowSpan      int                `json:"row_span"`
	Source       string             `json:"source"`
}

func newTemplateDetail(def core.TemplateDefinition) templateDetail {
	d := templateDetail{
		TemplateInfo: def.Info,
		RowSpan:      def.RowSpan,
		Source:       def.Source,
	}
	for _, f := range def.Fields {
		fd := fieldDetail{
			Name:       f.Name,
			Key:        f.FieldKey(),
			Type:       f.Type.String(),
			Required:   f.Required,
			Unique:     f.Unique,
			Options:    f.Options,
			Dictionary: f.Dictionary,
			Parent:     f.Parent,
		}
		if f.Cascade != nil {
			fd.Cascade = f.Cascade.Keys()
		}
		d.Fields = append(d.Fields, fd)
	}
	for _, dict := range def.Dictionaries {
		d.Dictionaries = append(d.Dictionaries, dictionaryDetail{Sheet: dict.Sheet, Title: dict.Title, Options: dict.Options})
	}
	return d
}

type healthResponse struct {
	Status    string                    `json:"status"`
	Templates int                       `json:"templates"`
	Uploads   *core.UploadLimiterStatus `json:"uploads,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Templates: s.service.Registry().Count()}
	if l := s.service.Limiter(); l != nil {
		st := l.Status()
		resp.Uploads = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListTemplates lists every template, or one group with ?group=.
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	if group == "" {
		writeJSON(w, http.StatusOK, s.service.ListTemplates())
		return
	}
	infos := []core.TemplateInfo{}
	for _, def := range s.service.Registry().ByGroup(group) {
		infos = append(infos, def.Info)
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	def, err := s.service.Registry().Lookup(chi.URLParam(r, "key"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTemplateDetail(def))
}

// handleWorkbook downloads the blank workbook of a template.
func (s *Server) handleWorkbook(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var buf bytes.Buffer
	report, err := s.service.BuildTemplate(r.Context(), key, &buf)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachment(key+".xlsx"))
	w.Header().Set("X-Rules-Rendered", strconv.Itoa(report.Render.Rendered))
	w.Header().Set("X-Rules-Skipped", strconv.Itoa(report.Render.Skipped))
	w.Write(buf.Bytes())
}

// handleValidate checks an uploaded copy and returns the report. A file
// with header or cell errors is still a 200; the report says what failed.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	start := time.Now()

	file, name, err := s.formFile(w, r)
	if err != nil {
		s.observe(key, resultFor(err), start)
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	report, err := s.service.Validate(r.Context(), key, name, file)
	if err != nil {
		s.observe(key, resultFor(err), start)
		s.respondError(w, r, err)
		return
	}
	s.observe(key, reportResult(report), start)
	writeJSON(w, http.StatusOK, report)
}

// handleAnnotate returns the uploaded file as a workbook with every error
// cell highlighted and commented.
func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	start := time.Now()

	file, name, err := s.formFile(w, r)
	if err != nil {
		s.observe(key, resultFor(err), start)
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	report, err := s.service.Annotate(r.Context(), key, name, file, &buf)
	if err != nil {
		s.observe(key, resultFor(err), start)
		s.respondError(w, r, err)
		return
	}
	s.observe(key, reportResult(report), start)

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachment(annotatedName(name)))
	w.Header().Set("X-Run-Id", report.RunID)
	w.Header().Set("X-Error-Rows", strconv.Itoa(report.ErrorRows))
	w.Write(buf.Bytes())
}

// formFile returns the multipart "file" part of an upload.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, string, error) {
	if limit := s.cfg.Upload.MaxFileSize; limit > 0 {
		// Leave room for the multipart envelope around the file.
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", fmt.Errorf("%w: %v", core.ErrFileTooLarge, err)
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, "", core.ErrNoFile
		}
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", core.ErrNoFile
	}
	return file, header.Filename, nil
}

func resultFor(err error) string {
	if errors.Is(err, core.ErrTooManyUploads) {
		return metrics.ResultRejected
	}
	return metrics.ResultFailed
}

func reportResult(report *core.ValidationReport) string {
	if report.Valid() {
		return metrics.ResultValid
	}
	return metrics.ResultInvalid
}

func annotatedName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "upload"
	}
	return base + "_errors.xlsx"
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
