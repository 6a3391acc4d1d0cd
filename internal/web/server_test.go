package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetkit/internal/config"
	"github.com/JonMunkholm/sheetkit/internal/core"
	"github.com/JonMunkholm/sheetkit/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// Fixtures
// =============================================================================

const ordersCSV = "Order ID,Status,Qty\n" +
	"A-1,Open,3\n" +
	"A-2,Bogus,x\n"

func ordersTemplate() core.TemplateDefinition {
	return core.TemplateDefinition{
		Info: core.TemplateInfo{Key: "orders", Group: "Sales", Label: "Orders"},
		Fields: []core.FieldSpec{
			{Name: "Order ID", Key: "id", Required: true, Unique: true},
			{Name: "Status", Key: "status", Options: []string{"Open", "Closed"}},
			{Name: "Qty", Key: "qty", Type: core.FieldNumeric},
		},
		RowSpan: 10,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{RequestTimeout: 5 * time.Second},
		Upload:  config.UploadConfig{MaxFileSize: 1 << 20},
		Metrics: config.MetricsConfig{Enabled: true, Namespace: "sheetkit"},
	}
}

type testServer struct {
	*Server
	limiter   *core.UploadLimiter
	collector *metrics.Collector
}

func newTestServer(t *testing.T, cfg *config.Config) testServer {
	t.Helper()
	reg := core.NewRegistry()
	if err := reg.Add(ordersTemplate()); err != nil {
		t.Fatal(err)
	}
	collector := metrics.NewCollector("sheetkit", prometheus.NewRegistry())
	limiter := core.NewUploadLimiter(1, 20*time.Millisecond)
	svc := core.NewService(reg, core.ServiceConfig{
		MaxFileSize: cfg.Upload.MaxFileSize,
		Observer:    collector,
		Limiter:     limiter,
	})
	return testServer{
		Server:    NewServer(svc, cfg, collector),
		limiter:   limiter,
		collector: collector,
	}
}

func (s testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

// =============================================================================
// Read-only endpoints
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Templates != 1 {
		t.Errorf("Templates = %d, want 1", resp.Templates)
	}
	if resp.Uploads == nil || resp.Uploads.MaxConcurrent != 1 {
		t.Errorf("Uploads = %+v, want MaxConcurrent 1", resp.Uploads)
	}
}

func TestListTemplates(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		path string
		want int
	}{
		{"/api/templates", 1},
		{"/api/templates?group=Sales", 1},
		{"/api/templates?group=Finance", 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := s.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var infos []core.TemplateInfo
			if err := json.NewDecoder(rec.Body).Decode(&infos); err != nil {
				t.Fatal(err)
			}
			if len(infos) != tt.want {
				t.Errorf("templates = %d, want %d", len(infos), tt.want)
			}
		})
	}
}

func TestGetTemplate(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/templates/orders", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var d templateDetail
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if len(d.Fields) != 3 {
		t.Fatalf("fields = %d, want 3", len(d.Fields))
	}
	if got := strings.Join(d.Fields[1].Options, ","); got != "Open,Closed" {
		t.Errorf("status options = %s, want Open,Closed", got)
	}
	if d.Fields[2].Type != "numeric" {
		t.Errorf("qty type = %s, want numeric", d.Fields[2].Type)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/templates/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "TPL001" {
		t.Errorf("code = %s, want TPL001", resp.Code)
	}
}

func TestWorkbook(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/templates/orders/workbook", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `"orders.xlsx"`) {
		t.Errorf("Content-Disposition = %s", cd)
	}
	if got := rec.Header().Get("X-Rules-Rendered"); got != "1" {
		t.Errorf("X-Rules-Rendered = %s, want 1", got)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue("Orders", "A1"); v != "Order ID" {
		t.Errorf("A1 = %q, want Order ID", v)
	}
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %s, want text/html", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"<h2>Sales</h2>", "Orders", "/api/templates/orders/workbook", "/api/templates/orders/annotate"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

// =============================================================================
// Uploads
// =============================================================================

func TestValidate(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := s.do(uploadRequest(t, "/api/templates/orders/validate", "orders.csv", ordersCSV))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var report core.ValidationReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Rows != 2 {
		t.Errorf("Rows = %d, want 2", report.Rows)
	}
	if report.ErrorRows != 1 {
		t.Errorf("ErrorRows = %d, want 1", report.ErrorRows)
	}
	if len(report.Errors) != 2 {
		t.Errorf("errors = %d, want 2: %+v", len(report.Errors), report.Errors)
	}
	if report.FileName != "orders.csv" {
		t.Errorf("FileName = %s", report.FileName)
	}
}

func TestValidate_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 64
	s := newTestServer(t, cfg)

	big := "Order ID,Status,Qty\n" + strings.Repeat("A-1,Open,3\n", 20)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"unknown template", uploadRequest(t, "/api/templates/nope/validate", "a.csv", ordersCSV[:20]), http.StatusNotFound, "TPL001"},
		{"unsupported format", uploadRequest(t, "/api/templates/orders/validate", "a.pdf", "x"), http.StatusBadRequest, "FILE005"},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/api/templates/orders/validate", strings.NewReader("x")), http.StatusBadRequest, "FILE004"},
		{"too large", uploadRequest(t, "/api/templates/orders/validate", "a.csv", big), http.StatusRequestEntityTooLarge, "FILE001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if resp := decodeError(t, rec); resp.Code != tt.code {
				t.Errorf("code = %s, want %s", resp.Code, tt.code)
			}
		})
	}
}

func TestValidate_Busy(t *testing.T) {
	s := newTestServer(t, testConfig())
	if !s.limiter.TryAcquire() {
		t.Fatal("TryAcquire() = false")
	}
	defer s.limiter.Release()

	rec := s.do(uploadRequest(t, "/api/templates/orders/validate", "orders.csv", ordersCSV))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if resp := decodeError(t, rec); resp.Code != "UPL001" {
		t.Errorf("code = %s, want UPL001", resp.Code)
	}
}

func TestAnnotate(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := s.do(uploadRequest(t, "/api/templates/orders/annotate", "orders.csv", ordersCSV))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `"orders_errors.xlsx"`) {
		t.Errorf("Content-Disposition = %s", cd)
	}
	if got := rec.Header().Get("X-Error-Rows"); got != "1" {
		t.Errorf("X-Error-Rows = %s, want 1", got)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	comments, err := f.GetComments("Orders")
	if err != nil {
		t.Fatal(err)
	}
	cells := make(map[string]bool)
	for _, c := range comments {
		cells[c.Cell] = true
	}
	for _, want := range []string{"B3", "C3"} {
		if !cells[want] {
			t.Errorf("no comment on %s", want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.do(uploadRequest(t, "/api/templates/orders/validate", "orders.csv", ordersCSV))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := fmt.Sprintf(`sheetkit_uploads_total{result=%q,template="orders"} 1`, metrics.ResultInvalid)
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics missing %s", want)
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	s := newTestServer(t, cfg)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}
	s := newTestServer(t, cfg)

	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{"missing", "/api/templates", "", http.StatusUnauthorized},
		{"wrong", "/api/templates", "nope", http.StatusForbidden},
		{"valid", "/api/templates", "k2", http.StatusOK},
		{"health is open", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			if rec := s.do(req); rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 5, WorkbookLimit: 2}
	s := newTestServer(t, cfg)

	get := func(path, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remote
		return s.do(req)
	}

	const client = "198.51.100.4:5000"
	for i := 0; i < 2; i++ {
		if rec := get("/api/templates/orders/workbook", client); rec.Code != http.StatusOK {
			t.Fatalf("workbook #%d status = %d, want 200", i+1, rec.Code)
		}
	}
	rec := get("/api/templates/orders/workbook", client)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third workbook status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	if !strings.Contains(rec.Body.String(), "RATE001") {
		t.Errorf("body = %s, want RATE001", rec.Body)
	}

	if rec := get("/api/templates/orders/workbook", "198.51.100.9:5000"); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}

	// Three requests spent; the general limit allows two more.
	for i := 0; i < 2; i++ {
		if rec := get("/api/templates", client); rec.Code != http.StatusOK {
			t.Fatalf("templates #%d status = %d, want 200", i+1, rec.Code)
		}
	}
	if rec := get("/health", client); rec.Code != http.StatusTooManyRequests {
		t.Errorf("sixth request status = %d, want 429", rec.Code)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", core.ErrTemplateNotFound), http.StatusNotFound},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{core.ErrNoFile, http.StatusBadRequest},
		{core.ErrUnsupportedFormat, http.StatusBadRequest},
		{core.ErrTooManyUploads, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAnnotatedName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"orders.csv", "orders_errors.xlsx"},
		{"dir/orders.xlsx", "orders_errors.xlsx"},
		{".csv", "upload_errors.xlsx"},
	}
	for _, tt := range tests {
		if got := annotatedName(tt.in); got != tt.want {
			t.Errorf("annotatedName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestColumnSummary(t *testing.T) {
	if got := columnSummary([]string{"a", "b"}); got != "a, b" {
		t.Errorf("columnSummary = %q", got)
	}
	if got := columnSummary([]string{"a", "b", "c", "d", "e"}); got != "a, b, c, d, ..." {
		t.Errorf("columnSummary = %q", got)
	}
}
