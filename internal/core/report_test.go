package core

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

type shipment struct {
	ID      string  `excel:"Shipment,width=14"`
	Carrier string  `excel:"Carrier" options:"UPS|DHL"`
	Weight  float64 `excel:"Weight,index=3"`
	Note    string  `excel:"-"`
}

// =============================================================================
// RecordSheet
// =============================================================================

func TestRecordSheet(t *testing.T) {
	carrier := mustRule(t)(ColumnRule(ByField("Carrier"), []string{"UPS", "DHL", "FedEx"}))
	records := []shipment{
		{ID: "S-1", Carrier: "UPS", Weight: 2.5, Note: "fragile"},
		{ID: "S-2", Carrier: "DHL", Weight: 1},
	}

	sheet, err := RecordSheet("Shipments", records, []*Rule{carrier})
	if err != nil {
		t.Fatalf("RecordSheet() error = %v", err)
	}
	if want := [][]string{{"Shipment", "Carrier", "", "Weight"}}; !reflect.DeepEqual(sheet.Headers, want) {
		t.Errorf("Headers = %v, want %v", sheet.Headers, want)
	}
	if want := []any{"S-1", "UPS", nil, 2.5}; !reflect.DeepEqual(sheet.Rows[0], want) {
		t.Errorf("Rows[0] = %v, want %v", sheet.Rows[0], want)
	}
	if sheet.Widths[0] != 14 || len(sheet.Widths) != 1 {
		t.Errorf("Widths = %v, want only column 0 = 14", sheet.Widths)
	}
	if len(sheet.Rules) != 1 || sheet.Rules[0] != carrier {
		t.Errorf("Rules = %v, want only the passed Carrier rule", sheet.Rules)
	}
}

func TestRecordSheet_TagRules(t *testing.T) {
	sheet, err := RecordSheet[shipment]("Shipments", nil, nil, WithRowSpan(3))
	if err != nil {
		t.Fatalf("RecordSheet() error = %v", err)
	}
	if len(sheet.Rules) != 1 {
		t.Fatalf("got %d rules, want the Carrier tag rule", len(sheet.Rules))
	}
	if got := sheet.Rules[0].Options(); !reflect.DeepEqual(got, []string{"UPS", "DHL"}) {
		t.Errorf("Options() = %v", got)
	}

	rep, err := NewWriter(WriterConfig{Render: RendererConfig{Allocator: &seqAllocator{}}}).Write(&bytes.Buffer{}, sheet)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if rep[0].Render.Rendered != 1 {
		t.Errorf("Rendered = %d, want 1", rep[0].Render.Rendered)
	}
}

// =============================================================================
// Error report
// =============================================================================

func TestErrorRows(t *testing.T) {
	report := &ValidationReport{
		HeadError: "missing required columns: Qty",
		Errors: []CellError{
			{Row: 2, Column: 1, Messages: []string{"not an option", "required"}},
			{Row: 4, Column: 0, Messages: []string{"duplicate"}},
		},
	}
	want := []ErrorRow{
		{Cell: "A1", Row: 1, Message: "missing required columns: Qty", Status: "Open"},
		{Cell: "B3", Row: 3, Message: "not an option", Status: "Open"},
		{Cell: "B3", Row: 3, Message: "required", Status: "Open"},
		{Cell: "A5", Row: 5, Message: "duplicate", Status: "Open"},
	}
	if got := ErrorRows(report); !reflect.DeepEqual(got, want) {
		t.Errorf("ErrorRows() = %+v, want %+v", got, want)
	}
}

func TestService_ErrorReport(t *testing.T) {
	svc := newTestService(t, ServiceConfig{Logger: discardLogger()})
	report := &ValidationReport{
		RunID:  "run-1",
		Errors: []CellError{{Row: 2, Column: 1, Messages: []string{"not an option", "required"}}},
	}

	var buf bytes.Buffer
	rep, err := svc.ErrorReport(context.Background(), report, &buf)
	if err != nil {
		t.Fatalf("ErrorReport() error = %v", err)
	}
	if rep.Render.Rendered != 1 {
		t.Errorf("Rendered = %d, want the Status dropdown only", rep.Render.Rendered)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows("Errors")
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Cell", "Row", "Message", "Status"},
		{"B3", "3", "not an option", "Open"},
		{"B3", "3", "required", "Open"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}

	dvs, err := f.GetDataValidations("Errors")
	if err != nil {
		t.Fatal(err)
	}
	if len(dvs) != 1 || dvs[0].Sqref != "D2:D3" {
		t.Fatalf("validations = %+v, want one on D2:D3", dvs)
	}
	if dvs[0].ErrorTitle == nil || *dvs[0].ErrorTitle != "Status" {
		t.Errorf("error box = %+v, want the programmatic Status rule", dvs[0])
	}
}

func TestService_ReadErrorReport(t *testing.T) {
	svc := newTestService(t, ServiceConfig{Logger: discardLogger()})
	report := &ValidationReport{
		HeadError: "",
		Errors: []CellError{
			{Row: 2, Column: 1, Messages: []string{"not an option", "required"}},
			{Row: 4, Column: 0, Messages: []string{"duplicate"}},
		},
	}
	var buf bytes.Buffer
	if _, err := svc.ErrorReport(context.Background(), report, &buf); err != nil {
		t.Fatalf("ErrorReport() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for cell, status := range map[string]string{"D2": "Fixed", "D3": "Ignored", "D4": "Later"} {
		if err := f.SetCellValue("Errors", cell, status); err != nil {
			t.Fatal(err)
		}
	}
	var triaged bytes.Buffer
	if err := f.Write(&triaged); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := svc.ReadErrorReport(context.Background(), &triaged)
	if err != nil {
		t.Fatalf("ReadErrorReport() error = %v", err)
	}
	if want := map[string]int{"Fixed": 1, "Ignored": 1}; !reflect.DeepEqual(got.Counts, want) {
		t.Errorf("Counts = %v, want %v", got.Counts, want)
	}
	if got.Open() != 0 {
		t.Errorf("Open() = %d, want 0", got.Open())
	}
	if len(got.Rows) != 2 || got.Rows[0].Cell != "B3" || got.Rows[0].Row != 3 {
		t.Errorf("Rows = %+v", got.Rows)
	}
	if len(got.Errors) != 1 || got.Errors[0].Cell() != "D4" {
		t.Errorf("Errors = %v, want one on D4", got.Errors)
	}
}

func TestService_ReadErrorReport_Rejects(t *testing.T) {
	svc := newTestService(t, ServiceConfig{Logger: discardLogger()})

	tests := []struct {
		name     string
		sheet    string
		rows     [][]any
		wantHead string
		wantErr  error
	}{
		{
			name:     "no status column",
			sheet:    "Errors",
			rows:     [][]any{{"Cell", "Row", "Message"}, {"A2", 2, "bad"}},
			wantHead: "missing required columns: Status",
		},
		{
			name:    "not a report",
			sheet:   "Sheet1",
			rows:    [][]any{{"Cell", "Row", "Message", "Status"}},
			wantErr: ErrSheetNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := excelize.NewFile()
			defer f.Close()
			if tt.sheet != "Sheet1" {
				if err := f.SetSheetName("Sheet1", tt.sheet); err != nil {
					t.Fatal(err)
				}
			}
			for i, row := range tt.rows {
				cell, _ := excelize.CoordinatesToCellName(1, i+1)
				if err := f.SetSheetRow(tt.sheet, cell, &row); err != nil {
					t.Fatal(err)
				}
			}
			var buf bytes.Buffer
			if err := f.Write(&buf); err != nil {
				t.Fatal(err)
			}

			got, err := svc.ReadErrorReport(context.Background(), &buf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReadErrorReport() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadErrorReport() error = %v", err)
			}
			if got.HeadError != tt.wantHead {
				t.Errorf("HeadError = %q, want %q", got.HeadError, tt.wantHead)
			}
		})
	}
}
