package schema

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/JonMunkholm/sheetkit/internal/core"
)

const ordersYAML = `
key: orders
group: Sales
label: Orders
row_span: 50
table: sales_orders
dictionaries:
  - sheet: Channels
    title: Sales channel
    options: [Web, Retail]
fields:
  - name: Order ID
    key: order_id
    required: true
    unique: true
    width: 18
  - name: Channel
    key: channel
    dictionary: Channels
  - name: Country
    key: country
    options: [US, CA]
  - name: Region
    key: region
    parent: country
    cascade:
      US: [East, West]
      CA: [Ontario, Quebec]
  - name: Amount
    key: amount
    type: number
`

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse(t *testing.T) {
	defs, err := Parse(strings.NewReader(ordersYAML), "orders.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("len(defs) = %d, want 1", len(defs))
	}
	def := defs[0]

	if def.Info.Key != "orders" || def.Info.Group != "Sales" {
		t.Errorf("Info = %+v", def.Info)
	}
	if def.RowSpan != 50 || def.Table != "sales_orders" || def.Source != "orders.yaml" {
		t.Errorf("RowSpan, Table, Source = %d, %q, %q", def.RowSpan, def.Table, def.Source)
	}
	if len(def.Fields) != 5 {
		t.Fatalf("len(Fields) = %d, want 5", len(def.Fields))
	}

	id := def.Fields[0]
	if !id.Required || !id.Unique || id.Width != 18 || id.Type != core.FieldText {
		t.Errorf("Order ID = %+v", id)
	}
	if got := def.Fields[2].Type; got != core.FieldEnum {
		t.Errorf("Country type = %v, want enum", got)
	}
	if got := def.Fields[4].Type; got != core.FieldNumeric {
		t.Errorf("Amount type = %v, want numeric", got)
	}

	region := def.Fields[3]
	if region.Type != core.FieldEnum || region.Parent != "country" {
		t.Errorf("Region = %+v", region)
	}
	if got, want := region.Cascade.Keys(), []string{"US", "CA"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Cascade.Keys() = %v, want %v", got, want)
	}
	if got, want := region.Cascade.Children("CA"), []string{"Ontario", "Quebec"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Children(CA) = %v, want %v", got, want)
	}

	if len(def.Dictionaries) != 1 || def.Dictionaries[0].Title != "Sales channel" {
		t.Errorf("Dictionaries = %+v", def.Dictionaries)
	}
}

func TestParse_MultipleDocuments(t *testing.T) {
	src := `
key: a
fields:
  - name: One
---
key: b
fields:
  - name: Two
`
	defs, err := Parse(strings.NewReader(src), "multi.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(defs) != 2 || defs[0].Info.Key != "a" || defs[1].Info.Key != "b" {
		t.Errorf("defs = %+v", defs)
	}
}

func TestParse_Empty(t *testing.T) {
	defs, err := Parse(strings.NewReader(""), "empty.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(defs) != 0 {
		t.Errorf("len(defs) = %d, want 0", len(defs))
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"unknown key", "key: a\ncolor: red\nfields:\n  - name: One\n", "color"},
		{"bad type", "key: a\nfields:\n  - name: One\n    type: blob\n", "unknown field type"},
		{"no fields", "key: a\n", "no fields"},
		{"no key", "fields:\n  - name: One\n", "no key"},
		{"cascade list", "key: a\nfields:\n  - name: P\n    key: p\n    options: [x]\n  - name: C\n    parent: p\n    cascade: [x]\n", "cascade must be a mapping"},
		{"parent after child", "key: a\nfields:\n  - name: C\n    parent: p\n    cascade:\n      x: [1]\n  - name: P\n    key: p\n    options: [x]\n", "must be declared before"},
		{"unknown dictionary", "key: a\nfields:\n  - name: One\n    dictionary: Nope\n", "unknown dictionary"},
		{"invalid yaml", "key: [a\n", "template file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src), "bad.yaml")
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), "template file bad.yaml") {
				t.Errorf("error = %q, want file name", err)
			}
		})
	}
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want ErrNotExist", err)
	}
}

func TestParse_UserMessage(t *testing.T) {
	_, err := Parse(strings.NewReader("key: a\n"), "bad.yaml")
	if got := core.MapError(err).Code; got != "TPL002" {
		t.Errorf("MapError().Code = %q, want TPL002", got)
	}
}
