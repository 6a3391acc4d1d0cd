package core

import "testing"

func TestHeadIndex_LiteralText(t *testing.T) {
	idx := BuildHeadIndex([][]string{{"Name", " Age ", "", "Name"}}, nil)

	tests := []struct {
		name   string
		loc    Locator
		want   int
		wantOK bool
	}{
		{"first duplicate wins", ByHead("Name"), 0, true},
		{"trimmed", ByHead("Age"), 1, true},
		{"missing", ByHead("City"), 0, false},
		{"explicit column always resolves", AtColumn(9), 9, true},
		{"unbound field", ByField("Name"), 0, false},
		{"zero locator", Locator{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := idx.Resolve(tt.loc)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("Resolve(%v) = %d, %v, want %d, %v", tt.loc, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if idx.Width() != 4 {
		t.Errorf("Width() = %d, want 4", idx.Width())
	}
	if idx.Text(1) != "Age" {
		t.Errorf("Text(1) = %q, want Age", idx.Text(1))
	}
}

func TestHeadIndex_FieldBindingWins(t *testing.T) {
	// Both columns display "Amount"; only column 3 is bound to a field.
	rows := [][]string{{"Id", "Amount", "Currency", "Amount"}}
	bindings := []FieldBinding{
		{Field: "ID", Column: 0, Texts: []string{"Id"}},
		{Field: "Total", Column: 3, Texts: []string{"Amount"}},
	}
	idx := BuildHeadIndex(rows, bindings)

	if col, ok := idx.Head("Amount"); !ok || col != 3 {
		t.Errorf("Head(Amount) = %d, %v, want 3 (field binding)", col, ok)
	}
	if col, ok := idx.Field("Total"); !ok || col != 3 {
		t.Errorf("Field(Total) = %d, %v, want 3", col, ok)
	}
	if col, ok := idx.Head("Currency"); !ok || col != 2 {
		t.Errorf("Head(Currency) = %d, %v, want 2", col, ok)
	}
}

func TestHeadIndex_ResolvePrecedence(t *testing.T) {
	idx := BuildHeadIndex([][]string{{"A", "B", "C"}}, []FieldBinding{{Field: "F", Column: 1}})

	loc := ByField("F")
	loc.Head = "C"
	if col, _ := idx.Resolve(loc); col != 1 {
		t.Errorf("field should win over header, got column %d", col)
	}

	var nilIdx *HeadIndex
	if col, ok := nilIdx.Resolve(AtColumn(2)); !ok || col != 2 {
		t.Errorf("nil index should still resolve explicit columns, got %d, %v", col, ok)
	}
	if _, ok := nilIdx.Resolve(ByHead("A")); ok {
		t.Error("nil index resolved a header")
	}
}

func TestHeadIndex_UnicodeNormalization(t *testing.T) {
	decomposed := "Cafe\u0301"
	precomposed := "Caf\u00e9"

	idx := BuildHeadIndex([][]string{{decomposed}}, nil)
	if col, ok := idx.Head(precomposed); !ok || col != 0 {
		t.Errorf("Head(precomposed) = %d, %v, want 0, true", col, ok)
	}
}

func TestHeadIndex_MultipleHeadRows(t *testing.T) {
	rows := [][]string{
		{"Customer", "Customer", "Order"},
		{"Name", "Email", "Total"},
	}
	idx := BuildHeadIndex(rows, nil)

	if col, _ := idx.Head("Customer"); col != 0 {
		t.Errorf("Head(Customer) = %d, want 0", col)
	}
	if col, _ := idx.Head("Email"); col != 1 {
		t.Errorf("Head(Email) = %d, want 1", col)
	}
	if col, _ := idx.Head("Total"); col != 2 {
		t.Errorf("Head(Total) = %d, want 2", col)
	}
}
