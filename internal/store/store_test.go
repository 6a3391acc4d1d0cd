package store

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sheetkit/internal/core"
)

type fakeDB struct {
	execs   []string
	table   pgx.Identifier
	columns []string
	rows    [][]any
	copyErr error
}

func (db *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	if db.copyErr != nil {
		return 0, db.copyErr
	}
	db.table = table
	db.columns = columns
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		db.rows = append(db.rows, values)
	}
	return int64(len(db.rows)), src.Err()
}

func ordersDef() core.TemplateDefinition {
	return core.TemplateDefinition{
		Info:   core.TemplateInfo{Key: "orders"},
		Fields: []core.FieldSpec{{Name: "Order ID", Key: "id"}},
		Table:  "sales.orders",
	}
}

// =============================================================================
// CopySink Tests
// =============================================================================

func TestCopySink_CopyRows(t *testing.T) {
	db := &fakeDB{}
	sink := NewCopySink(db, nil)
	runID := uuid.New()

	rows := []core.Row[core.TemplateRecord]{
		{Index: 1, Record: core.TemplateRecord{"id": "A-1"}},
		{Index: 3, Record: core.TemplateRecord{"id": "A-3"}},
	}
	n, err := sink.CopyRows(context.Background(), ordersDef(), runID, rows)
	if err != nil {
		t.Fatalf("CopyRows() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CopyRows() = %d, want 2", n)
	}
	if want := (pgx.Identifier{"sales", "orders"}); !reflect.DeepEqual(db.table, want) {
		t.Errorf("table = %v, want %v", db.table, want)
	}
	if !reflect.DeepEqual(db.columns, []string{"run_id", "row_index", "data"}) {
		t.Errorf("columns = %v", db.columns)
	}

	first := db.rows[0]
	if id := first[0].(pgtype.UUID); !id.Valid || uuid.UUID(id.Bytes) != runID {
		t.Errorf("run_id = %v, want %s", first[0], runID)
	}
	if first[1] != int32(1) {
		t.Errorf("row_index = %v, want 1", first[1])
	}
	if data := first[2].(map[string]string); data["id"] != "A-1" {
		t.Errorf("data = %v", data)
	}

	if len(db.execs) != 2 || !strings.Contains(db.execs[0], `CREATE TABLE IF NOT EXISTS "sales"."orders"`) {
		t.Errorf("execs = %v", db.execs)
	}

	// The table is created once per sink.
	if _, err := sink.CopyRows(context.Background(), ordersDef(), runID, rows[:1]); err != nil {
		t.Fatal(err)
	}
	if len(db.execs) != 2 {
		t.Errorf("execs after second copy = %d, want 2", len(db.execs))
	}
}

func TestCopySink_Empty(t *testing.T) {
	db := &fakeDB{}
	n, err := NewCopySink(db, nil).CopyRows(context.Background(), ordersDef(), uuid.New(), nil)
	if err != nil || n != 0 {
		t.Errorf("CopyRows(nil) = %d, %v, want 0, nil", n, err)
	}
	if len(db.execs) != 0 {
		t.Errorf("execs = %v, want none", db.execs)
	}
}

func TestCopySink_Errors(t *testing.T) {
	rows := []core.Row[core.TemplateRecord]{{Index: 1, Record: core.TemplateRecord{"id": "A"}}}

	def := ordersDef()
	def.Table = ""
	if _, err := NewCopySink(&fakeDB{}, nil).CopyRows(context.Background(), def, uuid.New(), rows); err == nil {
		t.Error("CopyRows() without table error = nil")
	}

	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint", Detail: "Key (run_id, row_index) already exists."}
	_, err := NewCopySink(&fakeDB{copyErr: pgErr}, nil).CopyRows(context.Background(), ordersDef(), uuid.New(), rows)
	if !errors.As(err, new(*pgconn.PgError)) {
		t.Fatalf("CopyRows() error = %v, want wrapped PgError", err)
	}
	if !strings.Contains(err.Error(), "already exists") || !strings.Contains(err.Error(), "23505") {
		t.Errorf("error = %q, want detail and SQL state", err)
	}
	if got := core.MapError(err).Code; got != "DB002" {
		t.Errorf("MapError().Code = %q, want DB002", got)
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		want    pgx.Identifier
		wantErr bool
	}{
		{"orders", pgx.Identifier{"orders"}, false},
		{" sales.orders ", pgx.Identifier{"sales", "orders"}, false},
		{"", nil, true},
		{"a.b.c", nil, true},
		{"sales.", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Identifier(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Identifier(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Identifier(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// TestIntegration_CopySink runs against a real database when
// SHEETKIT_TEST_DATABASE_URL is set.
func TestIntegration_CopySink(t *testing.T) {
	url := os.Getenv("SHEETKIT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SHEETKIT_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := Open(ctx, PoolConfig{URL: url, MaxConns: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer pool.Close()

	table := "sheetkit_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+pgx.Identifier{table}.Sanitize())
	})

	def := ordersDef()
	def.Table = table
	rows := []core.Row[core.TemplateRecord]{
		{Index: 1, Record: core.TemplateRecord{"id": "A-1"}},
		{Index: 2, Record: core.TemplateRecord{"id": "A-2"}},
	}
	n, err := NewCopySink(pool, nil).CopyRows(ctx, def, uuid.New(), rows)
	if err != nil {
		t.Fatalf("CopyRows() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CopyRows() = %d, want 2", n)
	}

	var id string
	err = pool.QueryRow(ctx, "SELECT data->>'id' FROM "+pgx.Identifier{table}.Sanitize()+" WHERE row_index = 2").Scan(&id)
	if err != nil {
		t.Fatalf("QueryRow() error = %v", err)
	}
	if id != "A-2" {
		t.Errorf("data->>'id' = %q, want A-2", id)
	}
}
