// Package store copies validated upload rows into PostgreSQL.
//
// Every template that names a table gets one row per accepted record:
//
//	run_id     uuid        upload the row came from
//	row_index  integer     zero-based sheet row
//	data       jsonb       record keyed by field
//	loaded_at  timestamptz insert time
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetkit/internal/core"
)

// DBTX is the subset of pgx used by the sink. *pgxpool.Pool, *pgx.Conn and
// pgx.Tx all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects a pool and pings it.
func Open(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var copyColumns = []string{"run_id", "row_index", "data"}

// CopySink implements core.BatchSink with COPY. Target tables are created
// on first use.
type CopySink struct {
	db  DBTX
	log *slog.Logger

	mu      sync.Mutex
	created map[string]bool
}

var _ core.BatchSink = (*CopySink)(nil)

// NewCopySink returns a sink writing through db.
func NewCopySink(db DBTX, logger *slog.Logger) *CopySink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CopySink{db: db, log: logger, created: make(map[string]bool)}
}

// CopyRows writes rows into def.Table and returns how many were copied.
func (s *CopySink) CopyRows(ctx context.Context, def core.TemplateDefinition, runID uuid.UUID, rows []core.Row[core.TemplateRecord]) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	table, err := Identifier(def.Table)
	if err != nil {
		return 0, fmt.Errorf("template %s: %w", def.Info.Key, err)
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return 0, err
	}

	id := pgtype.UUID{Bytes: runID, Valid: true}
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return []any{id, int32(rows[i].Index), map[string]string(rows[i].Record)}, nil
	})
	n, err := s.db.CopyFrom(ctx, table, copyColumns, src)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, fmt.Errorf("copy into %s: %s (%s): %w", def.Table, pgErr.Detail, pgErr.SQLState(), err)
		}
		return n, fmt.Errorf("copy into %s: %w", def.Table, err)
	}
	s.log.Debug("rows copied", "table", def.Table, "run_id", runID.String(), "rows", n)
	return n, nil
}

// EnsureTable creates the row table for name if it does not exist.
func (s *CopySink) EnsureTable(ctx context.Context, name string) error {
	table, err := Identifier(name)
	if err != nil {
		return err
	}
	return s.ensureTable(ctx, table)
}

func (s *CopySink) ensureTable(ctx context.Context, table pgx.Identifier) error {
	key := table.Sanitize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[key] {
		return nil
	}
	for _, stmt := range createTableSQL(table) {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", key, err)
		}
	}
	s.created[key] = true
	return nil
}

func createTableSQL(table pgx.Identifier) []string {
	name := table.Sanitize()
	index := pgx.Identifier{table[len(table)-1] + "_loaded_idx"}.Sanitize()
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id    uuid        NOT NULL,
	row_index integer     NOT NULL,
	data      jsonb       NOT NULL,
	loaded_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, row_index)
)`, name),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (loaded_at)", index, name),
	}
}

// Identifier splits a possibly schema-qualified table name.
func Identifier(name string) (pgx.Identifier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("no table name")
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("table name %q has too many parts", name)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("table name %q has an empty part", name)
		}
	}
	return pgx.Identifier(parts), nil
}
