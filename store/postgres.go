package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresHistorySchema = `
CREATE TABLE IF NOT EXISTS farm_queries (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    agents JSONB NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'running',
    summary TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    finished_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS farm_query_results (
    id BIGSERIAL PRIMARY KEY,
    query_id TEXT NOT NULL REFERENCES farm_queries(id),
    agent TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    payload_json TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_farm_query_results_query ON farm_query_results (query_id);
`

// NewPostgresBundle connects to an existing farm database. Farm tables are
// never created here; only the history tables are ensured.
func NewPostgresBundle(ctx context.Context, dsn string) (*Bundle, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresHistorySchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}

	return &Bundle{
		Farm:    &PostgresTabular{pool: pool},
		History: &PostgresHistory{pool: pool},
		closer: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

// =============================================================================
// PostgresTabular
// =============================================================================

type PostgresTabular struct {
	pool *pgxpool.Pool
}

// ExecuteSQL runs query inside a read-only transaction.
func (s *PostgresTabular) ExecuteSQL(ctx context.Context, query string) ([]Row, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func (s *PostgresTabular) Select(ctx context.Context, q SelectQuery) ([]Row, error) {
	query, args, err := postgresDialect.build(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// DescribeSchema calls the get_schema_info() database function, which
// returns {"tables": {...}, "relationships": [...]} as JSON.
func (s *PostgresTabular) DescribeSchema(ctx context.Context) (*Schema, error) {
	var raw []byte
	if err := s.pool.QueryRow(ctx, `SELECT get_schema_info()::text`).Scan(&raw); err != nil {
		return nil, err
	}
	var schema Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode schema info: %w", err)
	}
	if len(schema.Tables) == 0 {
		return nil, errors.New("schema info returned no tables")
	}
	return &schema, nil
}

func (s *PostgresTabular) TableColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.pool.Query(ctx, `
SELECT column_name, data_type, is_nullable = 'YES'
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Column, error) {
		var c Column
		err := row.Scan(&c.Name, &c.Type, &c.Nullable)
		return c, err
	})
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("relation %q does not exist", table)
	}
	return cols, nil
}

func (s *PostgresTabular) ForeignKeys(ctx context.Context) ([]Relationship, error) {
	rows, err := s.pool.Query(ctx, `
SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'
ORDER BY kcu.table_name, kcu.column_name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Relationship, error) {
		var r Relationship
		err := row.Scan(&r.FromTable, &r.FromColumn, &r.ToTable, &r.ToColumn)
		return r, err
	})
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		row := make(Row, len(m))
		for k, v := range m {
			row[k] = normalizePG(v)
		}
		out[i] = row
	}
	return out, nil
}

// normalizePG converts pgx wire types into plain JSON-like values.
func normalizePG(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case int32:
		return int64(t)
	}
	return normalizeValue(v)
}

// =============================================================================
// PostgresHistory
// =============================================================================

type PostgresHistory struct {
	pool *pgxpool.Pool
}

func (s *PostgresHistory) CreateQuery(ctx context.Context, id, query string, agents []string) error {
	agentsJSON, _ := json.Marshal(agents)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO farm_queries (id, query, agents, started_at) VALUES ($1, $2, $3, $4)`,
		id, query, string(agentsJSON), time.Now())
	if err != nil {
		return fmt.Errorf("create query: %w", err)
	}
	return nil
}

func (s *PostgresHistory) RecordAgentResult(ctx context.Context, queryID string, result AgentRecord) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO farm_query_results (query_id, agent, success, error, payload_json, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		queryID, result.Agent, result.Success, result.Error, result.PayloadJSON, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("record agent result: %w", err)
	}
	return nil
}

func (s *PostgresHistory) CompleteQuery(ctx context.Context, id string, success bool, summary string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE farm_queries SET status = $2, summary = $3, finished_at = $4 WHERE id = $1`,
		id, statusFor(success), summary, time.Now())
	if err != nil {
		return fmt.Errorf("complete query: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete query: %w", ErrNotFound)
	}
	return nil
}

func (s *PostgresHistory) ListQueries(ctx context.Context, limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, query, agents::text, status, summary, started_at, finished_at
FROM farm_queries ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPGQuery)
}

func (s *PostgresHistory) GetQuery(ctx context.Context, id string) (*QueryRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, query, agents::text, status, summary, started_at, finished_at
FROM farm_queries WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	q, err := pgx.CollectOneRow(rows, scanPGQuery)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
SELECT agent, success, error, payload_json, created_at
FROM farm_query_results WHERE query_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	q.Results, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (AgentRecord, error) {
		var r AgentRecord
		err := row.Scan(&r.Agent, &r.Success, &r.Error, &r.PayloadJSON, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func scanPGQuery(row pgx.CollectableRow) (QueryRecord, error) {
	var q QueryRecord
	var agentsJSON string
	if err := row.Scan(&q.ID, &q.Query, &agentsJSON, &q.Status, &q.Summary, &q.StartedAt, &q.FinishedAt); err != nil {
		return q, err
	}
	json.Unmarshal([]byte(agentsJSON), &q.Agents)
	return q, nil
}
