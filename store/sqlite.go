package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const farmSchema = `
CREATE TABLE IF NOT EXISTS rabbits (
    id TEXT PRIMARY KEY,
    rabbit_id TEXT,
    name TEXT NOT NULL,
    breed TEXT,
    gender TEXT,
    status TEXT DEFAULT 'Active',
    weight REAL,
    date_of_birth DATE,
    notes TEXT,
    created_by TEXT,
    is_deleted BOOLEAN DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS breeding_plans (
    id TEXT PRIMARY KEY,
    plan_id TEXT NOT NULL,
    doe_id TEXT NOT NULL REFERENCES rabbits(id),
    buck_id TEXT NOT NULL REFERENCES rabbits(id),
    planned_date DATE NOT NULL,
    expected_kindle_date DATE NOT NULL,
    actual_mating_date DATE,
    actual_kindle_date DATE,
    status TEXT NOT NULL DEFAULT 'Planned',
    kits_born INTEGER,
    kits_survived INTEGER,
    notes TEXT,
    created_by TEXT,
    is_deleted BOOLEAN DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    type TEXT NOT NULL,
    category TEXT,
    amount REAL NOT NULL,
    date DATE NOT NULL,
    description TEXT,
    is_deleted BOOLEAN DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transfers (
    id TEXT PRIMARY KEY,
    rabbit_id TEXT REFERENCES rabbits(id),
    from_location TEXT,
    to_location TEXT,
    date DATE,
    notes TEXT
);

CREATE TABLE IF NOT EXISTS feed_records (
    id TEXT PRIMARY KEY,
    rabbit_id TEXT REFERENCES rabbits(id),
    feed_type TEXT,
    amount REAL,
    date DATE
);

CREATE TABLE IF NOT EXISTS feeding_schedules (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    name TEXT,
    scheduled_date DATE,
    notes TEXT
);

CREATE TABLE IF NOT EXISTS user_preferences (
    user_id TEXT PRIMARY KEY,
    farm_location TEXT,
    temperature_unit TEXT,
    weather_api_key TEXT
);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    title TEXT,
    original_filename TEXT,
    category TEXT,
    description TEXT,
    extracted_text TEXT,
    processing_status TEXT DEFAULT 'pending',
    is_archived BOOLEAN DEFAULT 0,
    uploaded_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS vision_events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    confidence REAL NOT NULL,
    event_time TIMESTAMP NOT NULL,
    source_camera_id TEXT,
    cage_id TEXT,
    rabbit_id TEXT,
    status TEXT DEFAULT 'open',
    metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_vision_events_time ON vision_events(event_time);
`

const historySchema = `
CREATE TABLE IF NOT EXISTS farm_queries (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    agents_json TEXT,
    status TEXT DEFAULT 'running',
    summary TEXT,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS farm_query_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query_id TEXT NOT NULL REFERENCES farm_queries(id),
    agent TEXT NOT NULL,
    success INTEGER NOT NULL,
    error TEXT,
    payload_json TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_farm_query_results_query ON farm_query_results(query_id);
`

// NewSQLiteBundle creates a Bundle backed by SQLite at the given path
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(farmSchema + historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Farm:    &SQLiteTabular{db: db},
		History: &SQLiteHistory{db: db},
		closer:  db.Close,
	}, nil
}

// =============================================================================
// SQLiteTabular
// =============================================================================

type SQLiteTabular struct {
	db *sql.DB
}

// ExecuteSQL runs query on a connection switched to query_only, so writes
// fail even when a statement slips past the caller's checks.
func (s *SQLiteTabular) ExecuteSQL(ctx context.Context, query string) ([]Row, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("enable query_only: %w", err)
	}
	defer conn.ExecContext(context.Background(), "PRAGMA query_only = OFF")

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (s *SQLiteTabular) Select(ctx context.Context, q SelectQuery) ([]Row, error) {
	query, args, err := sqliteDialect.build(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// DescribeSchema has no single-call equivalent in SQLite; callers inspect
// tables one by one.
func (s *SQLiteTabular) DescribeSchema(ctx context.Context) (*Schema, error) {
	return nil, ErrNotSupported
}

func (s *SQLiteTabular) TableColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, "notnull" FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var notNull int
		if err := rows.Scan(&c.Name, &c.Type, &notNull); err != nil {
			return nil, err
		}
		c.Type = strings.ToLower(c.Type)
		c.Nullable = notNull == 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("relation %q does not exist", table)
	}
	return cols, nil
}

func (s *SQLiteTabular) ForeignKeys(ctx context.Context) ([]Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.name, p."from", p."table", p."to"
		FROM sqlite_master m JOIN pragma_foreign_key_list(m.name) p
		WHERE m.type = 'table'
		ORDER BY m.name, p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.FromTable, &r.FromColumn, &r.ToTable, &r.ToColumn); err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// Seed inserts the demo farm into tables that are still empty.
func (s *SQLiteTabular) Seed(ctx context.Context, now time.Time) error {
	farm := DemoFarm(now)
	for _, table := range demoTables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return fmt.Errorf("seed %s: %w", table, err)
		}
		if n > 0 {
			continue
		}
		for _, row := range farm[table] {
			if err := insertRow(ctx, s.db, table, row); err != nil {
				return fmt.Errorf("seed %s: %w", table, err)
			}
		}
	}
	return nil
}

func insertRow(ctx context.Context, db *sql.DB, table string, row Row) error {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		marks[i] = "?"
		args[i] = row[c]
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", ")), args...)
	return err
}

// =============================================================================
// SQLiteHistory
// =============================================================================

type SQLiteHistory struct {
	db *sql.DB
}

func (s *SQLiteHistory) CreateQuery(ctx context.Context, id, query string, agents []string) error {
	agentsJSON, _ := json.Marshal(agents)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO farm_queries (id, query, agents_json, started_at) VALUES (?, ?, ?, ?)`,
		id, query, string(agentsJSON), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("create query: %w", err)
	}
	return nil
}

func (s *SQLiteHistory) RecordAgentResult(ctx context.Context, queryID string, result AgentRecord) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO farm_query_results (query_id, agent, success, error, payload_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		queryID, result.Agent, result.Success, nullString(result.Error), nullString(result.PayloadJSON), result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record agent result: %w", err)
	}
	return nil
}

func (s *SQLiteHistory) CompleteQuery(ctx context.Context, id string, success bool, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE farm_queries SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		statusFor(success), summary, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("complete query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete query: %w", ErrNotFound)
	}
	return nil
}

func (s *SQLiteHistory) ListQueries(ctx context.Context, limit int) ([]QueryRecord, error) {
	query := `SELECT id, query, agents_json, status, summary, started_at, finished_at FROM farm_queries ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryRecord
	for rows.Next() {
		q, err := scanQueryRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (s *SQLiteHistory) GetQuery(ctx context.Context, id string) (*QueryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, agents_json, status, summary, started_at, finished_at FROM farm_queries WHERE id = ?`, id)
	q, err := scanQueryRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT agent, success, error, payload_json, created_at FROM farm_query_results WHERE query_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r AgentRecord
		var errMsg, payload sql.NullString
		if err := rows.Scan(&r.Agent, &r.Success, &errMsg, &payload, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Error = errMsg.String
		r.PayloadJSON = payload.String
		q.Results = append(q.Results, r)
	}
	return q, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueryRecord(sc rowScanner) (*QueryRecord, error) {
	var q QueryRecord
	var agentsJSON, summary sql.NullString
	var finishedAt sql.NullTime
	if err := sc.Scan(&q.ID, &q.Query, &agentsJSON, &q.Status, &summary, &q.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if agentsJSON.Valid {
		json.Unmarshal([]byte(agentsJSON.String), &q.Agents)
	}
	q.Summary = summary.String
	if finishedAt.Valid {
		q.FinishedAt = &finishedAt.Time
	}
	return &q, nil
}

// =============================================================================
// Helpers
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// scanRows reads every row into a map, normalizing driver values.
func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeValue maps driver types onto the JSON-like values agents
// consume. Midnight UTC times are treated as calendar dates.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	}
	return v
}
