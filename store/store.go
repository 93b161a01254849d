package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotSupported is returned when a backend lacks an access path
	// (raw SQL on the memory backend, RPC introspection on SQLite).
	ErrNotSupported = errors.New("not supported by this backend")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Row is one record keyed by column name.
type Row map[string]any

// Bundle holds the stores the orchestrator runs against.
type Bundle struct {
	Farm    Tabular
	History HistoryStore
	closer  func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// Tabular is the farm data store. Two access conventions are offered: raw
// SQL through ExecuteSQL, and the structured Select builder.
type Tabular interface {
	ExecuteSQL(ctx context.Context, query string) ([]Row, error)
	Select(ctx context.Context, q SelectQuery) ([]Row, error)

	// DescribeSchema is the single-call introspection path.
	DescribeSchema(ctx context.Context) (*Schema, error)
	// TableColumns lists one table's columns.
	TableColumns(ctx context.Context, table string) ([]Column, error)
	ForeignKeys(ctx context.Context) ([]Relationship, error)
}

// Column describes one table column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Relationship is a foreign key edge.
type Relationship struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// Schema is the discovered shape of the farm database.
type Schema struct {
	Tables        map[string][]Column `json:"tables"`
	Relationships []Relationship      `json:"relationships"`
}

// HistoryStore records orchestrated queries and their per-agent outcomes.
type HistoryStore interface {
	CreateQuery(ctx context.Context, id, query string, agents []string) error
	RecordAgentResult(ctx context.Context, queryID string, result AgentRecord) error
	CompleteQuery(ctx context.Context, id string, success bool, summary string) error
	ListQueries(ctx context.Context, limit int) ([]QueryRecord, error)
	GetQuery(ctx context.Context, id string) (*QueryRecord, error)
}

// QueryRecord is one orchestrated query.
type QueryRecord struct {
	ID         string        `json:"id"`
	Query      string        `json:"query"`
	Agents     []string      `json:"agents"`
	Status     string        `json:"status"`
	Summary    string        `json:"summary,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Results    []AgentRecord `json:"results,omitempty"`
}

// AgentRecord is one agent's outcome within a query.
type AgentRecord struct {
	Agent       string    `json:"agent"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	PayloadJSON string    `json:"payloadJson,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

func statusFor(success bool) string {
	if success {
		return StatusCompleted
	}
	return StatusFailed
}
