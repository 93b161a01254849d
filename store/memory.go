package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// NewMemoryBundle creates a Bundle backed entirely by in-memory stores
func NewMemoryBundle() *Bundle {
	return &Bundle{
		Farm:    NewMemoryTabular(),
		History: NewMemoryHistory(),
	}
}

// =============================================================================
// MemoryTabular
// =============================================================================

// MemoryTabular keeps farm tables as row slices. It only speaks the builder
// convention; ExecuteSQL reports ErrNotSupported.
type MemoryTabular struct {
	mu     sync.RWMutex
	tables map[string][]Row
	order  []string
	fks    []Relationship
}

func NewMemoryTabular() *MemoryTabular {
	return &MemoryTabular{tables: make(map[string][]Row)}
}

// Insert appends rows to table, creating it if needed.
func (s *MemoryTabular) Insert(table string, rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table]; !ok {
		s.order = append(s.order, table)
	}
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], project(r, nil))
	}
}

// Relate registers a foreign key reported by ForeignKeys.
func (s *MemoryTabular) Relate(rel Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fks = append(s.fks, rel)
}

func (s *MemoryTabular) ExecuteSQL(ctx context.Context, query string) ([]Row, error) {
	return nil, ErrNotSupported
}

func (s *MemoryTabular) Select(ctx context.Context, q SelectQuery) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.tables[q.Table]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", q.Table)
	}
	return apply(rows, q)
}

func (s *MemoryTabular) DescribeSchema(ctx context.Context) (*Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema := &Schema{Tables: make(map[string][]Column, len(s.tables))}
	for _, name := range s.order {
		schema.Tables[name] = inferColumns(s.tables[name])
	}
	schema.Relationships = append(schema.Relationships, s.fks...)
	return schema, nil
}

func (s *MemoryTabular) TableColumns(ctx context.Context, table string) ([]Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", table)
	}
	return inferColumns(rows), nil
}

func (s *MemoryTabular) ForeignKeys(ctx context.Context) ([]Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.fks) == 0 {
		return nil, ErrNotSupported
	}
	return append([]Relationship(nil), s.fks...), nil
}

// inferColumns derives columns from the first row; types are not tracked.
func inferColumns(rows []Row) []Column {
	if len(rows) == 0 {
		return []Column{}
	}
	names := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: "unknown", Nullable: true}
	}
	return cols
}

// =============================================================================
// MemoryHistory
// =============================================================================

type MemoryHistory struct {
	mu      sync.Mutex
	queries map[string]*QueryRecord
	order   []string
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{queries: make(map[string]*QueryRecord)}
}

func (s *MemoryHistory) CreateQuery(ctx context.Context, id, query string, agents []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queries[id]; exists {
		return fmt.Errorf("create query: duplicate id %s", id)
	}
	s.queries[id] = &QueryRecord{
		ID:        id,
		Query:     query,
		Agents:    append([]string(nil), agents...),
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	s.order = append(s.order, id)
	return nil
}

func (s *MemoryHistory) RecordAgentResult(ctx context.Context, queryID string, result AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queries[queryID]
	if !ok {
		return fmt.Errorf("record agent result: %w", ErrNotFound)
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	q.Results = append(q.Results, result)
	return nil
}

func (s *MemoryHistory) CompleteQuery(ctx context.Context, id string, success bool, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queries[id]
	if !ok {
		return fmt.Errorf("complete query: %w", ErrNotFound)
	}
	now := time.Now()
	q.Status = statusFor(success)
	q.Summary = summary
	q.FinishedAt = &now
	return nil
}

// ListQueries returns the most recent queries first, without agent results.
func (s *MemoryHistory) ListQueries(ctx context.Context, limit int) ([]QueryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []QueryRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		q := *s.queries[s.order[i]]
		q.Results = nil
		out = append(out, q)
	}
	return out, nil
}

func (s *MemoryHistory) GetQuery(ctx context.Context, id string) (*QueryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	cp.Agents = append([]string(nil), q.Agents...)
	cp.Results = append([]AgentRecord(nil), q.Results...)
	return &cp, nil
}
