package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"rabbitry/agent/internal/prompts"
	"rabbitry/config"
	"rabbitry/llm"
	"rabbitry/store"
)

const sqlDescription = "Database queries about rabbits, breeding plans, transactions, feeding schedules, transfers"

// SQLOptions configures a SQLAgent.
type SQLOptions struct {
	LLM  llm.Completer
	Farm store.Tabular
	// Execution is config.ExecutionRPC or config.ExecutionBuilder.
	Execution string
	// OwnerID scopes builder queries; empty disables owner filters.
	OwnerID string
	// Dialect names the SQL flavour in the prompt (default PostgreSQL).
	Dialect string
	Logger  hclog.Logger
}

// SQLAgent answers questions from the farm database.
type SQLAgent struct {
	llm       llm.Completer
	farm      store.Tabular
	execution string
	ownerID   string
	dialect   string
	logger    hclog.Logger

	mu     sync.Mutex
	schema *store.Schema
}

func NewSQLAgent(opts SQLOptions) *SQLAgent {
	if opts.Execution == "" {
		opts.Execution = config.ExecutionRPC
	}
	if opts.Dialect == "" {
		opts.Dialect = "PostgreSQL"
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &SQLAgent{
		llm:       opts.LLM,
		farm:      opts.Farm,
		execution: opts.Execution,
		ownerID:   opts.OwnerID,
		dialect:   opts.Dialect,
		logger:    opts.Logger,
	}
}

func (a *SQLAgent) Name() string        { return SQL }
func (a *SQLAgent) Description() string { return sqlDescription }

// Initialize loads the schema. Introspection failures degrade to built-in
// knowledge and never fail initialization.
func (a *SQLAgent) Initialize(ctx context.Context) error {
	a.loadSchema(ctx)
	return nil
}

// Schema returns the loaded schema, loading it on first use.
func (a *SQLAgent) Schema(ctx context.Context) *store.Schema {
	return a.loadSchema(ctx)
}

func (a *SQLAgent) ProcessQuery(ctx context.Context, query string, opts Options) (*Result, error) {
	a.loadSchema(ctx)

	statement := a.ConvertToSQL(ctx, query)
	res := a.ExecuteQuery(ctx, statement)
	res.OriginalQuery = query
	return res, nil
}

// ConvertToSQL turns a question into one SELECT statement, using the model
// when available and keyword patterns otherwise.
func (a *SQLAgent) ConvertToSQL(ctx context.Context, question string) string {
	statement := llm.Extract(ctx, a.llm, llm.Prompt{
		System:      a.systemPrompt(ctx),
		User:        question,
		Temperature: 0.1,
		MaxTokens:   500,
	}, func(text string) (string, error) {
		s := llm.StripCodeFences(text)
		if s == "" {
			return "", errEmptyCompletion
		}
		return s, nil
	}, func() string {
		a.logger.Debug("model conversion unavailable, using patterns")
		return ConvertWithPatterns(question)
	})

	a.logger.Debug("generated SQL", "sql", statement)
	return statement
}

// ExecuteQuery runs statement after the read-only gate. It never returns
// nil.
func (a *SQLAgent) ExecuteQuery(ctx context.Context, statement string) *Result {
	res := &Result{Agent: SQL, Query: statement}

	if !IsSelect(statement) {
		a.logger.Warn("rejected non-SELECT statement", "sql", statement)
		res.Error = ErrNonSelect.Error()
		return res
	}
	if a.farm == nil {
		res.Error = "no data store configured"
		return res
	}

	var (
		rows []store.Row
		err  error
	)
	if a.execution == config.ExecutionRPC {
		rows, err = a.farm.ExecuteSQL(ctx, statement)
		if errors.Is(err, store.ErrNotSupported) {
			a.logger.Debug("raw SQL not supported by store, using query builder")
			rows, err = a.executeWithBuilder(ctx, statement)
		}
	} else {
		rows, err = a.executeWithBuilder(ctx, statement)
	}
	if err != nil {
		a.logger.Debug("query failed", "sql", statement, "error", err)
		res.Error = err.Error()
		return res
	}

	if rows == nil {
		rows = []store.Row{}
	}
	res.Success = true
	res.Data = rows
	res.RowCount = len(rows)
	return res
}

// IsSelect reports whether statement is a single statement starting with
// "select", ignoring case and surrounding whitespace. One trailing
// semicolon is allowed.
func IsSelect(statement string) bool {
	s := strings.TrimSpace(statement)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if strings.Contains(s, ";") {
		return false
	}
	return strings.HasPrefix(strings.ToLower(s), "select")
}

var (
	createdByTables = []string{"rabbits", "breeding_plans", "kit_records", "kit_health_records"}
	userIDTables    = []string{"transactions", "health_records", "weight_records", "schedule_events"}
	countRe         = regexp.MustCompile(`(?i)^\s*select\s+count\s*\(\s*\*\s*\)`)
)

// executeWithBuilder reads the whole table named in statement through the
// structured convention, scoped to the owner.
func (a *SQLAgent) executeWithBuilder(ctx context.Context, statement string) ([]store.Row, error) {
	table := ExtractTableName(statement)
	if table == "" {
		return nil, errors.New("Could not determine table name from query")
	}

	q := store.SelectQuery{Table: table}
	if a.ownerID != "" {
		switch {
		case contains(createdByTables, table):
			q = q.Eq("created_by", a.ownerID).Eq("is_deleted", false)
		case contains(userIDTables, table):
			q = q.Eq("user_id", a.ownerID).Eq("is_deleted", false)
		}
	}

	rows, err := a.farm.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	if countRe.MatchString(statement) {
		return []store.Row{{"count": len(rows)}}, nil
	}
	return rows, nil
}

var (
	fromRe      = regexp.MustCompile(`(?i)FROM\s+(\w+)`)
	knownTables = []string{"rabbits", "breeding_plans", "transactions", "health_records", "weight_records", "schedule_events", "kit_records", "kit_health_records"}
)

// ExtractTableName returns the first table after FROM, or a known table
// mentioned anywhere in statement.
func ExtractTableName(statement string) string {
	if m := fromRe.FindStringSubmatch(statement); m != nil {
		return strings.ToLower(m[1])
	}
	upper := strings.ToUpper(statement)
	for _, t := range knownTables {
		if strings.Contains(upper, strings.ToUpper(t)) {
			return t
		}
	}
	return ""
}

type sqlPattern struct {
	re  *regexp.Regexp
	sql string
}

var sqlPatterns = []sqlPattern{
	{regexp.MustCompile(`(?i)(show|list|get|display|find).*?(all\s+)?(rabbit|bunny|bunnies)`), "SELECT * FROM rabbits"},
	{regexp.MustCompile(`(?i)(show|list|get|display|find).*?(all\s+)?(breeding|breed|mating)`), "SELECT * FROM breeding_plans"},
	{regexp.MustCompile(`(?i)(show|list|get|display|find).*?(all\s+)?(transaction|expense|cost|money)`), "SELECT * FROM transactions"},
	{regexp.MustCompile(`(?i)(show|list|get|display|find).*?(all\s+)?(health|medical|vet)`), "SELECT * FROM health_records"},
	{regexp.MustCompile(`(?i)(show|list|get|display|find).*?(all\s+)?(weight|weigh)`), "SELECT * FROM weight_records"},
	{regexp.MustCompile(`(?i)(show|list|get|display|find).*?(all\s+)?(schedule|event|task)`), "SELECT * FROM schedule_events"},
	{regexp.MustCompile(`(?i)(show|list|get|display|find).*?(all\s+)?(kit|baby|young)`), "SELECT * FROM kit_records"},
	{regexp.MustCompile(`(?i)(count|how many).*?(rabbit|bunny|bunnies)`), "SELECT COUNT(*) FROM rabbits"},
	{regexp.MustCompile(`(?i)(count|how many).*?(breeding|breed|mating)`), "SELECT COUNT(*) FROM breeding_plans"},
	{regexp.MustCompile(`(?i)(count|how many).*?(transaction|expense)`), "SELECT COUNT(*) FROM transactions"},
}

var patternTables = []string{"rabbits", "breeding_plans", "transactions", "health_records", "weight_records", "schedule_events", "kit_records"}

// ConvertWithPatterns maps common phrasings to fixed statements.
func ConvertWithPatterns(question string) string {
	q := strings.ToLower(question)
	for _, p := range sqlPatterns {
		if p.re.MatchString(q) {
			return p.sql
		}
	}
	for _, t := range patternTables {
		if strings.Contains(q, strings.Replace(t, "_", " ", 1)) || strings.Contains(q, t) {
			return "SELECT * FROM " + t
		}
	}
	return "SELECT * FROM rabbits"
}

func (a *SQLAgent) systemPrompt(ctx context.Context) string {
	schema := a.loadSchema(ctx)

	tables := make([]string, 0, len(schema.Tables))
	for t := range schema.Tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	lines := make([]string, 0, len(tables))
	for _, t := range tables {
		cols := make([]string, len(schema.Tables[t]))
		for i, c := range schema.Tables[t] {
			req := "required"
			if c.Nullable {
				req = "nullable"
			}
			cols[i] = fmt.Sprintf("%s (%s, %s)", c.Name, c.Type, req)
		}
		lines = append(lines, t+": "+strings.Join(cols, ", "))
	}

	rels := make([]string, len(schema.Relationships))
	for i, r := range schema.Relationships {
		rels[i] = fmt.Sprintf("- %s.%s → %s.%s", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
	}
	return prompts.GetSQLPrompt(a.dialect, lines, rels)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
