package store

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
	// OpILike is a case-insensitive substring match.
	OpILike Op = "ilike"
)

// Filter is one predicate of a SelectQuery.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// SelectQuery is the structured query-builder convention.
type SelectQuery struct {
	Table   string
	Columns []string
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

func (q SelectQuery) Eq(column string, value any) SelectQuery {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Op: OpEq, Value: value})
	return q
}

func (q SelectQuery) Where(column string, op Op, value any) SelectQuery {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Op: op, Value: value})
	return q
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// dialect differs between SQLite (?) and Postgres ($n) placeholders.
type dialect struct {
	placeholder func(n int) string
}

var (
	sqliteDialect   = dialect{placeholder: func(int) string { return "?" }}
	postgresDialect = dialect{placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
)

// build renders q as a parameterized SELECT.
func (d dialect) build(q SelectQuery) (string, []any, error) {
	if err := validIdent(q.Table); err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if err := validIdent(c); err != nil {
				return "", nil, err
			}
		}
		cols = strings.Join(q.Columns, ", ")
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, q.Table)

	for i, f := range q.Filters {
		if err := validIdent(f.Column); err != nil {
			return "", nil, err
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}

		switch f.Op {
		case OpIn:
			values := toSlice(f.Value)
			if len(values) == 0 {
				sb.WriteString("1 = 0")
				continue
			}
			marks := make([]string, len(values))
			for j, v := range values {
				args = append(args, v)
				marks[j] = d.placeholder(len(args))
			}
			fmt.Fprintf(&sb, "%s IN (%s)", f.Column, strings.Join(marks, ", "))
		case OpILike:
			args = append(args, "%"+strings.ToLower(fmt.Sprint(f.Value))+"%")
			fmt.Fprintf(&sb, "LOWER(%s) LIKE %s", f.Column, d.placeholder(len(args)))
		default:
			sqlOp, ok := sqlOps[f.Op]
			if !ok {
				return "", nil, fmt.Errorf("unknown filter op %q", f.Op)
			}
			args = append(args, f.Value)
			fmt.Fprintf(&sb, "%s %s %s", f.Column, sqlOp, d.placeholder(len(args)))
		}
	}

	if q.OrderBy != "" {
		if err := validIdent(q.OrderBy); err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), args, nil
}

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

func toSlice(v any) []any {
	switch vs := v.(type) {
	case []any:
		return vs
	case []string:
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(vs))
		for i, n := range vs {
			out[i] = n
		}
		return out
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// apply evaluates q against in-memory rows.
func apply(rows []Row, q SelectQuery) ([]Row, error) {
	var out []Row
	for _, row := range rows {
		ok, err := matches(row, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, project(row, q.Columns))
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func project(row Row, cols []string) Row {
	out := make(Row, len(row))
	if len(cols) == 0 {
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	for _, c := range cols {
		out[c] = row[c]
	}
	return out
}

func matches(row Row, filters []Filter) (bool, error) {
	for _, f := range filters {
		v, present := row[f.Column]
		switch f.Op {
		case OpEq:
			if !present || compare(v, f.Value) != 0 {
				return false, nil
			}
		case OpNeq:
			if present && compare(v, f.Value) == 0 {
				return false, nil
			}
		case OpGt, OpGte, OpLt, OpLte:
			if !present || v == nil {
				return false, nil
			}
			c := compare(v, f.Value)
			if (f.Op == OpGt && c <= 0) || (f.Op == OpGte && c < 0) ||
				(f.Op == OpLt && c >= 0) || (f.Op == OpLte && c > 0) {
				return false, nil
			}
		case OpIn:
			found := false
			for _, candidate := range toSlice(f.Value) {
				if compare(v, candidate) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		case OpILike:
			if !strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(f.Value))) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unknown filter op %q", f.Op)
		}
	}
	return true, nil
}

// compare orders numbers numerically, times chronologically and falls back
// to string comparison.
func compare(a, b any) int {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
