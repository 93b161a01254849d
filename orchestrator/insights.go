package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"rabbitry/agent"
)

// Insight is one labelled headline number.
type Insight struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

var errNoSQLAgent = errors.New("sql agent is not registered")

type insightQuery struct {
	label    string
	question string
	value    func(res *agent.Result) any
}

var insightQueries = []insightQuery{
	{"Total Rabbits", "How many rabbits do we have?", firstValue("count")},
	{"Active rabbits", "What rabbits are currently in the breeding program?", func(res *agent.Result) any { return res.RowCount }},
	{"Monthly Expenses", "Total transactions this month", firstValue("total_expenses")},
}

func firstValue(key string) func(*agent.Result) any {
	return func(res *agent.Result) any {
		rows := Unwrap(res.Data)
		if len(rows) == 0 {
			return 0
		}
		if v, ok := rows[0][key]; ok && v != nil {
			return v
		}
		return 0
	}
}

// QuickInsights runs a few canned SQL questions for a dashboard header.
// Questions that fail are left out.
func (o *Orchestrator) QuickInsights(ctx context.Context) ([]Insight, error) {
	sql, ok := o.lookup(agent.SQL)
	if !ok {
		return nil, errNoSQLAgent
	}
	if err := sql.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize sql agent: %w", err)
	}

	insights := make([]Insight, 0, len(insightQueries))
	for _, q := range insightQueries {
		res := o.runAgent(ctx, sql, agent.SQL, q.question, agent.Options{})
		if !res.Success {
			o.logger.Warn("insight query failed", "insight", q.label, "error", res.Error)
			continue
		}
		insights = append(insights, Insight{Label: q.label, Value: q.value(res)})
	}
	return insights, nil
}
