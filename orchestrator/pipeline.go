package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rabbitry/agent"
)

// dependencies lists the agents whose results an agent builds on.
var dependencies = map[string][]string{
	agent.Weather: {agent.SQL},
}

// ExecutionOrder puts agents without dependencies first, then the rest.
// Selection order is kept within each group.
func ExecutionOrder(selected []string) []string {
	var independent, dependent []string
	for _, name := range selected {
		if len(dependencies[name]) == 0 {
			independent = append(independent, name)
		} else {
			dependent = append(dependent, name)
		}
	}
	return append(independent, dependent...)
}

// WeatherEnhancement anchors a weather query to the given dates.
func WeatherEnhancement(dates []time.Time, query string) string {
	formatted := make([]string, len(dates))
	for i, d := range dates {
		formatted[i] = d.Format("January 2, 2006")
	}
	return fmt.Sprintf("Weather forecast for these specific dates: %s. Context: %s", strings.Join(formatted, ", "), query)
}

// enhance builds the query text an agent receives.
func (o *Orchestrator) enhance(ctx context.Context, name string, state *PipelineState) string {
	if len(dependencies[name]) == 0 || len(state.Results) == 0 {
		return o.decomposer.Decompose(ctx, state.OriginalQuery, name)
	}

	if name == agent.Weather {
		if _, ok := state.Results[agent.SQL]; ok {
			if days := state.Extracted.Days(); len(days) > 0 {
				return WeatherEnhancement(days, state.OriginalQuery)
			}
			return state.OriginalQuery
		}
	}
	return o.decomposer.Decompose(ctx, state.OriginalQuery, name)
}

// runPipeline executes the ordered agents one at a time. Each agent's
// failure is contained in its own result.
func (o *Orchestrator) runPipeline(ctx context.Context, state *PipelineState, events EventLogger) {
	for _, name := range state.Order {
		a, ok := o.lookup(name)
		if !ok {
			o.logger.Warn("selected agent is not registered, skipping", "agent", name)
			continue
		}

		query := o.enhance(ctx, name, state)
		opts := agent.Options{}
		if name == agent.Weather {
			opts.Dates = state.Extracted.Days()
		}

		events.LogEvent(EventAgentStarted, map[string]any{"agent": name, "query": query})
		start := time.Now()
		res := o.runAgent(ctx, a, name, query, opts)
		state.Results[name] = res
		events.LogEvent(EventAgentCompleted, map[string]any{
			"agent":       name,
			"success":     res.Success,
			"error":       res.Error,
			"duration_ms": time.Since(start).Milliseconds(),
		})

		if name == agent.SQL && res.Success {
			state.FormattedSQL = o.formatter.FormatSQLResults(res, state.OriginalQuery)
			state.Extracted = ExtractDates(state.FormattedSQL)
		}
	}
}

// runAgent calls ProcessQuery and turns errors and panics into a failed
// result stamped with the agent's name.
func (o *Orchestrator) runAgent(ctx context.Context, a agent.Agent, name, query string, opts agent.Options) (res *agent.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("agent panicked", "agent", name, "panic", r)
			res = agent.Failure(name, query, fmt.Errorf("%v", r))
		}
	}()

	out, err := a.ProcessQuery(ctx, query, opts)
	switch {
	case err != nil:
		o.logger.Error("agent failed", "agent", name, "error", err)
		return agent.Failure(name, query, err)
	case out == nil:
		return agent.Failure(name, query, fmt.Errorf("agent returned no result"))
	}

	out.Agent = name
	if !out.Success {
		o.logger.Warn("agent returned a failure", "agent", name, "error", out.Error)
	}
	return out
}
