package orchestrator

import (
	"fmt"
	"strings"

	"rabbitry/agent"
)

// Response is the combined answer to one query.
type Response struct {
	Success         bool                `json:"success"`
	QueryID         string              `json:"queryId,omitempty"`
	OriginalQuery   string              `json:"originalQuery"`
	AgentsUsed      []string            `json:"agentsUsed,omitempty"`
	CombinedSummary string              `json:"combinedSummary,omitempty"`
	SQLData         *FormattedSQL       `json:"sqlData,omitempty"`
	Data            []FormattedRow      `json:"data,omitempty"`
	DisplayColumns  []Column            `json:"displayColumns,omitempty"`
	WeatherData     *agent.Result       `json:"weatherData,omitempty"`
	Weather         *agent.WeatherData  `json:"weather,omitempty"`
	Analysis        string              `json:"analysis,omitempty"`
	Recommendations []string            `json:"recommendations,omitempty"`
	Location        string              `json:"location,omitempty"`
	PDFInsights     *agent.Result       `json:"pdfInsights,omitempty"`
	Answer          string              `json:"answer,omitempty"`
	Sources         []string            `json:"sources,omitempty"`
	Vision          *agent.VisionReport `json:"vision,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
	Error           string              `json:"error,omitempty"`
	FailedAgents    []FailedAgent       `json:"failedAgents,omitempty"`
	Agent           string              `json:"agent,omitempty"`
}

type FailedAgent struct {
	Agent string `json:"agent"`
	Error string `json:"error"`
}

const allFailed = "All agents failed to process the query"

// Combine folds the pipeline results into one response.
func Combine(state *PipelineState) *Response {
	var successful, failed []*agent.Result
	for _, name := range state.Order {
		r, ok := state.Results[name]
		if !ok || r == nil {
			continue
		}
		if r.Success {
			successful = append(successful, r)
		} else {
			failed = append(failed, r)
		}
	}

	if len(successful) == 0 {
		resp := &Response{
			Success:       false,
			Error:         allFailed,
			OriginalQuery: state.OriginalQuery,
			AgentsUsed:    state.SelectedAgents,
			FailedAgents:  make([]FailedAgent, len(failed)),
		}
		for i, r := range failed {
			resp.FailedAgents[i] = FailedAgent{Agent: r.Agent, Error: r.Error}
		}
		return resp
	}

	resp := &Response{
		Success:         true,
		OriginalQuery:   state.OriginalQuery,
		AgentsUsed:      state.SelectedAgents,
		CombinedSummary: summary(state),
	}

	if state.succeeded(agent.SQL) {
		f := state.FormattedSQL
		if f == nil {
			f = NewFormatter(nil).FormatSQLResults(state.Results[agent.SQL], state.OriginalQuery)
		}
		resp.SQLData = f
		resp.Data = f.Data
		resp.DisplayColumns = f.DisplayColumns
	}

	if state.succeeded(agent.Weather) {
		w := state.Results[agent.Weather]
		if ShouldDisplayWeatherWidget(state.OriginalQuery, contributing(state)) {
			resp.WeatherData = w
			resp.Weather = w.Weather
			resp.Analysis = w.Analysis
			resp.Recommendations = w.Recommendations
			resp.Location = w.Location
		}
	}

	if state.succeeded(agent.PDF) {
		p := state.Results[agent.PDF]
		resp.PDFInsights = p
		resp.Answer = p.Answer
		resp.Sources = p.Sources
	}

	if state.succeeded(agent.Vision) {
		resp.Vision = state.Results[agent.Vision].Vision
	}

	if state.succeeded(agent.SQL) && state.succeeded(agent.Weather) && resp.SQLData != nil {
		MergeWeather(resp.SQLData, state.Results[agent.Weather], state.Extracted)
		resp.Data = resp.SQLData.Data
		resp.DisplayColumns = resp.SQLData.DisplayColumns
	}

	for _, r := range failed {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s agent failed: %s", r.Agent, r.Error))
	}
	return resp
}

// contributing lists the selected agents that returned successfully.
func contributing(state *PipelineState) []string {
	var out []string
	for _, name := range state.SelectedAgents {
		if state.succeeded(name) {
			out = append(out, name)
		}
	}
	return out
}

func summary(state *PipelineState) string {
	var parts []string
	if state.succeeded(agent.SQL) {
		n := state.Results[agent.SQL].RowCount
		if state.FormattedSQL != nil {
			n = state.FormattedSQL.RowCount
		}
		part := fmt.Sprintf("Found %d database record", n)
		if n != 1 {
			part += "s"
		}
		parts = append(parts, part)
	}
	if state.succeeded(agent.Weather) {
		loc := state.Results[agent.Weather].Location
		if loc == "" {
			loc = "your area"
		}
		parts = append(parts, "weather data for "+loc)
	}
	if state.succeeded(agent.PDF) {
		parts = append(parts, "document analysis from rabbit care manuals")
	}
	if state.succeeded(agent.Vision) {
		n := 0
		if v := state.Results[agent.Vision].Vision; v != nil {
			n = v.TotalEvents
		}
		parts = append(parts, fmt.Sprintf("vision analysis of %d event(s)", n))
	}

	switch len(parts) {
	case 0:
		return "Query processed with mixed results."
	case 1:
		return parts[0] + "."
	}
	return strings.Join(parts, ", ") + " combined for comprehensive insights."
}

var weatherKeywords = []string{
	"weather", "temperature", "forecast", "climate", "rain", "sunny", "cloudy",
	"hot", "cold", "warm", "degrees", "humidity", "wind", "conditions",
}

// ShouldDisplayWeatherWidget decides whether weather is shown on its own or
// only inside the merged rows.
func ShouldDisplayWeatherWidget(query string, agents []string) bool {
	has := func(name string) bool {
		for _, a := range agents {
			if a == name {
				return true
			}
		}
		return false
	}

	if len(agents) == 1 && agents[0] == agent.Weather {
		return true
	}
	if has(agent.SQL) && has(agent.Weather) {
		return false
	}
	q := strings.ToLower(query)
	for _, kw := range weatherKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return true
}
