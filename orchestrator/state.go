package orchestrator

import (
	"strings"
	"time"

	"rabbitry/agent"
)

// PipelineState is the per-query context shared between pipeline stages.
// It belongs to a single Query call.
type PipelineState struct {
	OriginalQuery  string
	SelectedAgents []string
	Order          []string
	Results        map[string]*agent.Result

	// FormattedSQL is set as soon as the SQL agent succeeds.
	FormattedSQL *FormattedSQL
	Extracted    *ExtractedData
}

func newPipelineState(query string) *PipelineState {
	return &PipelineState{
		OriginalQuery: query,
		Results:       make(map[string]*agent.Result),
	}
}

// succeeded reports whether name ran and returned a successful result.
func (s *PipelineState) succeeded(name string) bool {
	r, ok := s.Results[name]
	return ok && r != nil && r.Success
}

// ExtractedData holds dates pulled from formatted SQL rows.
type ExtractedData struct {
	Dates     []any    `json:"dates"`
	Entities  []Entity `json:"entities"`
	TotalRows int      `json:"totalRows"`
}

type Entity struct {
	RowIndex int          `json:"rowIndex"`
	Dates    []EntityDate `json:"dates"`
}

type EntityDate struct {
	Column string `json:"column"`
	Date   any    `json:"date"`
}

// dateColumns are checked on every row, in this order.
var dateColumns = []string{
	"expected_kindle_date",
	"actual_kindle_date",
	"planned_date",
	"actual_mating_date",
	"date",
	"scheduled_date",
}

const maxExtractedDates = 10

// ExtractDates collects the raw values of known date columns. Dates are
// de-duplicated and capped; entities list the rows that carried any.
func ExtractDates(f *FormattedSQL) *ExtractedData {
	out := &ExtractedData{Dates: []any{}, Entities: []Entity{}}
	if f == nil {
		return out
	}
	out.TotalRows = len(f.Data)

	seen := make(map[any]bool)
	for i, row := range f.Data {
		var found []EntityDate
		for _, col := range dateColumns {
			cell, ok := row[col]
			if !ok || blankDate(cell.Raw) {
				continue
			}
			found = append(found, EntityDate{Column: col, Date: cell.Raw})
			key := dateKey(cell.Raw)
			if !seen[key] {
				seen[key] = true
				out.Dates = append(out.Dates, cell.Raw)
			}
		}
		if len(found) > 0 {
			out.Entities = append(out.Entities, Entity{RowIndex: i, Dates: found})
		}
	}

	if len(out.Dates) > maxExtractedDates {
		out.Dates = out.Dates[:maxExtractedDates]
	}
	return out
}

func blankDate(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func dateKey(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// Days parses the extracted dates into calendar days. Values that do not
// parse are skipped.
func (e *ExtractedData) Days() []time.Time {
	if e == nil {
		return nil
	}
	var days []time.Time
	for _, d := range e.Dates {
		t, ok := parseDate(d)
		if !ok {
			continue
		}
		y, m, dd := t.UTC().Date()
		days = append(days, time.Date(y, m, dd, 0, 0, 0, 0, time.UTC))
	}
	return days
}
