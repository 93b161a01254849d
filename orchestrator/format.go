package orchestrator

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"rabbitry/agent"
	"rabbitry/store"
)

// Cell types.
const (
	TypeDate     = "date"
	TypeCurrency = "currency"
	TypeStatus   = "status"
	TypeGender   = "gender"
	TypeBoolean  = "boolean"
	TypeNumber   = "number"
	TypeID       = "id"
	TypeText     = "text"
	TypeEmpty    = "empty"
	TypeWeather  = "weather"
)

const emptyDisplay = "—"

// Cell is one display-ready value.
type Cell struct {
	Raw     any    `json:"raw"`
	Display string `json:"display"`
	Type    string `json:"type"`
}

// FormattedRow maps column names to cells.
type FormattedRow map[string]Cell

// Column describes how a result column is shown.
type Column struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Sortable bool   `json:"sortable"`
	Width    string `json:"width"`
}

// FormattedSQL is a SQL result ready for display.
type FormattedSQL struct {
	Success          bool           `json:"success"`
	Query            string         `json:"query,omitempty"`
	OriginalQuery    string         `json:"originalQuery,omitempty"`
	Data             []FormattedRow `json:"data"`
	RowCount         int            `json:"rowCount"`
	FormattedSummary string         `json:"formattedSummary"`
	DisplayColumns   []Column       `json:"displayColumns"`
}

// Formatter turns raw rows into display cells. It is pure apart from the
// clock used for relative dates.
type Formatter struct {
	now     func() time.Time
	printer *message.Printer
}

func NewFormatter(now func() time.Time) *Formatter {
	if now == nil {
		now = time.Now
	}
	return &Formatter{now: now, printer: message.NewPrinter(language.AmericanEnglish)}
}

// FormatSQLResults unwraps backend wrapping artifacts and formats every row.
func (f *Formatter) FormatSQLResults(res *agent.Result, query string) *FormattedSQL {
	out := &FormattedSQL{
		Success:       res != nil && res.Success,
		OriginalQuery: query,
		Data:          []FormattedRow{},
	}
	if res == nil {
		return out
	}
	out.Query = res.Query
	if res.OriginalQuery != "" {
		out.OriginalQuery = res.OriginalQuery
	}

	rows := Unwrap(res.Data)
	if len(rows) == 0 {
		out.FormattedSummary = "No records found"
		out.DisplayColumns = []Column{}
		return out
	}

	out.Data = make([]FormattedRow, len(rows))
	for i, row := range rows {
		out.Data[i] = f.FormatRow(row)
	}
	out.RowCount = len(rows)
	out.FormattedSummary = DataSummary(len(rows), out.OriginalQuery)
	out.DisplayColumns = DisplayColumns(rows[0])
	return out
}

// Unwrap tolerates two wrapping shapes: a single {result: [rows]} element,
// and rows that are each a lone {result: row}.
func Unwrap(data []store.Row) []store.Row {
	if len(data) == 0 {
		return data
	}

	if len(data) == 1 {
		if inner, ok := rowList(data[0]["result"]); ok {
			return inner
		}
	}

	unwrapped := make([]store.Row, 0, len(data))
	for _, item := range data {
		if len(item) != 1 {
			return data
		}
		v, ok := item["result"]
		if !ok {
			return data
		}
		r, ok := asRow(v)
		if !ok {
			return data
		}
		unwrapped = append(unwrapped, r)
	}
	return unwrapped
}

func rowList(v any) ([]store.Row, bool) {
	switch list := v.(type) {
	case []store.Row:
		return list, true
	case []map[string]any:
		out := make([]store.Row, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out, true
	case []any:
		out := make([]store.Row, 0, len(list))
		for _, item := range list {
			r, ok := asRow(item)
			if !ok {
				return nil, false
			}
			out = append(out, r)
		}
		return out, true
	}
	return nil, false
}

func asRow(v any) (store.Row, bool) {
	switch r := v.(type) {
	case store.Row:
		return r, true
	case map[string]any:
		return r, true
	}
	return nil, false
}

// FormatRow wraps every value of row in a Cell.
func (f *Formatter) FormatRow(row store.Row) FormattedRow {
	out := make(FormattedRow, len(row))
	for k, v := range row {
		out[k] = Cell{Raw: v, Display: f.FormatValue(k, v), Type: ValueType(k, v)}
	}
	return out
}

// FormatValue renders one value. Column name rules take precedence over
// the value's own type.
func (f *Formatter) FormatValue(column string, v any) string {
	if v == nil {
		return emptyDisplay
	}

	switch {
	case strings.Contains(column, "date"):
		return f.FormatDate(v)
	case strings.Contains(column, "weight"):
		return fmt.Sprintf("%v lbs", v)
	case isMoneyColumn(column):
		return f.formatCurrency(v)
	case column == "gender":
		return formatGender(v)
	case column == "status":
		return FormatStatus(v)
	}

	if s, ok := v.(string); ok && strings.Contains(column, "id") {
		return truncateID(s)
	}
	if b, ok := v.(bool); ok {
		if b {
			return "Yes"
		}
		return "No"
	}
	if n, ok := toNumber(v); ok {
		return f.printer.Sprint(number.Decimal(n, number.MaxFractionDigits(3)))
	}
	return fmt.Sprint(v)
}

// ValueType classifies a value for display.
func ValueType(column string, v any) string {
	switch {
	case v == nil:
		return TypeEmpty
	case strings.Contains(column, "date"):
		return TypeDate
	case isMoneyColumn(column):
		return TypeCurrency
	case column == "status":
		return TypeStatus
	case column == "gender":
		return TypeGender
	}
	if _, ok := v.(bool); ok {
		return TypeBoolean
	}
	if _, ok := toNumber(v); ok {
		return TypeNumber
	}
	if strings.Contains(column, "id") {
		return TypeID
	}
	return TypeText
}

// FormatDate renders "Jan 2, 2006" with a relative suffix within 30 days.
// Unparseable values are stringified.
func (f *Formatter) FormatDate(v any) string {
	t, ok := parseDate(v)
	if !ok {
		if s, isStr := v.(string); isStr && s == "" {
			return emptyDisplay
		}
		return fmt.Sprint(v)
	}

	formatted := t.Format("Jan 2, 2006")
	days := calendarDays(f.now(), t)
	switch {
	case days < -30 || days > 30:
		return formatted
	case days == 0:
		return formatted + " (Today)"
	case days == 1:
		return formatted + " (Tomorrow)"
	case days == -1:
		return formatted + " (Yesterday)"
	case days > 0:
		return fmt.Sprintf("%s (in %d days)", formatted, days)
	default:
		return fmt.Sprintf("%s (%d days ago)", formatted, -days)
	}
}

// calendarDays counts whole UTC calendar days from now to t.
func calendarDays(now, t time.Time) int {
	y, m, d := now.UTC().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = t.UTC().Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(math.Round(to.Sub(from).Hours() / 24))
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func isMoneyColumn(column string) bool {
	return strings.Contains(column, "price") || strings.Contains(column, "cost") || strings.Contains(column, "amount")
}

func (f *Formatter) formatCurrency(v any) string {
	n, ok := toNumber(v)
	if !ok {
		return fmt.Sprint(v)
	}
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return sign + "$" + f.printer.Sprint(number.Decimal(n, number.Scale(2)))
}

func formatGender(v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	switch {
	case strings.EqualFold(s, "male"):
		return "♂ Male"
	case strings.EqualFold(s, "female"):
		return "♀ Female"
	}
	return s
}

var statusLabels = map[string]string{
	"Active":    "🟢 Active",
	"Inactive":  "🔴 Inactive",
	"Planned":   "📅 Planned",
	"Completed": "✅ Completed",
	"Failed":    "❌ Failed",
	"Cancelled": "🚫 Cancelled",
	"Breeding":  "🐰 Breeding",
	"Growing":   "🌱 Growing",
	"Retired":   "🏖️ Retired",
}

// FormatStatus prefixes known statuses with an emoji.
func FormatStatus(v any) string {
	s := fmt.Sprint(v)
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return s
}

func truncateID(s string) string {
	r := []rune(s)
	if len(r) > 8 {
		r = r[:8]
	}
	return string(r) + "…"
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// GuessTable names what the rows are, from keywords in the query.
func GuessTable(query string) string {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "rabbit"):
		return "rabbits"
	case strings.Contains(q, "breeding"), strings.Contains(q, "plan"):
		return "breeding plans"
	case strings.Contains(q, "transaction"), strings.Contains(q, "expense"), strings.Contains(q, "cost"):
		return "transactions"
	case strings.Contains(q, "feed"):
		return "feeding records"
	case strings.Contains(q, "transfer"):
		return "transfers"
	}
	return "records"
}

// DataSummary is the one-line description of a formatted result.
func DataSummary(n int, query string) string {
	table := GuessTable(query)
	switch n {
	case 0:
		return fmt.Sprintf("No %s found matching your query.", table)
	case 1:
		return fmt.Sprintf("Found 1 %s matching your query.", strings.TrimSuffix(table, "s"))
	}
	return fmt.Sprintf("Found %d %s matching your query.", n, table)
}

var columnLabels = map[string]string{
	"rabbit_id":            "Rabbit ID",
	"plan_id":              "Plan ID",
	"doe_id":               "Doe",
	"buck_id":              "Buck",
	"expected_kindle_date": "Expected Kindle",
	"actual_kindle_date":   "Actual Kindle",
	"planned_date":         "Planned Date",
	"actual_mating_date":   "Actual Mating",
	"kits_born":            "Kits Born",
	"kits_survived":        "Kits Survived",
	"weather_forecast":     "Weather Forecast",
}

// ColumnLabel maps known columns to labels and title-cases the rest.
func ColumnLabel(column string) string {
	if label, ok := columnLabels[column]; ok {
		return label
	}
	words := strings.Split(column, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// ColumnWidth is the layout hint for a column.
func ColumnWidth(column string) string {
	switch {
	case strings.Contains(column, "id"):
		return "narrow"
	case strings.Contains(column, "date"):
		return "medium"
	case strings.Contains(column, "notes"), strings.Contains(column, "description"), column == "weather_forecast":
		return "wide"
	case column == "name":
		return "medium"
	}
	return "auto"
}

// leadingColumns are shown first, in this order; the rest follow sorted.
var leadingColumns = map[string]int{"id": 0, "rabbit_id": 1, "plan_id": 2, "name": 3, "count": 4}

// DisplayColumns describes the columns of sample.
func DisplayColumns(sample store.Row) []Column {
	keys := make([]string, 0, len(sample))
	for k := range sample {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, iok := leadingColumns[keys[i]]
		rj, jok := leadingColumns[keys[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return keys[i] < keys[j]
	})

	cols := make([]Column, len(keys))
	for i, k := range keys {
		cols[i] = Column{
			Key:      k,
			Label:    ColumnLabel(k),
			Sortable: !strings.Contains(k, "notes") && !strings.Contains(k, "description"),
			Width:    ColumnWidth(k),
		}
	}
	return cols
}
