package streamers

import (
	"fmt"
	"strings"

	"rabbitry/orchestrator"
)

// MaxTableRows caps the rows rendered in a result table.
const MaxTableRows = 50

// RenderMarkdown turns a combined response into markdown for terminal
// rendering.
func RenderMarkdown(resp *orchestrator.Response) string {
	var b strings.Builder

	if !resp.Success {
		fmt.Fprintf(&b, "**Query failed:** %s\n", resp.Error)
		for _, f := range resp.FailedAgents {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.Agent, f.Error)
		}
		return b.String()
	}

	if resp.CombinedSummary != "" {
		fmt.Fprintf(&b, "**%s**\n\n", resp.CombinedSummary)
	}
	if resp.SQLData != nil {
		if resp.SQLData.FormattedSummary != "" {
			fmt.Fprintf(&b, "%s\n\n", resp.SQLData.FormattedSummary)
		}
		writeTable(&b, resp.DisplayColumns, resp.Data)
	}
	if resp.Weather != nil {
		writeWeather(&b, resp)
	}
	if resp.Answer != "" {
		b.WriteString("### From the manuals\n\n")
		b.WriteString(resp.Answer + "\n\n")
		if len(resp.Sources) > 0 {
			fmt.Fprintf(&b, "_Sources: %s_\n\n", strings.Join(resp.Sources, ", "))
		}
	}
	if v := resp.Vision; v != nil {
		b.WriteString("### Vision\n\n")
		b.WriteString(v.Summary + "\n\n")
		for _, a := range v.Alerts {
			fmt.Fprintf(&b, "- **%s** (%s, %.0f%%)", strings.ReplaceAll(a.EventType, "_", " "), a.Severity, a.Confidence*100)
			if a.CageID != nil {
				fmt.Fprintf(&b, " cage %v", a.CageID)
			}
			fmt.Fprintf(&b, ": %s\n", a.Recommendation)
		}
		if len(v.Alerts) > 0 {
			b.WriteString("\n")
		}
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(&b, "> ⚠️ %s\n", w)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeTable(b *strings.Builder, cols []orchestrator.Column, rows []orchestrator.FormattedRow) {
	if len(cols) == 0 || len(rows) == 0 {
		return
	}

	header := make([]string, len(cols))
	sep := make([]string, len(cols))
	for i, c := range cols {
		header[i] = cell(c.Label)
		sep[i] = "---"
	}
	fmt.Fprintf(b, "| %s |\n| %s |\n", strings.Join(header, " | "), strings.Join(sep, " | "))

	shown := rows
	if len(shown) > MaxTableRows {
		shown = shown[:MaxTableRows]
	}
	for _, row := range shown {
		vals := make([]string, len(cols))
		for i, c := range cols {
			vals[i] = cell(row[c.Key].Display)
		}
		fmt.Fprintf(b, "| %s |\n", strings.Join(vals, " | "))
	}
	b.WriteString("\n")
	if extra := len(rows) - len(shown); extra > 0 {
		fmt.Fprintf(b, "_…and %d more rows_\n\n", extra)
	}
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func writeWeather(b *strings.Builder, resp *orchestrator.Response) {
	w := resp.Weather
	fmt.Fprintf(b, "### Weather: %s\n\n", w.Location)
	c := w.Current
	fmt.Fprintf(b, "**%d%s**, %s (feels like %d%s), humidity %d%%, wind %d\n\n",
		c.Temperature, c.TemperatureUnit, c.Description, c.FeelsLike, c.TemperatureUnit, c.Humidity, c.WindSpeed)

	if len(w.Forecast) > 0 {
		for _, f := range w.Forecast {
			fmt.Fprintf(b, "- %s: %d%s, %s\n", f.Time, f.Temperature, f.TemperatureUnit, f.Description)
		}
		b.WriteString("\n")
	}
	if resp.Analysis != "" {
		b.WriteString(resp.Analysis + "\n\n")
	}
	if len(resp.Recommendations) > 0 {
		b.WriteString("**Recommendations**\n\n")
		for _, r := range resp.Recommendations {
			fmt.Fprintf(b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
}
