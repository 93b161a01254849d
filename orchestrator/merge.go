package orchestrator

import (
	"fmt"
	"strings"

	"rabbitry/agent"
)

const weatherColumn = "weather_forecast"

var weatherForecastColumn = Column{Key: weatherColumn, Label: "Weather Forecast", Sortable: false, Width: "wide"}

type currentWeather struct {
	Temperature int    `json:"temperature"`
	Description string `json:"description"`
}

// MergeWeather adds a weather_forecast cell to every row and the matching
// column once. Rows whose dates have a date-specific forecast list those;
// the rest fall back to current conditions.
func MergeWeather(f *FormattedSQL, w *agent.Result, extracted *ExtractedData) {
	if f == nil || w == nil {
		return
	}

	byDay := make(map[string]agent.DateForecast, len(w.DateForecasts))
	for _, df := range w.DateForecasts {
		if df.Success {
			byDay[df.Date] = df
		}
	}
	rowDays := rowDays(extracted)

	for i, row := range f.Data {
		var matched []agent.DateForecast
		for _, day := range rowDays[i] {
			if df, ok := byDay[day]; ok {
				matched = append(matched, df)
			}
		}

		switch {
		case len(matched) > 0:
			parts := make([]string, len(matched))
			for j, df := range matched {
				parts[j] = fmt.Sprintf("%d%s (%s)", df.Temperature, df.TemperatureUnit, df.Description)
			}
			row[weatherColumn] = Cell{Raw: matched, Display: strings.Join(parts, ", "), Type: TypeWeather}
		case w.Weather != nil:
			cur := w.Weather.Current
			row[weatherColumn] = Cell{
				Raw:     currentWeather{Temperature: cur.Temperature, Description: cur.Description},
				Display: fmt.Sprintf("%d%s (%s) - Current", cur.Temperature, cur.TemperatureUnit, cur.Description),
				Type:    TypeWeather,
			}
		default:
			row[weatherColumn] = Cell{Raw: "unavailable", Display: "Weather unavailable", Type: TypeWeather}
		}
	}

	for _, c := range f.DisplayColumns {
		if c.Key == weatherColumn {
			return
		}
	}
	f.DisplayColumns = append(f.DisplayColumns, weatherForecastColumn)
}

// rowDays maps row index to the calendar days ("2006-01-02") of its dates.
func rowDays(extracted *ExtractedData) map[int][]string {
	out := make(map[int][]string)
	if extracted == nil {
		return out
	}
	for _, e := range extracted.Entities {
		for _, d := range e.Dates {
			if t, ok := parseDate(d.Date); ok {
				out[e.RowIndex] = append(out[e.RowIndex], t.UTC().Format("2006-01-02"))
			}
		}
	}
	return out
}
