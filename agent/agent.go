package agent

import (
	"context"
	"errors"
	"time"

	"rabbitry/store"
)

// Agent names known to the orchestrator.
const (
	SQL     = "sql"
	PDF     = "pdf"
	Weather = "weather"
	Vision  = "vision"
)

// ErrNonSelect rejects generated statements that are not read-only.
var ErrNonSelect = errors.New("Only SELECT queries are allowed")

// Agent is one specialised query processor.
type Agent interface {
	Name() string
	// Description is the one-liner the router classifies against.
	Description() string
	Initialize(ctx context.Context) error
	ProcessQuery(ctx context.Context, query string, opts Options) (*Result, error)
}

// PreferenceAware agents are rebuilt with the owner's stored preferences.
type PreferenceAware interface {
	WithPreferences(p store.Preferences) Agent
}

// Options carries context from earlier pipeline stages.
type Options struct {
	// Dates are calendar days pulled from SQL rows, for date-specific forecasts.
	Dates []time.Time
	// Snapshot replaces the event store lookup for the vision agent.
	Snapshot []store.Row
	// Limit caps fetched rows where an agent supports it.
	Limit int
}

// Result is the tagged outcome of ProcessQuery. Only the fields of the
// producing agent are set.
type Result struct {
	Agent         string `json:"agent"`
	Success       bool   `json:"success"`
	OriginalQuery string `json:"originalQuery,omitempty"`
	Error         string `json:"error,omitempty"`

	// sql
	Data     []store.Row `json:"data,omitempty"`
	RowCount int         `json:"rowCount,omitempty"`
	Query    string      `json:"query,omitempty"`

	// weather
	Location        string         `json:"location,omitempty"`
	Weather         *WeatherData   `json:"weather,omitempty"`
	Analysis        string         `json:"analysis,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	DateForecasts   []DateForecast `json:"dateForecasts,omitempty"`
	Mock            bool           `json:"mock,omitempty"`

	// pdf
	Answer  string   `json:"answer,omitempty"`
	Sources []string `json:"sources,omitempty"`

	// vision
	Vision *VisionReport `json:"vision,omitempty"`
}

// Failure builds a failed result for agent.
func Failure(agent, query string, err error) *Result {
	return &Result{Agent: agent, Success: false, OriginalQuery: query, Error: err.Error()}
}

type WeatherData struct {
	Current         CurrentWeather  `json:"current"`
	Forecast        []ForecastEntry `json:"forecast"`
	Location        string          `json:"location"`
	TemperatureUnit string          `json:"temperatureUnit"`
}

type CurrentWeather struct {
	Temperature     int    `json:"temperature"`
	FeelsLike       int    `json:"feelsLike"`
	Humidity        int    `json:"humidity"`
	Pressure        int    `json:"pressure"`
	Description     string `json:"description"`
	WindSpeed       int    `json:"windSpeed"`
	WindDirection   int    `json:"windDirection"`
	TemperatureUnit string `json:"temperatureUnit"`
}

type ForecastEntry struct {
	Time            string `json:"time"`
	Temperature     int    `json:"temperature"`
	Description     string `json:"description"`
	Humidity        int    `json:"humidity"`
	WindSpeed       int    `json:"windSpeed"`
	TemperatureUnit string `json:"temperatureUnit"`
}

// DateForecast is the forecast for one requested calendar day.
type DateForecast struct {
	Date            string `json:"date"` // 2006-01-02
	Success         bool   `json:"success"`
	Temperature     int    `json:"temperature,omitempty"`
	Description     string `json:"description,omitempty"`
	TemperatureUnit string `json:"temperatureUnit,omitempty"`
	Error           string `json:"error,omitempty"`
}

type VisionReport struct {
	Summary             string        `json:"summary"`
	Alerts              []VisionAlert `json:"alerts"`
	Metrics             VisionMetrics `json:"metrics"`
	TotalEvents         int           `json:"totalEvents"`
	ConfidenceThreshold float64       `json:"confidenceThreshold"`
	EventWindowHours    int           `json:"eventWindowHours"`
	RawEvents           []store.Row   `json:"rawEvents"`
	Intent              VisionIntent  `json:"intent"`
	SnapshotMode        bool          `json:"snapshotMode,omitempty"`
}

type VisionAlert struct {
	ID             any     `json:"id"`
	EventType      string  `json:"event_type"`
	Severity       string  `json:"severity"`
	Confidence     float64 `json:"confidence"`
	RabbitID       any     `json:"rabbit_id"`
	CageID         any     `json:"cage_id"`
	EventTime      any     `json:"event_time"`
	Recommendation string  `json:"recommendation"`
}

type VisionMetrics struct {
	TotalEvents int            `json:"totalEvents"`
	ByType      map[string]int `json:"byType"`
	BySeverity  map[string]int `json:"bySeverity"`
}

type VisionIntent struct {
	TimeWindowHours     int      `json:"timeWindowHours"`
	ConfidenceThreshold float64  `json:"confidenceThreshold"`
	EventTypes          []string `json:"eventTypes"`
	Severity            []string `json:"severity"`
}
