package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"rabbitry/agent/internal/prompts"
	"rabbitry/config"
	"rabbitry/llm"
	"rabbitry/store"
	"rabbitry/weather"
)

const weatherDescription = "Weather conditions, temperature forecasts, climate impact analysis"

// forecastSamples is how many forecast steps are shown (24h at 3h steps).
const forecastSamples = 8

type WeatherOptions struct {
	LLM             llm.Completer
	Client          *weather.Client // nil means mock data only
	DefaultLocation string
	TemperatureUnit string
	Logger          hclog.Logger
}

// WeatherAgent reports conditions and their impact on the rabbitry.
type WeatherAgent struct {
	llm             llm.Completer
	client          *weather.Client
	defaultLocation string
	unit            string
	logger          hclog.Logger
}

func NewWeatherAgent(opts WeatherOptions) *WeatherAgent {
	if opts.DefaultLocation == "" {
		opts.DefaultLocation = config.DefaultLocation
	}
	if opts.TemperatureUnit != config.UnitCelsius {
		opts.TemperatureUnit = config.UnitFahrenheit
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &WeatherAgent{
		llm:             opts.LLM,
		client:          opts.Client,
		defaultLocation: opts.DefaultLocation,
		unit:            opts.TemperatureUnit,
		logger:          opts.Logger,
	}
}

func (a *WeatherAgent) Name() string                         { return Weather }
func (a *WeatherAgent) Description() string                  { return weatherDescription }
func (a *WeatherAgent) Initialize(ctx context.Context) error { return nil }

// WithPreferences returns a copy using the owner's location, unit and
// provider key where set.
func (a *WeatherAgent) WithPreferences(p store.Preferences) Agent {
	cp := *a
	if p.FarmLocation != "" {
		cp.defaultLocation = p.FarmLocation
	}
	if p.TemperatureUnit == config.UnitCelsius || p.TemperatureUnit == config.UnitFahrenheit {
		cp.unit = p.TemperatureUnit
	}
	if p.WeatherAPIKey != "" {
		if a.client != nil {
			cp.client = a.client.WithKey(p.WeatherAPIKey)
		} else if c, err := weather.NewClient(weather.Options{APIKey: p.WeatherAPIKey}); err == nil {
			cp.client = c
		} else {
			a.logger.Warn("failed to build weather client for owner key", "error", err)
		}
	}
	a.logger.Debug("applied preferences", "location", cp.defaultLocation, "unit", cp.unit, "user_key", p.WeatherAPIKey != "")
	return &cp
}

func (a *WeatherAgent) ProcessQuery(ctx context.Context, query string, opts Options) (*Result, error) {
	location := a.ExtractLocation(ctx, query)
	a.logger.Debug("using location", "location", location)

	data, report := a.fetch(ctx, location)

	res := &Result{
		Agent:           Weather,
		Success:         true,
		OriginalQuery:   query,
		Location:        location,
		Weather:         data,
		Analysis:        a.analyze(ctx, data, query),
		Recommendations: a.Recommendations(data),
		Mock:            report == nil,
	}
	if len(opts.Dates) > 0 {
		res.DateForecasts = a.dateForecasts(report, opts.Dates)
	}
	return res, nil
}

var errNoLocation = errors.New("no location in response")

// ExtractLocation asks the model for a location, using the farm default
// when none is mentioned or the request fails.
func (a *WeatherAgent) ExtractLocation(ctx context.Context, query string) string {
	return llm.Extract(ctx, a.llm, llm.Prompt{
		System:      prompts.GetWeatherLocationPrompt(),
		User:        query,
		Temperature: 0.1,
		MaxTokens:   50,
	}, func(text string) (string, error) {
		loc := strings.Trim(strings.TrimSpace(text), `"'`)
		switch {
		case loc == "":
			return "", errNoLocation
		case loc == "DEFAULT":
			return a.defaultLocation, nil
		}
		return loc, nil
	}, func() string {
		return a.defaultLocation
	})
}

func (a *WeatherAgent) units() weather.Units {
	if a.unit == config.UnitCelsius {
		return weather.Metric
	}
	return weather.Imperial
}

func (a *WeatherAgent) symbol() string {
	if a.unit == config.UnitCelsius {
		return "°C"
	}
	return "°F"
}

func (a *WeatherAgent) windUnit() string {
	if a.unit == config.UnitCelsius {
		return "m/s"
	}
	return "mph"
}

// fetch returns provider data, or mock data with a nil report.
func (a *WeatherAgent) fetch(ctx context.Context, location string) (*WeatherData, *weather.Report) {
	if a.client == nil || !a.client.HasKey() {
		return a.MockWeather(location), nil
	}

	report, err := a.client.Lookup(ctx, location, a.units())
	if err != nil {
		a.logger.Warn("weather lookup failed, using mock data", "location", location, "error", err)
		return a.MockWeather(location), nil
	}

	sym := a.symbol()
	data := &WeatherData{
		Current: CurrentWeather{
			Temperature:     round(report.Current.Temperature),
			FeelsLike:       round(report.Current.FeelsLike),
			Humidity:        report.Current.Humidity,
			Pressure:        report.Current.Pressure,
			Description:     report.Current.Description,
			WindSpeed:       round(report.Current.WindSpeed),
			WindDirection:   report.Current.WindDirection,
			TemperatureUnit: sym,
		},
		Location:        report.Place.Label(),
		TemperatureUnit: sym,
	}
	for i, s := range report.Forecast {
		if i == forecastSamples {
			break
		}
		data.Forecast = append(data.Forecast, ForecastEntry{
			Time:            s.Time.Local().Format("Mon Jan 2 3:04 PM"),
			Temperature:     round(s.Temperature),
			Description:     s.Description,
			Humidity:        s.Humidity,
			WindSpeed:       round(s.WindSpeed),
			TemperatureUnit: sym,
		})
	}
	return data, report
}

// MockWeather is the fixed payload used without a working provider.
func (a *WeatherAgent) MockWeather(location string) *WeatherData {
	sym := a.symbol()
	current, feels, fc := 68, 72, [4]int{70, 65, 58, 72}
	if a.unit == config.UnitCelsius {
		current, feels, fc = 20, 22, [4]int{21, 18, 14, 22}
	}
	return &WeatherData{
		Current: CurrentWeather{
			Temperature:     current,
			FeelsLike:       feels,
			Humidity:        45,
			Pressure:        1013,
			Description:     "partly cloudy",
			WindSpeed:       8,
			WindDirection:   180,
			TemperatureUnit: sym,
		},
		Forecast: []ForecastEntry{
			{Time: "Today 3:00 PM", Temperature: fc[0], Description: "sunny", Humidity: 40, WindSpeed: 6, TemperatureUnit: sym},
			{Time: "Today 6:00 PM", Temperature: fc[1], Description: "partly cloudy", Humidity: 50, WindSpeed: 8, TemperatureUnit: sym},
			{Time: "Tomorrow 9:00 AM", Temperature: fc[2], Description: "cloudy", Humidity: 60, WindSpeed: 10, TemperatureUnit: sym},
			{Time: "Tomorrow 12:00 PM", Temperature: fc[3], Description: "sunny", Humidity: 35, WindSpeed: 5, TemperatureUnit: sym},
		},
		Location:        location + " (Mock Data)",
		TemperatureUnit: sym,
	}
}

func (a *WeatherAgent) dateForecasts(report *weather.Report, dates []time.Time) []DateForecast {
	out := make([]DateForecast, len(dates))
	for i, d := range dates {
		df := DateForecast{Date: d.Format("2006-01-02")}
		switch {
		case report == nil:
			df.Error = "date-specific forecast unavailable without weather provider"
		default:
			s, ok := weather.NearestToNoon(report.Forecast, d)
			if !ok {
				df.Error = "date outside forecast range"
				break
			}
			df.Success = true
			df.Temperature = round(s.Temperature)
			df.Description = s.Description
			df.TemperatureUnit = a.symbol()
		}
		out[i] = df
	}
	return out
}

func (a *WeatherAgent) thresholds() (cold, hot int) {
	if a.unit == config.UnitCelsius {
		return 10, 27
	}
	return 50, 80
}

func (a *WeatherAgent) analyze(ctx context.Context, data *WeatherData, query string) string {
	system := prompts.GetWeatherAnalysisPrompt(prompts.WeatherFigures{
		Temperature: data.Current.Temperature,
		FeelsLike:   data.Current.FeelsLike,
		Unit:        data.TemperatureUnit,
		Humidity:    data.Current.Humidity,
		Conditions:  data.Current.Description,
		Wind:        data.Current.WindSpeed,
		WindUnit:    a.windUnit(),
	})
	return llm.Extract(ctx, a.llm, llm.Prompt{
		System:      system,
		User:        prompts.WeatherAnalysisUser(query),
		Temperature: 0.3,
		MaxTokens:   800,
	}, func(text string) (string, error) {
		text = strings.TrimSpace(text)
		if text == "" {
			return "", errEmptyCompletion
		}
		return text, nil
	}, func() string {
		return a.BasicAnalysis(data)
	})
}

// BasicAnalysis is the rule-based farm impact text.
func (a *WeatherAgent) BasicAnalysis(data *WeatherData) string {
	temp := data.Current.Temperature
	humidity := data.Current.Humidity
	unit := data.TemperatureUnit
	cold, hot := a.thresholds()

	var sb strings.Builder
	sb.WriteString("Weather Analysis for Rabbit Farming:\n\n")

	switch {
	case temp < cold:
		fmt.Fprintf(&sb, "🥶 Cold Alert: At %d%s, provide extra bedding and windbreak protection. Monitor for signs of cold stress.\n\n", temp, unit)
	case temp > hot:
		fmt.Fprintf(&sb, "🔥 Heat Alert: At %d%s, ensure adequate ventilation and shade. Provide extra water and consider cooling measures.\n\n", temp, unit)
	default:
		fmt.Fprintf(&sb, "✅ Comfortable Temperature: %d%s is ideal for rabbit comfort and productivity.\n\n", temp, unit)
	}

	switch {
	case humidity > 70:
		fmt.Fprintf(&sb, "💧 High Humidity: %d%% humidity can stress rabbits. Improve ventilation and monitor for respiratory issues.\n\n", humidity)
	case humidity < 30:
		fmt.Fprintf(&sb, "🌵 Low Humidity: %d%% humidity is quite dry. Monitor water consumption and respiratory health.\n\n", humidity)
	}
	return sb.String()
}

// Recommendations lists husbandry actions for the current conditions.
func (a *WeatherAgent) Recommendations(data *WeatherData) []string {
	temp := data.Current.Temperature
	cold, hot := a.thresholds()

	var recs []string
	add := func(items ...string) {
		for _, it := range items {
			if !contains(recs, it) {
				recs = append(recs, it)
			}
		}
	}

	switch {
	case temp < cold:
		add("Add extra bedding for warmth", "Check water systems for freezing", "Provide windbreak protection")
	case temp > hot:
		add("Ensure adequate ventilation", "Provide shade and cooling", "Increase water availability", "Monitor for heat stress signs")
	}
	if data.Current.Humidity > 70 {
		add("Improve hutch ventilation", "Monitor for respiratory issues")
	}
	if data.Current.WindSpeed > 15 {
		add("Secure hutch doors and equipment", "Provide wind protection")
	}

	if len(recs) == 0 {
		recs = append(recs, "Weather conditions are favorable for normal operations")
	}
	return recs
}

func round(f float64) int {
	return int(math.Round(f))
}
