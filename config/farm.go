package config

import "fmt"

const (
	UnitFahrenheit = "fahrenheit"
	UnitCelsius    = "celsius"

	ExecutionRPC     = "rpc"
	ExecutionBuilder = "builder"

	DefaultLocation = "Denver, CO"
)

// KnownAgents are the agent names an agent block may configure.
var KnownAgents = []string{"sql", "pdf", "weather", "vision"}

// FarmConfig identifies the tenant and its defaults.
type FarmConfig struct {
	OwnerID         string `hcl:"owner_id,optional"`
	DefaultLocation string `hcl:"default_location,optional"`
	TemperatureUnit string `hcl:"temperature_unit,optional"`
}

func (f *FarmConfig) Defaults() {
	if f.DefaultLocation == "" {
		f.DefaultLocation = DefaultLocation
	}
	if f.TemperatureUnit == "" {
		f.TemperatureUnit = UnitFahrenheit
	}
}

func (f *FarmConfig) Validate() error {
	if f.TemperatureUnit != UnitFahrenheit && f.TemperatureUnit != UnitCelsius {
		return fmt.Errorf("temperature_unit must be '%s' or '%s', got '%s'", UnitFahrenheit, UnitCelsius, f.TemperatureUnit)
	}
	return nil
}

// WeatherConfig configures the OpenWeatherMap provider. An empty key means
// mock weather.
type WeatherConfig struct {
	APIKey    string `hcl:"api_key,optional"`
	BaseURL   string `hcl:"base_url,optional"`
	CacheSize int    `hcl:"cache_size,optional"`
}

func (w *WeatherConfig) Defaults() {
	if w.BaseURL == "" {
		w.BaseURL = "https://api.openweathermap.org"
	}
	if w.CacheSize <= 0 {
		w.CacheSize = 128
	}
}

// SQLAgentConfig selects how generated statements reach the store.
type SQLAgentConfig struct {
	Execution string `hcl:"execution,optional"` // "rpc" (raw SQL) or "builder"
}

func (s *SQLAgentConfig) Defaults() {
	if s.Execution == "" {
		s.Execution = ExecutionRPC
	}
}

func (s *SQLAgentConfig) Validate() error {
	if s.Execution != ExecutionRPC && s.Execution != ExecutionBuilder {
		return fmt.Errorf("execution must be '%s' or '%s', got '%s'", ExecutionRPC, ExecutionBuilder, s.Execution)
	}
	return nil
}

type VisionConfig struct {
	DefaultLimit        int     `hcl:"default_limit,optional"`
	ConfidenceThreshold float64 `hcl:"confidence_threshold,optional"`
}

func (v *VisionConfig) Defaults() {
	if v.DefaultLimit <= 0 {
		v.DefaultLimit = 50
	}
	if v.ConfidenceThreshold == 0 {
		v.ConfidenceThreshold = 0.75
	}
}

func (v *VisionConfig) Validate() error {
	if v.ConfidenceThreshold < 0 || v.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0, 1], got %v", v.ConfidenceThreshold)
	}
	return nil
}

// AgentConfig toggles an agent and picks its model.
type AgentConfig struct {
	Name        string `hcl:"name,label"`
	Enabled     *bool  `hcl:"enabled,optional"`
	Model       string `hcl:"model,optional"`
	Description string `hcl:"description,optional"`
}

func (a *AgentConfig) Validate(models []Model) error {
	known := false
	for _, name := range KnownAgents {
		if name == a.Name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown agent; expected one of %v", KnownAgents)
	}
	if a.Model == "" {
		return nil
	}
	for _, m := range models {
		if m.Name == a.Model {
			return nil
		}
	}
	return fmt.Errorf("model '%s' not found", a.Model)
}

// ServerConfig configures the HTTP and WebSocket surface.
type ServerConfig struct {
	Address        string   `hcl:"address,optional"`
	AllowedOrigins []string `hcl:"allowed_origins,optional"`
}

func (s *ServerConfig) Defaults() {
	if s.Address == "" {
		s.Address = ":8080"
	}
}
