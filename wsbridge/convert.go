package wsbridge

import (
	"rabbitry/config"
)

// ServerInfo is the JSON-safe view of the loaded configuration served to
// clients. Secrets never leave the process.
type ServerInfo struct {
	Models  []ModelInfo `json:"models"`
	Agents  []AgentInfo `json:"agents"`
	Farm    FarmInfo    `json:"farm"`
	History bool        `json:"history"`
}

type ModelInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type AgentInfo struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Model       string `json:"model,omitempty"`
	Description string `json:"description,omitempty"`
}

type FarmInfo struct {
	DefaultLocation string `json:"defaultLocation,omitempty"`
	TemperatureUnit string `json:"temperatureUnit,omitempty"`
}

// ConfigToServerInfo converts the HCL-based config into a ServerInfo.
func ConfigToServerInfo(cfg *config.Config) ServerInfo {
	info := ServerInfo{}
	if cfg == nil {
		return info
	}

	for _, m := range cfg.Models {
		info.Models = append(info.Models, ModelInfo{
			Name:     m.Name,
			Provider: string(m.Provider),
			Model:    m.Model,
		})
	}

	for _, name := range config.KnownAgents {
		ai := AgentInfo{Name: name, Enabled: cfg.AgentEnabled(name)}
		if m := cfg.ModelFor(name); m != nil {
			ai.Model = m.Name
		}
		if a := cfg.Agent(name); a != nil {
			ai.Description = a.Description
		}
		info.Agents = append(info.Agents, ai)
	}

	if cfg.Farm != nil {
		info.Farm = FarmInfo{
			DefaultLocation: cfg.Farm.DefaultLocation,
			TemperatureUnit: cfg.Farm.TemperatureUnit,
		}
	}
	if cfg.Storage != nil {
		info.History = cfg.Storage.RecordHistory()
	}
	return info
}
