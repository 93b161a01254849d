package config

import "fmt"

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// DefaultModels is the model used when a model block leaves `model` unset.
var DefaultModels = map[Provider]string{
	ProviderOpenAI:    "gpt-4",
	ProviderGemini:    "gemini-2.0-flash",
	ProviderAnthropic: "claude-sonnet-4-20250514",
}

// Model represents a completion endpoint configuration
type Model struct {
	Name     string   `hcl:"name,label"`
	Provider Provider `hcl:"provider"`
	Model    string   `hcl:"model,optional"`
	APIKey   string   `hcl:"api_key,optional"`
	BaseURL  string   `hcl:"base_url,optional"` // OpenAI-compatible endpoint override
}

// Defaults fills in default values for unset fields
func (m *Model) Defaults() {
	if m.Model == "" {
		m.Model = DefaultModels[m.Provider]
	}
}

func (m *Model) Validate() error {
	if _, ok := DefaultModels[m.Provider]; !ok {
		return fmt.Errorf("Unsupported provider; Provider '%s' is not supported", m.Provider)
	}
	if m.BaseURL != "" && m.Provider == ProviderGemini {
		return fmt.Errorf("base_url is not supported for provider '%s'", m.Provider)
	}
	// Only OpenAI-compatible endpoints may run keyless (local model servers).
	if m.APIKey == "" && m.BaseURL == "" && m.Provider != ProviderOpenAI {
		return fmt.Errorf("api_key is required for provider '%s'", m.Provider)
	}
	return nil
}
