package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config holds all configuration
type Config struct {
	Variables []Variable
	Models    []Model
	Agents    []AgentConfig

	Farm     *FarmConfig
	Weather  *WeatherConfig
	Storage  *StorageConfig
	SQLAgent *SQLAgentConfig
	Vision   *VisionConfig
	Server   *ServerConfig

	// ResolvedVars holds the resolved variable values for runtime use
	ResolvedVars map[string]cty.Value
}

// Default returns a configuration with no config files: one OpenAI model
// keyed from OPENAI_API_KEY and defaults for every block.
func Default() *Config {
	cfg := &Config{
		Models: []Model{{
			Name:     "default",
			Provider: ProviderOpenAI,
			APIKey:   os.Getenv("OPENAI_API_KEY"),
		}},
		ResolvedVars: map[string]cty.Value{},
	}
	cfg.Models[0].Defaults()
	cfg.applyDefaults()
	return cfg
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model block is required")
	}
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model '%s': %w", m.Name, err)
		}
	}

	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable '%s': %w", v.Name, err)
		}
	}

	seen := make(map[string]bool)
	for _, a := range c.Agents {
		if seen[a.Name] {
			return fmt.Errorf("agent '%s': declared more than once", a.Name)
		}
		seen[a.Name] = true
		if err := a.Validate(c.Models); err != nil {
			return fmt.Errorf("agent '%s': %w", a.Name, err)
		}
	}

	if err := c.Farm.Validate(); err != nil {
		return fmt.Errorf("farm: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.SQLAgent.Validate(); err != nil {
		return fmt.Errorf("sql_agent: %w", err)
	}
	if err := c.Vision.Validate(); err != nil {
		return fmt.Errorf("vision: %w", err)
	}

	return nil
}

// DefaultModel returns the model named "default", or the first model.
func (c *Config) DefaultModel() *Model {
	for i := range c.Models {
		if c.Models[i].Name == "default" {
			return &c.Models[i]
		}
	}
	if len(c.Models) == 0 {
		return nil
	}
	return &c.Models[0]
}

// ModelFor returns the model an agent should use.
func (c *Config) ModelFor(agentName string) *Model {
	if a := c.Agent(agentName); a != nil && a.Model != "" {
		for i := range c.Models {
			if c.Models[i].Name == a.Model {
				return &c.Models[i]
			}
		}
	}
	return c.DefaultModel()
}

// Agent returns the agent block for name, if any.
func (c *Config) Agent(name string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].Name == name {
			return &c.Agents[i]
		}
	}
	return nil
}

// AgentEnabled reports whether an agent should be registered. Agents without
// a block are enabled.
func (c *Config) AgentEnabled(name string) bool {
	a := c.Agent(name)
	return a == nil || a.Enabled == nil || *a.Enabled
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	return loadFromFiles(files)
}

// parsedBlocks holds all blocks extracted from a file in one pass
type parsedBlocks struct {
	Variables []*hcl.Block
	Models    []*hcl.Block
	Agents    []*hcl.Block
	Settings  []*hcl.Block
}

var settingsBlocks = []string{"farm", "weather", "storage", "sql_agent", "vision", "server"}

// loadFromFiles implements staged loading: variables → models → agents and settings
func loadFromFiles(files []string) (*Config, error) {
	parser := hclparse.NewParser()
	var allParsedBlocks []parsedBlocks

	schema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "variable", LabelNames: []string{"name"}},
			{Type: "model", LabelNames: []string{"name"}},
			{Type: "agent", LabelNames: []string{"name"}},
		},
	}
	for _, name := range settingsBlocks {
		schema.Blocks = append(schema.Blocks, hcl.BlockHeaderSchema{Type: name})
	}

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", file, diags)
		}

		content, _, diags := hclFile.Body.PartialContent(schema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("partial content %s: %w", file, diags)
		}

		var pb parsedBlocks
		for _, block := range content.Blocks {
			switch block.Type {
			case "variable":
				pb.Variables = append(pb.Variables, block)
			case "model":
				pb.Models = append(pb.Models, block)
			case "agent":
				pb.Agents = append(pb.Agents, block)
			default:
				pb.Settings = append(pb.Settings, block)
			}
		}
		allParsedBlocks = append(allParsedBlocks, pb)
	}

	// Stage 1: Load variables (no context needed)
	var allVars []Variable
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Variables {
			var v Variable
			v.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, nil, &v)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode variable %s: %w", v.Name, diags)
			}
			allVars = append(allVars, v)
		}
	}

	varsCtx, resolvedVars := buildVarsContext(allVars)

	// Stage 2: Load models (with vars context)
	var allModels []Model
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Models {
			var m Model
			m.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, varsCtx, &m)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode model %s: %w", m.Name, diags)
			}
			m.Defaults()
			allModels = append(allModels, m)
		}
	}

	modelsCtx := buildModelsContext(varsCtx, allModels)

	cfg := &Config{
		Variables:    allVars,
		Models:       allModels,
		ResolvedVars: resolvedVars,
	}

	// Stage 3: Load agents and settings blocks (with vars + models context)
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Agents {
			var a AgentConfig
			a.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &a)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode agent %s: %w", a.Name, diags)
			}
			cfg.Agents = append(cfg.Agents, a)
		}
		for _, block := range pb.Settings {
			if err := cfg.decodeSettings(block, modelsCtx); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// decodeSettings decodes one unlabeled settings block; each may appear once.
func (c *Config) decodeSettings(block *hcl.Block, ctx *hcl.EvalContext) error {
	var target any
	switch block.Type {
	case "farm":
		if c.Farm != nil {
			return fmt.Errorf("duplicate farm block")
		}
		c.Farm = &FarmConfig{}
		target = c.Farm
	case "weather":
		if c.Weather != nil {
			return fmt.Errorf("duplicate weather block")
		}
		c.Weather = &WeatherConfig{}
		target = c.Weather
	case "storage":
		if c.Storage != nil {
			return fmt.Errorf("duplicate storage block")
		}
		c.Storage = &StorageConfig{}
		target = c.Storage
	case "sql_agent":
		if c.SQLAgent != nil {
			return fmt.Errorf("duplicate sql_agent block")
		}
		c.SQLAgent = &SQLAgentConfig{}
		target = c.SQLAgent
	case "vision":
		if c.Vision != nil {
			return fmt.Errorf("duplicate vision block")
		}
		c.Vision = &VisionConfig{}
		target = c.Vision
	case "server":
		if c.Server != nil {
			return fmt.Errorf("duplicate server block")
		}
		c.Server = &ServerConfig{}
		target = c.Server
	default:
		return fmt.Errorf("unknown block type %q", block.Type)
	}

	if diags := gohcl.DecodeBody(block.Body, ctx, target); diags.HasErrors() {
		return fmt.Errorf("decode %s: %w", block.Type, diags)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Farm == nil {
		c.Farm = &FarmConfig{}
	}
	if c.Weather == nil {
		c.Weather = &WeatherConfig{}
	}
	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if c.SQLAgent == nil {
		c.SQLAgent = &SQLAgentConfig{}
	}
	if c.Vision == nil {
		c.Vision = &VisionConfig{}
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	c.Farm.Defaults()
	c.Weather.Defaults()
	c.Storage.Defaults()
	c.SQLAgent.Defaults()
	c.Vision.Defaults()
	c.Server.Defaults()
}

// buildVarsContext creates context with just vars
func buildVarsContext(vars []Variable) (*hcl.EvalContext, map[string]cty.Value) {
	varsMap := make(map[string]cty.Value)
	var stored map[string]string
	if vs, err := DefaultVarStore(); err == nil {
		stored, _ = vs.Load()
	}
	for _, v := range vars {
		varsMap[v.Name] = cty.StringVal(resolveVar(stored, &v))
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"vars": cty.ObjectVal(varsMap),
		},
	}, varsMap
}

// buildModelsContext adds models.<name> references to existing context
func buildModelsContext(ctx *hcl.EvalContext, models []Model) *hcl.EvalContext {
	modelsMap := make(map[string]cty.Value)
	for _, m := range models {
		modelsMap[m.Name] = cty.StringVal(m.Name)
	}

	newVars := make(map[string]cty.Value)
	for k, v := range ctx.Variables {
		newVars[k] = v
	}
	newVars["models"] = cty.ObjectVal(modelsMap)

	return &hcl.EvalContext{
		Variables: newVars,
	}
}
