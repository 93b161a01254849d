package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"rabbitry/agent"
	"rabbitry/config"
	"rabbitry/llm"
	"rabbitry/orchestrator"
	"rabbitry/store"
	"rabbitry/weather"
)

// app is everything a command needs once config is loaded.
type app struct {
	cfg    *config.Config
	stores *store.Bundle
	orch   *orchestrator.Orchestrator
	logger hclog.Logger
	model  string

	clients []*llm.Client
}

// loadConfig reads path; a directory without any .hcl files falls back to
// the built-in defaults.
func loadConfig(path string, logger hclog.Logger) (*config.Config, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		files, _ := filepath.Glob(filepath.Join(path, "*.hcl"))
		if len(files) == 0 {
			logger.Debug("no config files found, using defaults", "path", path)
			cfg := config.Default()
			return cfg, cfg.Validate()
		}
	}
	return config.LoadAndValidate(path)
}

// newApp wires config, storage, models and agents, then initializes the
// orchestrator.
func newApp(ctx context.Context) (*app, error) {
	logger := newLogger()
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	stores, err := store.NewBundle(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, stores: stores, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	clients := map[string]*llm.Client{}
	completer := func(agentName string) (*llm.Client, error) {
		m := cfg.ModelFor(agentName)
		if m == nil {
			return nil, fmt.Errorf("no model configured")
		}
		if c, ok := clients[m.Name]; ok {
			return c, nil
		}
		provider, err := llm.NewProvider(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
		c := llm.NewClient(provider, m.Model, a.logger.Named("llm"))
		clients[m.Name] = c
		a.clients = append(a.clients, c)
		return c, nil
	}

	primary, err := completer("")
	if err != nil {
		return err
	}
	a.model = primary.Model()

	a.orch = orchestrator.New(orchestrator.Options{
		LLM:     primary,
		Farm:    a.stores.Farm,
		History: a.stores.History,
		OwnerID: cfg.Farm.OwnerID,
		Logger:  a.logger.Named("orchestrator"),
	})

	for _, name := range config.KnownAgents {
		if !cfg.AgentEnabled(name) {
			a.logger.Info("agent disabled", "agent", name)
			continue
		}
		c, err := completer(name)
		if err != nil {
			return err
		}
		ag, err := a.buildAgent(name, c)
		if err != nil {
			return err
		}
		a.orch.RegisterAgent(ag)
	}

	if err := a.orch.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

func (a *app) buildAgent(name string, c llm.Completer) (agent.Agent, error) {
	cfg := a.cfg
	logger := a.logger.Named("agent." + name)
	switch name {
	case agent.SQL:
		dialect := "PostgreSQL"
		if cfg.Storage.Backend == "sqlite" {
			dialect = "SQLite"
		}
		return agent.NewSQLAgent(agent.SQLOptions{
			LLM:       c,
			Farm:      a.stores.Farm,
			Execution: cfg.SQLAgent.Execution,
			OwnerID:   cfg.Farm.OwnerID,
			Dialect:   dialect,
			Logger:    logger,
		}), nil
	case agent.Weather:
		// The client is built even without a key so owner keys can be applied per query.
		client, err := weather.NewClient(weather.Options{
			APIKey:    cfg.Weather.APIKey,
			BaseURL:   cfg.Weather.BaseURL,
			CacheSize: cfg.Weather.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		if !client.HasKey() {
			logger.Warn("no weather api key configured, using mock data unless the owner sets one")
		}
		return agent.NewWeatherAgent(agent.WeatherOptions{
			LLM:             c,
			Client:          client,
			DefaultLocation: cfg.Farm.DefaultLocation,
			TemperatureUnit: cfg.Farm.TemperatureUnit,
			Logger:          logger,
		}), nil
	case agent.PDF:
		return agent.NewDocumentAgent(agent.DocumentOptions{
			LLM:       c,
			Documents: a.stores.Farm,
			Logger:    logger,
		}), nil
	case agent.Vision:
		return agent.NewVisionAgent(agent.VisionOptions{
			LLM:                 c,
			Events:              a.stores.Farm,
			DefaultLimit:        cfg.Vision.DefaultLimit,
			ConfidenceThreshold: cfg.Vision.ConfidenceThreshold,
			Logger:              logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown agent %q", name)
	}
}

func (a *app) Close() {
	for _, c := range a.clients {
		c.Close()
	}
	if a.stores != nil {
		a.stores.Close()
	}
}
