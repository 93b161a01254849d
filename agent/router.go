package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"rabbitry/agent/internal/prompts"
	"rabbitry/llm"
)

// Router picks which agents handle a query.
type Router struct {
	llm    llm.Completer
	logger hclog.Logger

	mu     sync.RWMutex
	agents []prompts.AgentInfo
}

func NewRouter(c llm.Completer, logger hclog.Logger) *Router {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Router{llm: c, logger: logger}
}

// RegisterAgent adds or replaces an agent description.
func (r *Router) RegisterAgent(name, description string) {
	name = strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.agents {
		if r.agents[i].Name == name {
			r.agents[i].Description = description
			return
		}
	}
	r.agents = append(r.agents, prompts.AgentInfo{Name: name, Description: description})
	r.logger.Debug("registered agent", "agent", name)
}

// Available returns the registered name → description table.
func (r *Router) Available() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.agents))
	for _, a := range r.agents {
		out[a.Name] = a.Description
	}
	return out
}

func (r *Router) registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.Name == name {
			return true
		}
	}
	return false
}

var defaultSelection = []string{SQL}

// SelectAgents returns a non-empty, lower-cased list of registered agent
// names in suggested execution order.
func (r *Router) SelectAgents(ctx context.Context, query string) []string {
	r.mu.RLock()
	system := prompts.GetRouterPrompt(r.agents)
	r.mu.RUnlock()

	selected := llm.Extract(ctx, r.llm, llm.Prompt{
		System:      system,
		User:        prompts.RouterUser(query),
		Temperature: 0.1,
		MaxTokens:   100,
	}, r.parseSelection, func() []string {
		r.logger.Debug("agent selection request failed, using default")
		return defaultSelection
	})

	r.logger.Debug("selected agents", "query", query, "agents", selected)
	return append([]string(nil), selected...)
}

// parseSelection never fails: text that is not JSON goes through keyword
// matching instead.
func (r *Router) parseSelection(text string) ([]string, error) {
	var parsed any
	if err := llm.ParseJSON(text, &parsed); err != nil {
		r.logger.Debug("agent selection is not JSON, matching keywords", "response", text)
		return r.validate(r.keywordAgents(text)), nil
	}

	list, ok := parsed.([]any)
	if !ok {
		return defaultSelection, nil
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			names = append(names, s)
		}
	}
	return r.validate(names), nil
}

func (r *Router) keywordAgents(text string) []string {
	lower := strings.ToLower(text)
	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	var agents []string
	if containsAny("sql", "database") {
		agents = append(agents, SQL)
	}
	if containsAny("pdf", "document", "manual") {
		agents = append(agents, PDF)
	}
	if containsAny("weather", "climate", "forecast") {
		agents = append(agents, Weather)
	}
	if r.registered(Vision) && containsAny("vision", "camera") {
		agents = append(agents, Vision)
	}
	return agents
}

// validate lower-cases, drops unknown and repeated names, and falls back
// to sql when nothing is left.
func (r *Router) validate(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if seen[n] || !r.registered(n) {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return defaultSelection
	}
	return out
}

// Decomposer rewrites a multi-intent query into one agent's sub-query.
type Decomposer struct {
	llm    llm.Completer
	logger hclog.Logger
}

func NewDecomposer(c llm.Completer, logger hclog.Logger) *Decomposer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Decomposer{llm: c, logger: logger}
}

var errEmptyCompletion = errors.New("empty completion")

// Decompose returns the part of query relevant to agentName, or query
// unchanged when the request fails.
func (d *Decomposer) Decompose(ctx context.Context, query, agentName string) string {
	sub := llm.Extract(ctx, d.llm, llm.Prompt{
		System:      prompts.GetDecomposePrompt(),
		User:        prompts.DecomposeUser(query, agentName),
		Temperature: 0.1,
		MaxTokens:   200,
	}, func(text string) (string, error) {
		text = strings.TrimSpace(text)
		if text == "" {
			return "", errEmptyCompletion
		}
		return text, nil
	}, func() string {
		d.logger.Debug("query decomposition failed, using original query", "agent", agentName)
		return query
	})

	d.logger.Debug("decomposed query", "agent", agentName, "original", query, "decomposed", sub)
	return sub
}
