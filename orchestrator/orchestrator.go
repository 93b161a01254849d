// Package orchestrator routes a farm question to specialised agents, runs
// them in dependency order and combines their results.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"rabbitry/agent"
	"rabbitry/llm"
	"rabbitry/store"
)

type Options struct {
	LLM llm.Completer
	// Router defaults to a new router over LLM.
	Router *agent.Router
	// Farm is read for owner preferences. Optional.
	Farm store.Tabular
	// History records every query when set.
	History store.HistoryStore
	OwnerID string
	Logger  hclog.Logger
	Events  EventLogger
	Now     func() time.Time
}

// Orchestrator owns the agent registry. It is safe for concurrent queries;
// each query gets its own PipelineState.
type Orchestrator struct {
	router     *agent.Router
	decomposer *agent.Decomposer
	formatter  *Formatter
	farm       store.Tabular
	history    store.HistoryStore
	ownerID    string
	logger     hclog.Logger
	events     EventLogger

	mu     sync.RWMutex
	agents map[string]agent.Agent
	order  []string
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	router := opts.Router
	if router == nil {
		router = agent.NewRouter(opts.LLM, logger.Named("router"))
	}
	events := EventLogger(hclogEvents{logger: logger})
	if opts.Events != nil {
		events = multiEventLogger{events, opts.Events}
	}

	return &Orchestrator{
		router:     router,
		decomposer: agent.NewDecomposer(opts.LLM, logger.Named("decomposer")),
		formatter:  NewFormatter(opts.Now),
		farm:       opts.Farm,
		history:    opts.History,
		ownerID:    opts.OwnerID,
		logger:     logger,
		events:     events,
		agents:     make(map[string]agent.Agent),
	}
}

// RegisterAgent adds a, replacing any agent of the same name, and tells the
// router about it.
func (o *Orchestrator) RegisterAgent(a agent.Agent) {
	name := a.Name()
	o.mu.Lock()
	if _, exists := o.agents[name]; !exists {
		o.order = append(o.order, name)
	}
	o.agents[name] = a
	o.mu.Unlock()

	o.router.RegisterAgent(name, a.Description())
	o.logger.Info("registered agent", "agent", name)
}

// Agents returns registered names in registration order.
func (o *Orchestrator) Agents() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.order...)
}

func (o *Orchestrator) lookup(name string) (agent.Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[name]
	return a, ok
}

func (o *Orchestrator) registered() []agent.Agent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]agent.Agent, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.agents[name])
	}
	return out
}

// Initialize applies the owner's stored preferences and initializes every
// agent concurrently. The first failure is returned.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := o.applyPreferences(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range o.registered() {
		g.Go(func() error {
			if err := a.Initialize(gctx); err != nil {
				return fmt.Errorf("initialize %s agent: %w", a.Name(), err)
			}
			o.logger.Debug("agent initialized", "agent", a.Name())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	o.logger.Info("orchestrator initialized", "agents", o.Agents())
	return nil
}

func (o *Orchestrator) applyPreferences(ctx context.Context) error {
	if o.farm == nil || o.ownerID == "" {
		return nil
	}
	prefs, err := store.LoadPreferences(ctx, o.farm, o.ownerID)
	if err != nil {
		return err
	}
	if prefs == nil {
		o.logger.Debug("no stored preferences, using defaults", "owner", o.ownerID)
		return nil
	}

	for _, a := range o.registered() {
		if aware, ok := a.(agent.PreferenceAware); ok {
			o.RegisterAgent(aware.WithPreferences(*prefs))
		}
	}
	return nil
}

// Query answers one question. It never returns nil.
func (o *Orchestrator) Query(ctx context.Context, query string) *Response {
	resp, _ := o.QueryWithState(ctx, query)
	return resp
}

// QueryWithState is Query that also returns the pipeline state for
// inspection. The state is nil when the query failed before routing.
func (o *Orchestrator) QueryWithState(ctx context.Context, query string) (*Response, *PipelineState) {
	return o.run(ctx, query, nil)
}

// QueryWithEvents is Query with an extra event sink for this query only.
func (o *Orchestrator) QueryWithEvents(ctx context.Context, query string, sink EventLogger) *Response {
	resp, _ := o.run(ctx, query, sink)
	return resp
}

func (o *Orchestrator) run(ctx context.Context, query string, sink EventLogger) (resp *Response, state *PipelineState) {
	queryID := uuid.NewString()
	base := o.events
	if sink != nil {
		base = multiEventLogger{o.events, sink}
	}
	events := WithFields(base, map[string]any{"query_id": queryID})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("query panicked", "query_id", queryID, "panic", r)
			resp = &Response{
				Success:       false,
				QueryID:       queryID,
				Error:         fmt.Sprint(r),
				OriginalQuery: query,
				Agent:         "orchestrator",
			}
		}
		events.LogEvent(EventQueryCompleted, map[string]any{
			"success":     resp.Success,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if state != nil {
			o.complete(ctx, queryID, resp)
		}
	}()

	events.LogEvent(EventQueryStarted, map[string]any{"query": query})
	if err := ctx.Err(); err != nil {
		return o.failure(queryID, query, err), nil
	}

	state = newPipelineState(query)
	state.SelectedAgents = o.router.SelectAgents(ctx, query)
	state.Order = ExecutionOrder(state.SelectedAgents)
	events.LogEvent(EventAgentsSelected, map[string]any{"agents": state.SelectedAgents, "order": state.Order})
	o.record(ctx, queryID, query, state.SelectedAgents)

	o.runPipeline(ctx, state, events)
	for _, name := range state.Order {
		if res, ok := state.Results[name]; ok {
			o.recordAgent(ctx, queryID, res)
		}
	}

	resp = Combine(state)
	resp.QueryID = queryID
	return resp, state
}

func (o *Orchestrator) failure(queryID, query string, err error) *Response {
	return &Response{
		Success:       false,
		QueryID:       queryID,
		Error:         err.Error(),
		OriginalQuery: query,
		Agent:         "orchestrator",
	}
}

// History returns the configured history store, or nil.
func (o *Orchestrator) History() store.HistoryStore {
	return o.history
}

func (o *Orchestrator) record(ctx context.Context, id, query string, agents []string) {
	if o.history == nil {
		return
	}
	if err := o.history.CreateQuery(ctx, id, query, agents); err != nil {
		o.logger.Warn("failed to record query", "query_id", id, "error", err)
	}
}

func (o *Orchestrator) recordAgent(ctx context.Context, id string, res *agent.Result) {
	if o.history == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		o.logger.Warn("failed to encode agent result", "query_id", id, "agent", res.Agent, "error", err)
	}
	rec := store.AgentRecord{
		Agent:       res.Agent,
		Success:     res.Success,
		Error:       res.Error,
		PayloadJSON: string(payload),
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.history.RecordAgentResult(ctx, id, rec); err != nil {
		o.logger.Warn("failed to record agent result", "query_id", id, "agent", res.Agent, "error", err)
	}
}

func (o *Orchestrator) complete(ctx context.Context, id string, resp *Response) {
	if o.history == nil {
		return
	}
	summary := resp.CombinedSummary
	if !resp.Success {
		summary = resp.Error
	}
	if err := o.history.CompleteQuery(ctx, id, resp.Success, summary); err != nil {
		o.logger.Warn("failed to complete query record", "query_id", id, "error", err)
	}
}
