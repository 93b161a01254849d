package streamers

import (
	"rabbitry/orchestrator"
	"rabbitry/store"
)

// QueryHandler defines the interface for presenting orchestrated queries.
// Different implementations can handle stdout/stdin, websocket, etc.
type QueryHandler interface {
	// Welcome displays the initial message when an interactive session starts
	Welcome(agents []string, modelName string)

	// AwaitClientAnswer prompts for and reads user input
	AwaitClientAnswer() (string, error)

	// Goodbye displays the farewell message when the session ends
	Goodbye()

	// Error displays an error message
	Error(err error)

	// Thinking is called while the router picks agents
	Thinking()

	// AgentStarted is called when the pipeline hands a query to an agent
	AgentStarted(agentName string, query string)

	// AgentCompleted is called when an agent returns
	AgentCompleted(agentName string, success bool, errMsg string)

	// Result presents the combined response
	Result(resp *orchestrator.Response)
}

// InsightsHandler presents dashboard numbers and query history.
type InsightsHandler interface {
	Insights(insights []orchestrator.Insight)
	History(records []store.QueryRecord)
}
