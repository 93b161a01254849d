package streamers

import "rabbitry/orchestrator"

// Events adapts pipeline events to handler callbacks.
func Events(h QueryHandler) orchestrator.EventLogger {
	return orchestrator.EventFunc(func(eventType string, data map[string]any) {
		switch eventType {
		case orchestrator.EventQueryStarted:
			h.Thinking()
		case orchestrator.EventAgentStarted:
			h.AgentStarted(str(data["agent"]), str(data["query"]))
		case orchestrator.EventAgentCompleted:
			ok, _ := data["success"].(bool)
			h.AgentCompleted(str(data["agent"]), ok, str(data["error"]))
		}
	})
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
