package orchestrator

import "github.com/hashicorp/go-hclog"

// Pipeline event types.
const (
	EventQueryStarted   = "query_started"
	EventAgentsSelected = "agents_selected"
	EventAgentStarted   = "agent_started"
	EventAgentCompleted = "agent_completed"
	EventQueryCompleted = "query_completed"
)

// EventLogger receives structured pipeline events as a query runs.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any)
}

// EventFunc adapts a function to EventLogger.
type EventFunc func(eventType string, data map[string]any)

func (f EventFunc) LogEvent(eventType string, data map[string]any) {
	f(eventType, data)
}

// contextEventLogger wraps an EventLogger and adds context fields to every event
type contextEventLogger struct {
	inner  EventLogger
	fields map[string]any
}

// WithFields returns a logger that merges fields into every event. Event
// data wins on key collisions.
func WithFields(inner EventLogger, fields map[string]any) EventLogger {
	return &contextEventLogger{inner: inner, fields: fields}
}

func (l *contextEventLogger) LogEvent(eventType string, data map[string]any) {
	merged := make(map[string]any, len(l.fields)+len(data))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	l.inner.LogEvent(eventType, merged)
}

// multiEventLogger fans events out to several loggers.
type multiEventLogger []EventLogger

func (m multiEventLogger) LogEvent(eventType string, data map[string]any) {
	for _, l := range m {
		l.LogEvent(eventType, data)
	}
}

// hclogEvents writes events to a structured logger at debug level.
type hclogEvents struct {
	logger hclog.Logger
}

func (h hclogEvents) LogEvent(eventType string, data map[string]any) {
	args := make([]any, 0, 2*len(data)+2)
	args = append(args, "event", eventType)
	for k, v := range data {
		args = append(args, k, v)
	}
	h.logger.Debug("pipeline event", args...)
}
