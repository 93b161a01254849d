package wsbridge

import (
	"errors"

	"rabbitry/orchestrator"
	"rabbitry/streamers"
)

// WSQueryHandler implements streamers.QueryHandler by sending events over WebSocket
type WSQueryHandler struct {
	client    *client
	requestID string
}

var _ streamers.QueryHandler = (*WSQueryHandler)(nil)

var errInteractive = errors.New("websocket clients send queries as messages")

func NewWSQueryHandler(c *client, requestID string) *WSQueryHandler {
	return &WSQueryHandler{client: c, requestID: requestID}
}

func (h *WSQueryHandler) send(p *QueryEventPayload) {
	env, err := NewEvent(TypeQueryEvent, h.requestID, p)
	if err != nil {
		h.client.logger.Warn("failed to build query event", "error", err)
		return
	}
	h.client.sendEnvelope(env)
}

// Interactive prompts make no sense over a socket.
func (h *WSQueryHandler) Welcome(agents []string, modelName string) {}
func (h *WSQueryHandler) Goodbye()                                  {}

func (h *WSQueryHandler) AwaitClientAnswer() (string, error) {
	return "", errInteractive
}

func (h *WSQueryHandler) Error(err error) {
	env, _ := NewError(h.requestID, "query_error", err.Error())
	h.client.sendEnvelope(env)
}

func (h *WSQueryHandler) Thinking() {
	h.send(&QueryEventPayload{Event: orchestrator.EventQueryStarted})
}

func (h *WSQueryHandler) AgentStarted(agentName string, query string) {
	h.send(&QueryEventPayload{Event: orchestrator.EventAgentStarted, Agent: agentName, Query: query})
}

func (h *WSQueryHandler) AgentCompleted(agentName string, success bool, errMsg string) {
	h.send(&QueryEventPayload{
		Event:   orchestrator.EventAgentCompleted,
		Agent:   agentName,
		Success: &success,
		Error:   errMsg,
	})
}

func (h *WSQueryHandler) Result(resp *orchestrator.Response) {
	env, err := NewResponse(h.requestID, TypeQueryResult, resp)
	if err != nil {
		h.Error(err)
		return
	}
	h.client.sendEnvelope(env)
}
