package wsbridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"rabbitry/orchestrator"
	"rabbitry/store"
)

// MessageType names a WebSocket envelope.
type MessageType string

const (
	TypeQuery           MessageType = "query"
	TypeQueryEvent      MessageType = "query_event"
	TypeQueryResult     MessageType = "query_result"
	TypeInsights        MessageType = "insights"
	TypeInsightsResult  MessageType = "insights_result"
	TypeHistory         MessageType = "history"
	TypeHistoryResult   MessageType = "history_result"
	TypeGetQuery        MessageType = "get_query"
	TypeGetQueryResult  MessageType = "get_query_result"
	TypeGetConfig       MessageType = "get_config"
	TypeGetConfigResult MessageType = "get_config_result"
	TypeHeartbeat       MessageType = "heartbeat"
	TypeHeartbeatAck    MessageType = "heartbeat_ack"
	TypeError           MessageType = "error"
)

// Envelope is the frame for every WebSocket message. Responses and query
// events carry the request ID they belong to.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type QueryPayload struct {
	Query string `json:"query"`
}

// QueryEventPayload reports pipeline progress for a running query.
type QueryEventPayload struct {
	Event   string `json:"event"`
	Agent   string `json:"agent,omitempty"`
	Query   string `json:"query,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

type InsightsResultPayload struct {
	Insights []orchestrator.Insight `json:"insights"`
}

type HistoryPayload struct {
	Limit int `json:"limit,omitempty"`
}

type HistoryResultPayload struct {
	Queries []store.QueryRecord `json:"queries"`
}

type GetQueryPayload struct {
	ID string `json:"id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(t MessageType, requestID string, payload any) (*Envelope, error) {
	env := &Envelope{Type: t, RequestID: requestID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// NewRequest builds a request with a fresh ID.
func NewRequest(t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, uuid.NewString(), payload)
}

// NewResponse answers the request with requestID.
func NewResponse(requestID string, t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, requestID, payload)
}

// NewEvent builds a one-way message.
func NewEvent(t MessageType, requestID string, payload any) (*Envelope, error) {
	return newEnvelope(t, requestID, payload)
}

func NewError(requestID, code, message string) (*Envelope, error) {
	return newEnvelope(TypeError, requestID, &ErrorPayload{Code: code, Message: message})
}

// DecodePayload unmarshals the envelope payload into v.
func DecodePayload(env *Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
