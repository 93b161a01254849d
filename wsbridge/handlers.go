package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rabbitry/store"
	"rabbitry/streamers"
)

var errHistoryDisabled = errors.New("query history is disabled")

func (c *client) handleGetConfig(ctx context.Context, env *Envelope) (*Envelope, error) {
	return NewResponse(env.RequestID, TypeGetConfigResult, c.server.info)
}

// handleQuery acknowledges nothing up front: progress arrives as query_event
// messages and the combined response as query_result, all tagged with the
// request ID.
func (c *client) handleQuery(ctx context.Context, env *Envelope) (*Envelope, error) {
	var payload QueryPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.Query) == "" {
		return nil, errors.New("query is required")
	}

	h := NewWSQueryHandler(c, env.RequestID)
	go func() {
		resp := c.server.orch.QueryWithEvents(ctx, payload.Query, streamers.Events(h))
		h.Result(resp)
	}()
	return nil, nil
}

func (c *client) handleInsights(ctx context.Context, env *Envelope) (*Envelope, error) {
	insights, err := c.server.orch.QuickInsights(ctx)
	if err != nil {
		return nil, fmt.Errorf("insights: %w", err)
	}
	return NewResponse(env.RequestID, TypeInsightsResult, &InsightsResultPayload{Insights: insights})
}

func (c *client) handleHistory(ctx context.Context, env *Envelope) (*Envelope, error) {
	if c.server.history == nil {
		return nil, errHistoryDisabled
	}
	var payload HistoryPayload
	if len(env.Payload) > 0 {
		if err := DecodePayload(env, &payload); err != nil {
			return nil, err
		}
	}
	records, err := c.server.listHistory(ctx, payload.Limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return NewResponse(env.RequestID, TypeHistoryResult, &HistoryResultPayload{Queries: records})
}

func (c *client) handleGetQuery(ctx context.Context, env *Envelope) (*Envelope, error) {
	if c.server.history == nil {
		return nil, errHistoryDisabled
	}
	var payload GetQueryPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, err
	}
	rec, err := c.server.history.GetQuery(ctx, payload.ID)
	if errors.Is(err, store.ErrNotFound) {
		return NewError(env.RequestID, "not_found", fmt.Sprintf("query %q not found", payload.ID))
	}
	if err != nil {
		return nil, fmt.Errorf("get query: %w", err)
	}
	return NewResponse(env.RequestID, TypeGetQueryResult, rec)
}
