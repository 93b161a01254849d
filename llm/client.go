package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
)

const (
	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
)

// Prompt is a single system + user exchange. Zero Temperature and MaxTokens
// take the client defaults.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Completer returns the raw text of one completion.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Client is the completion client shared by every agent.
type Client struct {
	provider Provider
	model    string
	logger   hclog.Logger
}

func NewClient(provider Provider, model string, logger hclog.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{provider: provider, model: model, logger: logger}
}

// Model returns the model name requests are sent with.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) Complete(ctx context.Context, p Prompt) (string, error) {
	req := &ChatRequest{
		Model:       c.model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
	if req.Temperature == 0 {
		req.Temperature = DefaultTemperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if p.System != "" {
		req.Messages = append(req.Messages, NewTextMessage(RoleSystem, p.System))
	}
	req.Messages = append(req.Messages, NewTextMessage(RoleUser, p.User))

	resp, err := c.provider.Chat(ctx, req)
	if err != nil {
		c.logger.Debug("completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("completion request: %w", err)
	}

	c.logger.Trace("completion", "model", c.model,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return resp.Content, nil
}

// Close releases provider resources when the provider holds any.
func (c *Client) Close() error {
	if closer, ok := c.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
