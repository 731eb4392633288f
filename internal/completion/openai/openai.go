// Package openai implements completion.Client on top of the official
// OpenAI Go SDK.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/macleann/fountainheadapi/internal/completion"
	"github.com/macleann/fountainheadapi/internal/model"
)

// Client calls the chat-completions endpoint.
type Client struct {
	api     sdk.Client
	timeout time.Duration
}

var _ completion.Client = (*Client)(nil)

// New builds a client from cfg. The SDK's automatic retries are turned
// off: a failed completion is reported to the player, who can send the
// message again.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:     sdk.NewClient(opts...),
		timeout: cfg.Timeout,
	}, nil
}

// Complete sends req and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			messages = append(messages, sdk.SystemMessage(m.Content))
		case model.RoleUser:
			messages = append(messages, sdk.UserMessage(m.Content))
		case model.RoleAssistant:
			messages = append(messages, sdk.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}

	// The caller's context may have no deadline.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(req.Model),
		Messages:    messages,
		Temperature: sdk.Float(req.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contained no choices")
	}

	return &completion.Response{
		Reply:    resp.Choices[0].Message.Content,
		Model:    resp.Model,
		Duration: time.Since(start),
	}, nil
}
