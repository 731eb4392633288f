package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/macleann/fountainheadapi/internal/apperror"
	"github.com/macleann/fountainheadapi/internal/completion"
	"github.com/macleann/fountainheadapi/internal/model"
)

// ChatConfig controls the in-game companion conversation.
type ChatConfig struct {
	SystemPrompt string
	Model        string
	Temperature  float64
}

// ChatResult is one exchange: the reply and the transcript the client
// should send back next time.
type ChatResult struct {
	Reply      string
	Transcript []model.Turn
}

// ChatService relays a player's message to the completion model.
//
// STATELESS:
// The server keeps no conversation. The client sends its transcript with
// every message and gets it back extended by exactly two turns (its message
// and the reply). The system prompt is prepended on every call and never
// appears in the returned transcript.
type ChatService struct {
	client completion.Client
	cfg    ChatConfig
	logger *slog.Logger
}

// NewChatService creates a ChatService.
func NewChatService(client completion.Client, cfg ChatConfig, logger *slog.Logger) *ChatService {
	return &ChatService{client: client, cfg: cfg, logger: logger}
}

// Converse sends message with the prior transcript and returns the reply.
//
// An empty message is rejected before any upstream call. Upstream failures
// become a generic ServiceError; the cause is logged, not returned to the
// player.
func (s *ChatService) Converse(ctx context.Context, prior []model.Turn, message string) (*ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperror.ValidationFailed("message", "No message provided.")
	}

	messages := make([]model.Turn, 0, len(prior)+2)
	if s.cfg.SystemPrompt != "" {
		messages = append(messages, model.Turn{Role: model.RoleSystem, Content: s.cfg.SystemPrompt})
	}
	messages = append(messages, prior...)
	userTurn := model.Turn{Role: model.RoleUser, Content: message}
	messages = append(messages, userTurn)

	start := time.Now()
	resp, err := s.client.Complete(ctx, completion.Request{
		Messages:    messages,
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		s.logger.Error("chat completion failed",
			slog.String("model", s.cfg.Model),
			slog.Int("turns", len(prior)),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, apperror.ServiceError("The companion is unavailable right now. Please try again.", err)
	}

	s.logger.Debug("chat completion",
		slog.String("model", s.cfg.Model),
		slog.Int("turns", len(prior)),
		slog.Duration("duration", time.Since(start)),
	)

	transcript := make([]model.Turn, 0, len(prior)+2)
	transcript = append(transcript, prior...)
	transcript = append(transcript, userTurn, model.Turn{Role: model.RoleAssistant, Content: resp.Reply})

	return &ChatResult{Reply: resp.Reply, Transcript: transcript}, nil
}
