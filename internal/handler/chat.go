package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/macleann/fountainheadapi/internal/auth"
	"github.com/macleann/fountainheadapi/internal/model"
	"github.com/macleann/fountainheadapi/internal/service"
)

// ChatService is the subset of service.ChatService used here.
type ChatService interface {
	Converse(ctx context.Context, prior []model.Turn, message string) (*service.ChatResult, error)
}

// ChatHandler relays companion chat. It needs no login.
type ChatHandler struct {
	chat   ChatService
	logger *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chat ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

type chatRequest struct {
	Message             string       `json:"message"`
	ConversationHistory []model.Turn `json:"conversation_history" validate:"dive"`
}

type chatResponse struct {
	Reply               string       `json:"reply"`
	ConversationHistory []model.Turn `json:"conversation_history"`
}

// HandleChat sends one message and returns the reply plus the extended
// transcript. A message that is empty or only whitespace is rejected with
// 400 before the completion service is called.
//
// HTTP: POST /chat {message, conversation_history?} → 200 {reply, conversation_history}
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.chat.Converse(r.Context(), req.ConversationHistory, req.Message)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		h.logger.Debug("chat reply sent",
			slog.String("userID", userID),
			slog.Int("turns", len(res.Transcript)),
		)
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: res.Reply, ConversationHistory: res.Transcript})
}
