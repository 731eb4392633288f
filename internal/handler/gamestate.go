package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/macleann/fountainheadapi/internal/auth"
	"github.com/macleann/fountainheadapi/internal/model"
)

// StateService is the subset of service.StateService used here.
type StateService interface {
	Read(ctx context.Context, userID string) (*model.GameState, error)
	Write(ctx context.Context, userID string, value json.RawMessage) (*model.GameState, error)
	Clear(ctx context.Context, userID string) error
}

// GameStateHandler serves the authenticated user's game document. All
// routes sit behind auth.RequireAuth.
type GameStateHandler struct {
	state  StateService
	logger *slog.Logger
}

// NewGameStateHandler creates a GameStateHandler.
func NewGameStateHandler(state StateService, logger *slog.Logger) *GameStateHandler {
	return &GameStateHandler{state: state, logger: logger}
}

// HandleGet returns the document, creating an empty one on first access.
//
// HTTP: GET /game-state → 200 {state, last_updated}
func (h *GameStateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	gs, err := h.state.Read(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

type saveStateRequest struct {
	GameState json.RawMessage `json:"game_state"`
}

// HandleSave replaces the document.
//
// HTTP: POST /game-state {game_state} → 200 {state, last_updated}
func (h *GameStateHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req saveStateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	gs, err := h.state.Write(r.Context(), userID, req.GameState)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

// HandleClear resets the document to {}.
//
// HTTP: POST /game-state/clear → 200 {message}
func (h *GameStateHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.state.Clear(r.Context(), userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Game state cleared successfully"})
}

// userID reads the authenticated user. RequireAuth guarantees it on these
// routes; the 401 only fires if a route is mounted without it.
func (h *GameStateHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required."})
	}
	return id, ok
}
