// Package service holds the business rules of the game backend.
//
// LAYERS:
//
//	Handler (HTTP)  → decodes requests, maps errors to status codes
//	Service         → validation, normalization, orchestration
//	Repository      → SQL, constraints, transactions
//
// Services depend on repository interfaces and small collaborator
// interfaces (IdentityVerifier, completion.Client), so every rule here is
// tested with in-memory fakes and no database or network.
//
// Every error a service returns either is, or wraps, an *apperror.AppError.
// Anything else reaching the handler is treated as an internal error.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/macleann/fountainheadapi/internal/apperror"
	"github.com/macleann/fountainheadapi/internal/model"
	"github.com/macleann/fountainheadapi/internal/repository"
)

// StateService reads and writes a player's game document.
//
// THE DOCUMENT:
// Each user owns exactly one JSON document. It is created lazily the first
// time anything touches it, so handlers never need to check for "no row".
// Older clients sometimes send the document wrapped as {"state": {...}};
// model.NormalizeState strips every envelope on the way in, so what is stored
// is exactly what Read serves. Read normalizes too, which repairs rows
// written before that rule existed.
type StateService struct {
	states repository.GameStateRepository
	logger *slog.Logger
}

// NewStateService creates a StateService.
func NewStateService(states repository.GameStateRepository, logger *slog.Logger) *StateService {
	return &StateService{states: states, logger: logger}
}

// Read returns the user's document, creating an empty one ({}) if the user
// has none yet.
func (s *StateService) Read(ctx context.Context, userID string) (*model.GameState, error) {
	gs, err := s.states.GetOrCreate(ctx, userID, model.EmptyState)
	if err != nil {
		return nil, fmt.Errorf("service/state: reading state for user %s: %w", userID, err)
	}
	gs.State = model.NormalizeState(gs.State)
	return gs, nil
}

// Write replaces the user's document with value and returns what was stored.
//
// value must be present and not JSON null, both before and after unwrapping.
// Malformed JSON never reaches here; the handler's decoder rejects it.
func (s *StateService) Write(ctx context.Context, userID string, value json.RawMessage) (*model.GameState, error) {
	if model.IsNullState(value) {
		return nil, apperror.ValidationFailed("game_state", "This field is required.")
	}
	if !json.Valid(value) {
		return nil, apperror.ValidationFailed("game_state", "Must be valid JSON.")
	}

	normalized := model.NormalizeState(value)
	if model.IsNullState(normalized) {
		return nil, apperror.ValidationFailed("game_state", "The wrapped state must not be null.")
	}

	gs, err := s.states.Save(ctx, userID, normalized)
	if err != nil {
		return nil, fmt.Errorf("service/state: saving state for user %s: %w", userID, err)
	}

	s.logger.Debug("game state saved",
		slog.String("userID", userID),
		slog.Int("bytes", len(gs.State)),
	)
	return gs, nil
}

// Clear resets the user's document to {}. The row is created if missing.
func (s *StateService) Clear(ctx context.Context, userID string) error {
	if _, err := s.states.Save(ctx, userID, model.EmptyState); err != nil {
		return fmt.Errorf("service/state: clearing state for user %s: %w", userID, err)
	}
	s.logger.Info("game state cleared", slog.String("userID", userID))
	return nil
}

// Ensure is the login-path variant of Read: a missing document is created
// with {"locations": []}, the shape a fresh game starts from.
func (s *StateService) Ensure(ctx context.Context, userID string) (*model.GameState, error) {
	gs, err := s.states.GetOrCreate(ctx, userID, model.InitialState)
	if err != nil {
		return nil, fmt.Errorf("service/state: ensuring state for user %s: %w", userID, err)
	}
	gs.State = model.NormalizeState(gs.State)
	return gs, nil
}
