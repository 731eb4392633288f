package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/macleann/fountainheadapi/internal/auth"
	"github.com/macleann/fountainheadapi/internal/model"
	"github.com/macleann/fountainheadapi/internal/service"
)

// IdentityService is what AuthHandler needs from service.IdentityService.
// Declaring it here lets the handler tests substitute a fake.
type IdentityService interface {
	Login(ctx context.Context, username, password string) (*service.AuthResult, error)
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	LoginWithGoogle(ctx context.Context, idToken string, state json.RawMessage) (*service.AuthResult, error)
	LoginWithGitHub(ctx context.Context, code string, state json.RawMessage) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Profile(ctx context.Context, userID string) (*service.AuthResult, error)
}

// AuthHandler serves the account endpoints: registration, the three login
// paths, token refresh, logout and the current-user profile.
type AuthHandler struct {
	identity IdentityService
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(identity IdentityService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identity: identity, logger: logger}
}

// authResponse is returned by every login path and by GET /user (which
// leaves the token fields empty).
type authResponse struct {
	User      *model.User      `json:"user"`
	GameState *model.GameState `json:"game_state"`
	Access    string           `json:"access,omitempty"`
	Refresh   string           `json:"refresh,omitempty"`
}

func newAuthResponse(res *service.AuthResult) authResponse {
	return authResponse{
		User:      res.User,
		GameState: res.GameState,
		Access:    res.Tokens.Access,
		Refresh:   res.Tokens.Refresh,
	}
}

type registerRequest struct {
	Username  string          `json:"username" validate:"required,max=150"`
	Email     string          `json:"email" validate:"required,email,max=254"`
	Password  string          `json:"password" validate:"required"`
	FirstName string          `json:"firstName" validate:"max=150"`
	LastName  string          `json:"lastName" validate:"max=150"`
	GameState json.RawMessage `json:"game_state"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /register → 201 {user, game_state, access, refresh}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.identity.Register(r.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		State:     req.GameState,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAuthResponse(res))
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin authenticates with username and password.
//
// HTTP: POST /login and POST /token → 200 {user, game_state, access, refresh}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.identity.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

type refreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

// HandleRefresh trades a refresh token for a new access token.
//
// HTTP: POST /token/refresh → 200 {access}
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	access, err := h.identity.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// googleRequest carries the ID token Google Identity Services gave the
// browser. The field name is what the game client sends.
type googleRequest struct {
	CodeResponse string          `json:"codeResponse" validate:"required"`
	GameState    json.RawMessage `json:"game_state"`
}

// HandleGoogle signs in (or up) with a Google ID token.
//
// HTTP: POST /google-authenticate → 200 {user, game_state, access, refresh}
//
// game_state only seeds a brand-new account. An existing account keeps its
// stored document.
func (h *AuthHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.identity.LoginWithGoogle(r.Context(), req.CodeResponse, req.GameState)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

type githubRequest struct {
	Code      string          `json:"code" validate:"required"`
	GameState json.RawMessage `json:"game_state"`
}

// HandleGitHub signs in (or up) with a GitHub OAuth authorization code.
//
// HTTP: POST /github-authenticate → 200 {user, game_state, access, refresh}
func (h *AuthHandler) HandleGitHub(w http.ResponseWriter, r *http.Request) {
	var req githubRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.identity.LoginWithGitHub(r.Context(), req.Code, req.GameState)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

// HandleLogout acknowledges a logout.
//
// HTTP: POST /logout (authenticated)
//
// Tokens are stateless, so there is nothing to revoke server-side: the
// client discards them and the access token dies at its expiry.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		h.logger.Info("user logged out", slog.String("userID", userID))
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Successfully logged out."})
}

// HandleUser returns the authenticated user and their game document.
//
// HTTP: GET /user (authenticated) → 200 {user, game_state}
func (h *AuthHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required."})
		return
	}

	res, err := h.identity.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}
