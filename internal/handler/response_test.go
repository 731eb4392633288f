package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macleann/fountainheadapi/internal/apperror"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", apperror.ValidationFailed("x", "bad"), http.StatusBadRequest, "validation_error"},
		{"conflict is 400", apperror.Conflict("email", "taken"), http.StatusBadRequest, "conflict"},
		{"invalid token is 400", apperror.InvalidToken(errors.New("sig")), http.StatusBadRequest, "invalid_token"},
		{"unauthorized", apperror.Unauthorized("no"), http.StatusUnauthorized, "unauthorized"},
		{"forbidden", apperror.Forbidden("no"), http.StatusForbidden, "forbidden"},
		{"not found", apperror.NotFound("user", "1"), http.StatusNotFound, "not_found"},
		{"service", apperror.ServiceError("down", errors.New("x")), http.StatusInternalServerError, "service_error"},
		{"wrapped", fmt.Errorf("outer: %w", apperror.Conflict("username", "taken")), http.StatusBadRequest, "conflict"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := errorStatus(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantCode, code)
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/game-state", nil)

	writeError(rec, req, logger, errors.New("sqlite: no such table: game_states"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sqlite")
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"omitempty,email"`
	}

	cases := []struct {
		name      string
		input     string
		wantField string
		wantErr   bool
	}{
		{"valid", `{"name":"ada"}`, "", false},
		{"empty body", ``, "", true},
		{"malformed", `{"name":`, "", true},
		{"two objects", `{"name":"a"}{"name":"b"}`, "", true},
		{"missing required", `{}`, "name", true},
		{"bad email", `{"name":"a","email":"nope"}`, "email", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.input))
			var dst body
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tc.wantField, appErr.Field)
		})
	}
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	big := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var dst struct {
		Name string `json:"name"`
	}
	err := decodeJSON(httptest.NewRecorder(), req, &dst)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
