package handler

// RESPONSE HELPERS:
// Every handler ends in writeJSON or writeError so that all responses share
// one content type and errors share one shape:
//
//	{"error": "conflict", "message": "A user with this email already exists.", "field": "email"}
//
// "error" is a stable machine-readable code, "message" is safe to show to
// the player, and "field" (optional) names the offending input.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/macleann/fountainheadapi/internal/apperror"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set afterwards is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to its HTTP status and error code.
//
// Conflicts and invalid third-party tokens are 400, not 409/401: the game
// client treats every 400 as "show the message to the player", and only a
// 401 as "your session is gone, log in again".
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest, "conflict"
	case errors.Is(err, apperror.ErrInvalidToken):
		return http.StatusBadRequest, "invalid_token"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrService):
		return http.StatusInternalServerError, "service_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError translates err into an ErrorResponse.
//
// Only *AppError messages are ever shown to the client. Anything else could
// contain SQL, file paths or upstream responses, so it is logged with the
// request ID and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := errorStatus(err)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error",
			slog.String("requestID", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("requestID", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}
