// Package response writes the JSON bodies shared by every HTTP handler.
package response

import (
	"encoding/json"
	"net/http"

	"fundify-chat/internal/logger"
)

// Error bodies keep the {message} shape the frontend already reads.
type Error struct {
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logger.Ctx(r.Context())
		l.Warn().Err(err).Msg("failed to encode response")
	}
}

func OK(w http.ResponseWriter, r *http.Request, v any) {
	JSON(w, r, http.StatusOK, v)
}

func Created(w http.ResponseWriter, r *http.Request, v any) {
	JSON(w, r, http.StatusCreated, v)
}

func BadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	JSON(w, r, http.StatusBadRequest, Error{Message: msg})
}

func Unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	JSON(w, r, http.StatusUnauthorized, Error{Message: msg})
}

func Forbidden(w http.ResponseWriter, r *http.Request, msg string) {
	JSON(w, r, http.StatusForbidden, Error{Message: msg})
}

func NotFound(w http.ResponseWriter, r *http.Request, msg string) {
	JSON(w, r, http.StatusNotFound, Error{Message: msg})
}

// InternalError logs err with the request logger and hides it from the client.
func InternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	l := logger.Ctx(r.Context())
	l.Error().Err(err).Msg(msg)
	JSON(w, r, http.StatusInternalServerError, Error{Message: msg})
}
