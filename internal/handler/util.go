package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/prepwise/mock-interview/internal/apperr"
	"github.com/prepwise/mock-interview/internal/middleware"
	"github.com/prepwise/mock-interview/pkg/logger"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every error reply. Error and Retryable are
// only set for server errors.
type errorResponse struct {
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError maps err to a status and a stable message. Server errors
// also carry the underlying detail and are logged.
func writeAppError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = &apperr.Error{Kind: apperr.KindInternal, Message: "internal server error", Cause: err}
	}

	status := statusFor(appErr.Kind)
	if status < http.StatusInternalServerError {
		writeError(w, status, appErr.Message)
		return
	}

	middleware.RequestLogger(r.Context(), log).Error("request failed",
		zap.String("kind", string(appErr.Kind)),
		zap.Error(err),
	)
	retryable := appErr.Retryable()
	writeJSON(w, status, errorResponse{
		Message:   appErr.Message,
		Error:     err.Error(),
		Retryable: &retryable,
	})
}

// decodeJSON reads a JSON body into v. An empty body is allowed when
// optional is true.
func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}
