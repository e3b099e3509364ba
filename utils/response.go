package utils

import (
	"encoding/json"
	"net/http"

	"l3v3l_server/errs"
	"l3v3l_server/logger"

	"go.uber.org/zap"
)

// WriteJSON writes v as the response body with status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("⚠️ failed to encode response", zap.Error(err))
	}
}

// WriteError renders err as {"error": code, "message": text}. Internal
// errors are logged and their cause is not returned to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("❌ request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	WriteJSON(w, status, map[string]string{
		"error":   string(errs.CodeOf(err)),
		"message": errs.Message(err),
	})
}
