package handlers

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/streamsafe/backend/internal/logging"
)

type messageResponse struct {
	Message string `json:"message"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, messageResponse{Message: message})
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondMessage(r.Context(), w, http.StatusNotFound, "Route not found")
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondMessage(r.Context(), w, http.StatusMethodNotAllowed, "Method not allowed")
}
