package handlers

import (
	"net/http"
	"time"
)

// HealthHandler responds with service health information.
type HealthHandler struct {
	NowFunc func() time.Time
}

type healthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Handle implements GET /health.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	if h.NowFunc != nil {
		now = h.NowFunc()
	}

	respondJSON(r.Context(), w, http.StatusOK, healthResponse{
		Status:    "OK",
		Message:   "Server is running",
		Timestamp: now,
	})
}
