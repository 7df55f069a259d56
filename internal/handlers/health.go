package handlers

import (
	"net/http"
	"time"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/middleware"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   "bookkeeping",
		Timestamp: time.Now().UTC(),
	})
}
