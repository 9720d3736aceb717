package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yaroslav/microdc/models"
)

// readinessTimeout bounds the store ping behind /health/ready.
const readinessTimeout = 2 * time.Second

// Pinger checks connectivity to a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
//
// This handler provides liveness and readiness checks for process
// supervisors and load balancers.
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a new health check handler.
//
// Parameters:
//   - store: State Store pinged by readiness checks
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	models.HealthResponse
	Database string `json:"database"`
}

// Liveness handles GET /health/live.
//
// This endpoint always returns 200 OK as long as the HTTP server is running.
func (h *HealthHandler) Liveness(c *gin.Context) {
	respondSuccess(c, http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready.
//
// Returns:
//   - 200 OK if the State Store answers a ping
//   - 503 Service Unavailable otherwise
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respondError(c, http.StatusServiceUnavailable, "unhealthy", "Database unavailable")
		return
	}

	respondSuccess(c, http.StatusOK, ReadinessResponse{
		HealthResponse: models.HealthResponse{
			Status:    "ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Database: "connected",
	})
}
