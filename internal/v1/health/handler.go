// Package health exposes the liveness endpoint clients poll and the
// readiness probe orchestrators gate traffic on.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/peergrid/signaling/internal/v1/logging"
)

// Pinger is the slice of the Redis store the readiness probe needs. Nil means
// the service runs on the in-memory store and is always ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler manages the health check endpoints.
type Handler struct {
	store Pinger
	now   func() time.Time
}

// NewHandler creates a health handler. store may be nil.
func NewHandler(store Pinger) *Handler {
	return &Handler{store: store, now: time.Now}
}

// ReadinessResponse is the readiness probe body.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Now    int64             `json:"now"`
}

// Health handles GET /health. It only proves the process is alive.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":  true,
		"now": h.now().UnixMilli(),
	})
}

// Readiness handles GET /health/ready: 200 when the durable store answers,
// 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"store": "healthy"}
	status := "ready"
	statusCode := http.StatusOK

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			logging.Error(ctx, "Store health check failed", zap.Error(err))
			checks["store"] = "unhealthy"
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, ReadinessResponse{
		Status: status,
		Checks: checks,
		Now:    h.now().UnixMilli(),
	})
}
