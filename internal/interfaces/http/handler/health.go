package handler

import (
	"context"
	"time"

	"github.com/agrosupply/backend/internal/infrastructure/logger"
	"github.com/agrosupply/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is satisfied by persistence.Database
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports database reachability and the active cache backend
type HealthHandler struct {
	BaseHandler
	db           Pinger
	cacheBackend string
	timeout      time.Duration
}

// HealthStatus is the body of a healthy response
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
	Time     string `json:"time"`
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger, cacheBackend string) *HealthHandler {
	return &HealthHandler{db: db, cacheBackend: cacheBackend, timeout: 2 * time.Second}
}

// Check godoc
// @ID           health
// @Summary      Liveness and database check
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=HealthStatus}
// @Failure      503 {object} dto.Response
// @Router       /health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		h.Error(c, dto.CodeUnavailable, "Database unreachable", nil)
		return
	}
	h.Success(c, HealthStatus{
		Status:   "healthy",
		Database: "ok",
		Cache:    h.cacheBackend,
		Time:     time.Now().UTC().Format(time.RFC3339),
	})
}
