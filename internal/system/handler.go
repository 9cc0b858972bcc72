package system

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/scheduler"
	"github.com/streamvault/backend/pkg/response"
)

// Clock is the time authority exposed over /system/time.
type Clock interface {
	Now() time.Time
	Synced() bool
	Offset() time.Duration
}

// Handler exposes runtime configuration endpoints.
type Handler struct {
	repo   *Repository
	clock  Clock
	logger *zap.Logger
}

// NewHandler creates a system handler.
func NewHandler(repo *Repository, clock Clock, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, clock: clock, logger: logger}
}

// RegisterRoutes mounts system endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/system")
	g.GET("/time", h.Time)
	g.GET("/monitoring-interval", h.GetMonitoringInterval)
	g.POST("/monitoring-interval", h.SetMonitoringInterval)
}

// Time returns the authoritative service time. Clients compute their own
// offset against this instead of trusting their local clocks.
func (h *Handler) Time(c *gin.Context) {
	response.OK(c, gin.H{
		"server_time": h.clock.Now().UTC().Format(time.RFC3339Nano),
		"synced":      h.clock.Synced(),
		"offset_ms":   h.clock.Offset().Milliseconds(),
	})
}

// GetMonitoringInterval returns the current liveness-check interval.
func (h *Handler) GetMonitoringInterval(c *gin.Context) {
	sec, err := h.repo.MonitoringIntervalSec(c.Request.Context())
	if err != nil {
		h.logger.Error("read monitoring interval", zap.Error(err))
		response.Internal(c, "failed to read monitoring interval")
		return
	}
	response.OK(c, gin.H{"interval_seconds": sec})
}

type intervalRequest struct {
	IntervalSeconds int `json:"interval_seconds" binding:"required"`
}

// SetMonitoringInterval stores a new liveness-check interval. Takes effect
// on the scheduler's next tick, no restart needed.
func (h *Handler) SetMonitoringInterval(c *gin.Context) {
	var req intervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingFailed(c, err)
		return
	}
	if req.IntervalSeconds < scheduler.MinMonitoringIntervalSec ||
		req.IntervalSeconds > scheduler.MaxMonitoringIntervalSec {
		response.ValidationFailed(c, []response.FieldError{{
			Field: "interval_seconds",
			Msg: fmt.Sprintf("must be between %d and %d",
				scheduler.MinMonitoringIntervalSec, scheduler.MaxMonitoringIntervalSec),
		}})
		return
	}
	if err := h.repo.SetMonitoringIntervalSec(c.Request.Context(), req.IntervalSeconds); err != nil {
		h.logger.Error("set monitoring interval", zap.Error(err))
		response.Internal(c, "failed to set monitoring interval")
		return
	}
	response.OK(c, gin.H{"interval_seconds": req.IntervalSeconds})
}
