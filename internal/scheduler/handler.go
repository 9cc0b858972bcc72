package scheduler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/pkg/response"
)

// AuthorityClock is the time authority as seen by the HTTP surface.
type AuthorityClock interface {
	Now() time.Time
	Synced() bool
	Offset() time.Duration
}

// Handler exposes the monitor loop over HTTP.
type Handler struct {
	scheduler *Scheduler
	lifecycle *Lifecycle
	clock     AuthorityClock
	logger    *zap.Logger
}

// NewHandler creates a scheduler handler.
func NewHandler(sched *Scheduler, lifecycle *Lifecycle, clock AuthorityClock, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{scheduler: sched, lifecycle: lifecycle, clock: clock, logger: logger}
}

// RegisterRoutes mounts scheduler endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/scheduler")
	g.GET("/status", h.Status)
	g.GET("/active-recordings", h.ActiveRecordings)
	g.POST("/check-now", h.CheckNow)
	g.POST("/stop-all-recordings", h.StopAll)
	g.POST("/active-recordings/:scheduleId/stop", h.StopOne)
}

// Status reports the loop and clock state.
func (h *Handler) Status(c *gin.Context) {
	response.OK(c, gin.H{
		"running":             h.scheduler.Running(),
		"monitored_schedules": h.scheduler.Monitored(),
		"interval_seconds":    h.scheduler.IntervalSec(c.Request.Context()),
		"active_recordings":   len(h.lifecycle.Active()),
		"last_tick":           h.scheduler.LastTick(),
		"clock_synced":        h.clock.Synced(),
		"clock_offset_ms":     h.clock.Offset().Milliseconds(),
	})
}

type activeRecordingView struct {
	*ActiveRecording
	DurationSec int `json:"duration_sec"`
}

// ActiveRecordings lists in-flight captures with durations computed from
// the authoritative clock.
func (h *Handler) ActiveRecordings(c *gin.Context) {
	now := h.clock.Now()
	active := h.lifecycle.Active()
	views := make([]activeRecordingView, 0, len(active))
	for _, a := range active {
		dur := int(now.Sub(a.StartTime).Seconds())
		if dur < 0 {
			dur = 0
		}
		views = append(views, activeRecordingView{ActiveRecording: a, DurationSec: dur})
	}
	response.OK(c, views)
}

// CheckNow triggers one monitoring pass immediately. The pass runs in the
// background; the request does not wait for it.
func (h *Handler) CheckNow(c *gin.Context) {
	go h.scheduler.Tick(context.Background())
	response.OK(c, gin.H{"triggered": true})
}

// StopAll stops every running capture. The loop skips its next tick so the
// stopped streams are not picked straight back up.
func (h *Handler) StopAll(c *gin.Context) {
	stopped := h.scheduler.StopAll(c.Request.Context())
	response.OK(c, gin.H{"stopped": stopped})
}

// StopOne stops the capture for a single schedule.
func (h *Handler) StopOne(c *gin.Context) {
	id, err := uuid.Parse(c.Param("scheduleId"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	if !h.lifecycle.HasActive(id) {
		response.NotFound(c, "no active recording for schedule")
		return
	}
	if err := h.lifecycle.StopRecording(c.Request.Context(), id); err != nil {
		h.logger.Error("stop recording", zap.Error(err))
		response.Internal(c, "failed to stop recording")
		return
	}
	response.OK(c, gin.H{"stopping": true})
}
