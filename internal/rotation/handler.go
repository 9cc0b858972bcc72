package rotation

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/pkg/response"
)

// UsageStore reports per-schedule disk usage for the storage endpoint.
type UsageStore interface {
	StorageUsage(ctx context.Context) ([]models.StreamerUsage, error)
}

// Handler exposes global rotation policy CRUD, on-demand rotation runs
// and storage statistics.
type Handler struct {
	repo         *Repository
	applier      *Applier
	usage        UsageStore
	recordingDir string
	logger       *zap.Logger
}

// NewHandler creates a rotation handler.
func NewHandler(repo *Repository, applier *Applier, usage UsageStore, recordingDir string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, applier: applier, usage: usage, recordingDir: recordingDir, logger: logger}
}

// RegisterRoutes mounts rotation endpoints under /system/rotation.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/system/rotation")
	g.GET("/policies", h.ListPolicies)
	g.POST("/policies", h.CreatePolicy)
	g.GET("/policies/:id", h.GetPolicy)
	g.PUT("/policies/:id", h.UpdatePolicy)
	g.DELETE("/policies/:id", h.DeletePolicy)
	g.POST("/apply", h.Apply)
	g.GET("/storage", h.Storage)
}

// PolicyRequest is the create/update body for a global rotation policy.
type PolicyRequest struct {
	Name             string `json:"name" binding:"required,min=1,max=100"`
	Enabled          bool   `json:"enabled"`
	Priority         int    `json:"priority" binding:"min=0"`
	RotationType     string `json:"rotation_type" binding:"required,oneof=time count size"`
	MaxAgeDays       int    `json:"max_age_days" binding:"min=0"`
	MaxCount         int    `json:"max_count" binding:"min=0"`
	MaxSizeGB        int    `json:"max_size_gb" binding:"min=0"`
	ProtectFavorites *bool  `json:"protect_favorites"`
	DeleteEmptyFiles bool   `json:"delete_empty_files"`
	ExcludePatterns  string `json:"exclude_patterns"`
	MinFileSizeMB    int    `json:"min_file_size_mb" binding:"min=0"`
}

// thresholdError verifies the threshold matching the rotation type is set.
func (req *PolicyRequest) thresholdError() *response.FieldError {
	switch req.RotationType {
	case models.RotationTypeTime:
		if req.MaxAgeDays <= 0 {
			return &response.FieldError{Field: "max_age_days", Msg: "must be positive for time rotation"}
		}
	case models.RotationTypeCount:
		if req.MaxCount <= 0 {
			return &response.FieldError{Field: "max_count", Msg: "must be positive for count rotation"}
		}
	case models.RotationTypeSize:
		if req.MaxSizeGB <= 0 {
			return &response.FieldError{Field: "max_size_gb", Msg: "must be positive for size rotation"}
		}
	}
	return nil
}

func (req *PolicyRequest) toModel(p *models.RotationPolicy) {
	p.Name = req.Name
	p.Enabled = req.Enabled
	p.Priority = req.Priority
	p.RotationType = req.RotationType
	p.MaxAgeDays = req.MaxAgeDays
	p.MaxCount = req.MaxCount
	p.MaxSizeGB = req.MaxSizeGB
	p.ProtectFavorites = req.ProtectFavorites == nil || *req.ProtectFavorites
	p.DeleteEmptyFiles = req.DeleteEmptyFiles
	p.ExcludePatterns = req.ExcludePatterns
	p.MinFileSizeMB = req.MinFileSizeMB
}

// ListPolicies returns all global policies, highest priority first.
func (h *Handler) ListPolicies(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list rotation policies", zap.Error(err))
		response.Internal(c, "failed to list policies")
		return
	}
	response.OK(c, list)
}

// CreatePolicy creates a global rotation policy.
func (h *Handler) CreatePolicy(c *gin.Context) {
	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingFailed(c, err)
		return
	}
	if fe := req.thresholdError(); fe != nil {
		response.ValidationFailed(c, []response.FieldError{*fe})
		return
	}
	var p models.RotationPolicy
	req.toModel(&p)
	if err := h.repo.Create(c.Request.Context(), &p); err != nil {
		h.logger.Error("create rotation policy", zap.Error(err))
		response.Internal(c, "failed to create policy")
		return
	}
	response.Created(c, p)
}

// GetPolicy returns one policy by ID.
func (h *Handler) GetPolicy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid policy id")
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get rotation policy", zap.Error(err))
		response.Internal(c, "failed to get policy")
		return
	}
	if p == nil {
		response.NotFound(c, "policy not found")
		return
	}
	response.OK(c, p)
}

// UpdatePolicy rewrites a policy.
func (h *Handler) UpdatePolicy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid policy id")
		return
	}
	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingFailed(c, err)
		return
	}
	if fe := req.thresholdError(); fe != nil {
		response.ValidationFailed(c, []response.FieldError{*fe})
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get rotation policy", zap.Error(err))
		response.Internal(c, "failed to update policy")
		return
	}
	if p == nil {
		response.NotFound(c, "policy not found")
		return
	}
	req.toModel(p)
	if err := h.repo.Update(c.Request.Context(), p); err != nil {
		h.logger.Error("update rotation policy", zap.Error(err))
		response.Internal(c, "failed to update policy")
		return
	}
	response.OK(c, p)
}

// DeletePolicy removes a policy. Schedules falling back to it simply
// resolve the next enabled policy on their next rotation run.
func (h *Handler) DeletePolicy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid policy id")
		return
	}
	ok, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("delete rotation policy", zap.Error(err))
		response.Internal(c, "failed to delete policy")
		return
	}
	if !ok {
		response.NotFound(c, "policy not found")
		return
	}
	response.NoContent(c)
}

// applyRequest optionally limits an on-demand run to one schedule.
type applyRequest struct {
	ScheduleID *uuid.UUID `json:"schedule_id"`
}

// Apply runs rotation now, for one schedule or for all of them.
func (h *Handler) Apply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.BindingFailed(c, err)
		return
	}
	ctx := c.Request.Context()
	if req.ScheduleID != nil {
		report, err := h.applier.ApplyScheduleID(ctx, *req.ScheduleID)
		if err != nil {
			h.logger.Error("apply rotation", zap.Error(err))
			response.Internal(c, "rotation failed")
			return
		}
		response.OK(c, []Report{*report})
		return
	}
	reports, err := h.applier.ApplyAll(ctx)
	if err != nil {
		h.logger.Error("apply rotation", zap.Error(err))
		response.Internal(c, "rotation failed")
		return
	}
	response.OK(c, reports)
}

// Storage reports volume capacity and per-streamer usage.
func (h *Handler) Storage(c *gin.Context) {
	var fsStat unix.Statfs_t
	stats := models.StorageStats{RecordingDir: h.recordingDir}
	if err := unix.Statfs(h.recordingDir, &fsStat); err != nil {
		h.logger.Warn("statfs failed", zap.String("dir", h.recordingDir), zap.Error(err))
	} else {
		stats.TotalBytes = fsStat.Blocks * uint64(fsStat.Bsize)
		stats.FreeBytes = fsStat.Bavail * uint64(fsStat.Bsize)
		stats.UsedBytes = stats.TotalBytes - fsStat.Bfree*uint64(fsStat.Bsize)
	}
	usage, err := h.usage.StorageUsage(c.Request.Context())
	if err != nil {
		h.logger.Error("storage usage", zap.Error(err))
		response.Internal(c, "failed to aggregate storage usage")
		return
	}
	stats.Streamers = usage
	response.OK(c, stats)
}
