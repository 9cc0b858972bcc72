// Package schedules manages the set of monitored streamers.
package schedules

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/capture"
	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/internal/platform"
	"github.com/streamvault/backend/pkg/response"
)

// ActiveSessions answers whether a schedule currently has a capture running.
type ActiveSessions interface {
	HasActive(scheduleID uuid.UUID) bool
}

// Handler exposes schedule CRUD.
type Handler struct {
	repo     *Repository
	sessions ActiveSessions
	logger   *zap.Logger
}

// NewHandler creates a schedule handler. sessions may be nil in tests.
func NewHandler(repo *Repository, sessions ActiveSessions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, sessions: sessions, logger: logger}
}

// RegisterRoutes mounts schedule endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/schedules")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/toggle", h.Toggle)
}

// ScheduleRequest is the create/update body for a schedule.
type ScheduleRequest struct {
	Platform         string `json:"platform" binding:"required"`
	StreamerID       string `json:"streamer_id" binding:"required,min=1,max=100"`
	StreamerName     string `json:"streamer_name" binding:"required,min=1,max=100"`
	Quality          string `json:"quality"`
	CustomArguments  string `json:"custom_arguments"`
	OutputFormat     string `json:"output_format" binding:"omitempty,oneof=mp4 ts mkv"`
	FilenameTemplate string `json:"filename_template"`
	Enabled          *bool  `json:"enabled"`
	CreatedBy        string `json:"created_by"`

	RotationEnabled  bool   `json:"rotation_enabled"`
	RotationType     string `json:"rotation_type" binding:"omitempty,oneof=time count size"`
	MaxAgeDays       int    `json:"max_age_days" binding:"min=0"`
	MaxCount         int    `json:"max_count" binding:"min=0"`
	MaxSizeGB        int    `json:"max_size_gb" binding:"min=0"`
	ProtectFavorites *bool  `json:"protect_favorites"`
	DeleteEmptyFiles *bool  `json:"delete_empty_files"`
}

// fieldErrors applies the cross-field rules binding tags cannot express.
func (req *ScheduleRequest) fieldErrors() []response.FieldError {
	var fields []response.FieldError
	if !platform.Supported(strings.ToLower(req.Platform)) {
		fields = append(fields, response.FieldError{
			Field: "platform",
			Msg:   "must be one of: " + strings.Join(platform.Names(), ", "),
		})
	}
	if req.FilenameTemplate != "" {
		if _, err := capture.NewFilenameTemplate(req.FilenameTemplate); err != nil {
			fields = append(fields, response.FieldError{Field: "filename_template", Msg: err.Error()})
		}
	}
	if req.RotationEnabled {
		switch req.RotationType {
		case models.RotationTypeTime:
			if req.MaxAgeDays <= 0 {
				fields = append(fields, response.FieldError{Field: "max_age_days", Msg: "must be positive for time rotation"})
			}
		case models.RotationTypeCount:
			if req.MaxCount <= 0 {
				fields = append(fields, response.FieldError{Field: "max_count", Msg: "must be positive for count rotation"})
			}
		case models.RotationTypeSize:
			if req.MaxSizeGB <= 0 {
				fields = append(fields, response.FieldError{Field: "max_size_gb", Msg: "must be positive for size rotation"})
			}
		default:
			fields = append(fields, response.FieldError{Field: "rotation_type", Msg: "required when rotation is enabled"})
		}
	}
	return fields
}

func (req *ScheduleRequest) toModel(s *models.Schedule) {
	s.Platform = strings.ToLower(req.Platform)
	s.StreamerID = req.StreamerID
	s.StreamerName = req.StreamerName
	s.Quality = req.Quality
	if s.Quality == "" {
		s.Quality = "best"
	}
	s.CustomArguments = req.CustomArguments
	s.OutputFormat = req.OutputFormat
	if s.OutputFormat == "" {
		s.OutputFormat = "mp4"
	}
	s.FilenameTemplate = req.FilenameTemplate
	if s.FilenameTemplate == "" {
		s.FilenameTemplate = capture.DefaultFilenameTemplate
	}
	s.Enabled = req.Enabled == nil || *req.Enabled
	s.RotationEnabled = req.RotationEnabled
	s.RotationType = req.RotationType
	s.MaxAgeDays = req.MaxAgeDays
	s.MaxCount = req.MaxCount
	s.MaxSizeGB = req.MaxSizeGB
	s.ProtectFavorites = req.ProtectFavorites == nil || *req.ProtectFavorites
	s.DeleteEmptyFiles = req.DeleteEmptyFiles == nil || *req.DeleteEmptyFiles
}

// List returns all schedules.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list schedules", zap.Error(err))
		response.Internal(c, "failed to list schedules")
		return
	}
	response.OK(c, list)
}

// Create registers a new monitored streamer.
func (h *Handler) Create(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingFailed(c, err)
		return
	}
	if fields := req.fieldErrors(); len(fields) > 0 {
		response.ValidationFailed(c, fields)
		return
	}
	var s models.Schedule
	req.toModel(&s)
	s.CreatedBy = req.CreatedBy
	if err := h.repo.Create(c.Request.Context(), &s); err != nil {
		if errors.Is(err, ErrDuplicate) {
			response.Conflict(c, "streamer is already monitored on this platform")
			return
		}
		h.logger.Error("create schedule", zap.Error(err))
		response.Internal(c, "failed to create schedule")
		return
	}
	response.Created(c, s)
}

// Get returns one schedule.
func (h *Handler) Get(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, s)
}

// Update rewrites a schedule. An active capture keeps running under the old
// settings; the next capture picks up the new ones.
func (h *Handler) Update(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingFailed(c, err)
		return
	}
	if fields := req.fieldErrors(); len(fields) > 0 {
		response.ValidationFailed(c, fields)
		return
	}
	req.toModel(s)
	if err := h.repo.Update(c.Request.Context(), s); err != nil {
		if errors.Is(err, ErrDuplicate) {
			response.Conflict(c, "streamer is already monitored on this platform")
			return
		}
		h.logger.Error("update schedule", zap.Error(err))
		response.Internal(c, "failed to update schedule")
		return
	}
	response.OK(c, s)
}

// Delete removes a schedule. Refused while a capture is in flight so the
// active recording keeps a valid parent; stop the recording first.
func (h *Handler) Delete(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	if h.sessions != nil && h.sessions.HasActive(s.ID) {
		response.Conflict(c, "schedule has an active recording; stop it first")
		return
	}
	deleted, err := h.repo.Delete(c.Request.Context(), s.ID)
	if err != nil {
		h.logger.Error("delete schedule", zap.Error(err))
		response.Internal(c, "failed to delete schedule")
		return
	}
	if !deleted {
		response.NotFound(c, "schedule not found")
		return
	}
	response.NoContent(c)
}

// Toggle flips the enabled flag. Disabling does not abort an in-flight
// capture; the monitor loop simply stops starting new ones.
func (h *Handler) Toggle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get schedule", zap.Error(err))
		response.Internal(c, "failed to toggle schedule")
		return
	}
	if s == nil {
		response.NotFound(c, "schedule not found")
		return
	}
	updated, err := h.repo.SetEnabled(c.Request.Context(), id, !s.Enabled)
	if err != nil {
		h.logger.Error("toggle schedule", zap.Error(err))
		response.Internal(c, "failed to toggle schedule")
		return
	}
	if updated == nil {
		response.NotFound(c, "schedule not found")
		return
	}
	response.OK(c, updated)
}

func (h *Handler) load(c *gin.Context) (*models.Schedule, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return nil, false
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get schedule", zap.Error(err))
		response.Internal(c, "failed to load schedule")
		return nil, false
	}
	if s == nil {
		response.NotFound(c, "schedule not found")
		return nil, false
	}
	return s, true
}
