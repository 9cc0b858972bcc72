package recordings

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/pkg/response"
)

// Presigner mints short-lived download URLs for archived recordings.
type Presigner interface {
	GeneratePresignedDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
}

// Handler exposes the recording library.
type Handler struct {
	repo    *Repository
	presign Presigner
	logger  *zap.Logger
}

// NewHandler creates a recordings handler. presign may be nil when archiving
// is disabled.
func NewHandler(repo *Repository, presign Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, presign: presign, logger: logger}
}

// RegisterRoutes mounts recording endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/recordings")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id/favorite", h.ToggleFavorite)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/download", h.Download)
}

// List returns recordings newest-first with optional query filters.
func (h *Handler) List(c *gin.Context) {
	f := ListFilter{
		Platform:   c.Query("platform"),
		StreamerID: c.Query("streamer_id"),
		Status:     c.Query("status"),
	}
	if v := c.Query("is_favorite"); v != "" {
		fav, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(c, "is_favorite must be a boolean")
			return
		}
		f.IsFavorite = &fav
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.repo.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list recordings", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// Get returns one recording.
func (h *Handler) Get(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, rec)
}

// ToggleFavorite flips the favorite flag. Favorites survive retention when
// the effective policy protects them.
func (h *Handler) ToggleFavorite(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	updated, err := h.repo.SetFavorite(c.Request.Context(), rec.ID, !rec.IsFavorite)
	if err != nil {
		h.logger.Error("toggle favorite", zap.Error(err))
		response.Internal(c, "failed to toggle favorite")
		return
	}
	if updated == nil {
		response.NotFound(c, "recording not found")
		return
	}
	response.OK(c, updated)
}

// Delete removes a recording's file and row. A capture still in flight must
// be stopped first. A file already missing on disk is not an error.
func (h *Handler) Delete(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	if rec.Status == models.RecordingStatusRecording {
		response.Conflict(c, "recording is in progress; stop it first")
		return
	}
	if rec.FilePath != "" {
		if err := os.Remove(rec.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.logger.Error("delete recording file",
				zap.String("path", rec.FilePath), zap.Error(err))
			response.Internal(c, "failed to delete recording file")
			return
		}
	}
	if err := h.repo.Delete(c.Request.Context(), rec.ID); err != nil {
		h.logger.Error("delete recording", zap.Error(err))
		response.Internal(c, "failed to delete recording")
		return
	}
	response.NoContent(c)
}

// Download serves the recorded file. When the local file is gone but an
// archived copy exists, the client is redirected to a presigned URL.
func (h *Handler) Download(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	if rec.Status == models.RecordingStatusRecording {
		response.Conflict(c, "recording is still in progress")
		return
	}
	if rec.FilePath != "" {
		if _, err := os.Stat(rec.FilePath); err == nil {
			c.FileAttachment(rec.FilePath, rec.FileName)
			return
		}
	}
	if rec.ArchiveKey != "" && h.presign != nil {
		url, err := h.presign.GeneratePresignedDownloadURL(c.Request.Context(),
			rec.ArchiveKey, h.presign.PresignExpire())
		if err != nil {
			h.logger.Error("presign download", zap.Error(err))
			response.Internal(c, "failed to generate download link")
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, url)
		return
	}
	response.NotFound(c, "recording file is no longer available")
}

func (h *Handler) load(c *gin.Context) (*models.Recording, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return nil, false
	}
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get recording", zap.Error(err))
		response.Internal(c, "failed to load recording")
		return nil, false
	}
	if rec == nil {
		response.NotFound(c, "recording not found")
		return nil, false
	}
	return rec, true
}
