package schedules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/backend/internal/capture"
	"github.com/streamvault/backend/internal/models"
)

func validRequest() ScheduleRequest {
	return ScheduleRequest{
		Platform:     "twitch",
		StreamerID:   "shroud",
		StreamerName: "Shroud",
	}
}

func TestFieldErrorsAcceptsValidRequest(t *testing.T) {
	req := validRequest()
	assert.Empty(t, req.fieldErrors())
}

func TestFieldErrorsRejectsUnknownPlatform(t *testing.T) {
	req := validRequest()
	req.Platform = "kick"
	errs := req.fieldErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "platform", errs[0].Field)
}

func TestFieldErrorsRejectsBadTemplate(t *testing.T) {
	req := validRequest()
	req.FilenameTemplate = "{nope}"
	errs := req.fieldErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "filename_template", errs[0].Field)
}

func TestFieldErrorsRequireThresholdForRotation(t *testing.T) {
	req := validRequest()
	req.RotationEnabled = true
	req.RotationType = models.RotationTypeCount

	errs := req.fieldErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "max_count", errs[0].Field)

	req.MaxCount = 10
	assert.Empty(t, req.fieldErrors())
}

func TestFieldErrorsRequireRotationType(t *testing.T) {
	req := validRequest()
	req.RotationEnabled = true
	errs := req.fieldErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "rotation_type", errs[0].Field)
}

func TestToModelDefaults(t *testing.T) {
	req := validRequest()
	req.Platform = "Twitch"
	var s models.Schedule
	req.toModel(&s)

	assert.Equal(t, "twitch", s.Platform)
	assert.Equal(t, "best", s.Quality)
	assert.Equal(t, "mp4", s.OutputFormat)
	assert.Equal(t, capture.DefaultFilenameTemplate, s.FilenameTemplate)
	assert.True(t, s.Enabled)
	assert.True(t, s.ProtectFavorites)
	assert.True(t, s.DeleteEmptyFiles)
}
