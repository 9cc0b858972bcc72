package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/backend/internal/models"
)

func TestResolveInlineWins(t *testing.T) {
	s := &models.Schedule{
		RotationEnabled:  true,
		RotationType:     models.RotationTypeCount,
		MaxCount:         5,
		ProtectFavorites: true,
	}
	globals := []models.RotationPolicy{
		{Name: "global", Enabled: true, Priority: 100, RotationType: models.RotationTypeTime, MaxAgeDays: 7},
	}
	p := Resolve(s, globals)
	require.NotNil(t, p)
	assert.Equal(t, "schedule", p.Source)
	assert.Equal(t, models.RotationTypeCount, p.Type)
	assert.Equal(t, 5, p.MaxCount)
}

func TestResolveHighestPriorityGlobal(t *testing.T) {
	s := &models.Schedule{}
	globals := []models.RotationPolicy{
		{Name: "low", Enabled: true, Priority: 1, RotationType: models.RotationTypeTime, MaxAgeDays: 7},
		{Name: "high", Enabled: true, Priority: 10, RotationType: models.RotationTypeSize, MaxSizeGB: 100},
		{Name: "disabled", Enabled: false, Priority: 99, RotationType: models.RotationTypeCount, MaxCount: 1},
	}
	p := Resolve(s, globals)
	require.NotNil(t, p)
	assert.Equal(t, "high", p.Source)
	assert.Equal(t, models.RotationTypeSize, p.Type)
}

func TestResolvePriorityTieBreaksOnName(t *testing.T) {
	s := &models.Schedule{}
	globals := []models.RotationPolicy{
		{Name: "bravo", Enabled: true, Priority: 5, RotationType: models.RotationTypeTime, MaxAgeDays: 7},
		{Name: "alpha", Enabled: true, Priority: 5, RotationType: models.RotationTypeTime, MaxAgeDays: 14},
	}
	p := Resolve(s, globals)
	require.NotNil(t, p)
	assert.Equal(t, "alpha", p.Source)
	assert.Equal(t, 14, p.MaxAgeDays)
}

func TestResolveNilWhenNothingApplies(t *testing.T) {
	assert.Nil(t, Resolve(&models.Schedule{}, nil))
	assert.Nil(t, Resolve(&models.Schedule{}, []models.RotationPolicy{
		{Name: "off", Enabled: false, Priority: 1, RotationType: models.RotationTypeTime},
	}))
}

func TestResolveInlineWithInvalidTypeFallsThrough(t *testing.T) {
	s := &models.Schedule{RotationEnabled: true, RotationType: "weekly"}
	globals := []models.RotationPolicy{
		{Name: "fallback", Enabled: true, Priority: 1, RotationType: models.RotationTypeCount, MaxCount: 3},
	}
	p := Resolve(s, globals)
	require.NotNil(t, p)
	assert.Equal(t, "fallback", p.Source)
}

func TestResolveSplitsExcludePatterns(t *testing.T) {
	s := &models.Schedule{}
	globals := []models.RotationPolicy{
		{Name: "g", Enabled: true, Priority: 1, RotationType: models.RotationTypeTime,
			MaxAgeDays: 7, ExcludePatterns: "finale_*, *.bak ,"},
	}
	p := Resolve(s, globals)
	require.NotNil(t, p)
	assert.Equal(t, []string{"finale_*", "*.bak"}, p.ExcludePatterns)
}
