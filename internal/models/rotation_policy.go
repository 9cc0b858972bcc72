package models

import (
	"time"

	"github.com/google/uuid"
)

// RotationPolicy is a global retention policy. A schedule without inline
// rotation settings picks the highest-priority enabled policy; a schedule
// with RotationEnabled always overrides global policies.
type RotationPolicy struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Enabled          bool      `json:"enabled"`
	Priority         int       `json:"priority"` // higher wins
	RotationType     string    `json:"rotation_type"`
	MaxAgeDays       int       `json:"max_age_days,omitempty"`
	MaxCount         int       `json:"max_count,omitempty"`
	MaxSizeGB        int       `json:"max_size_gb,omitempty"`
	ProtectFavorites bool      `json:"protect_favorites"`
	DeleteEmptyFiles bool      `json:"delete_empty_files"`
	ExcludePatterns  string    `json:"exclude_patterns,omitempty"` // comma-separated globs
	MinFileSizeMB    int       `json:"min_file_size_mb,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
