package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Rotation type values shared by schedules and global policies.
const (
	RotationTypeTime  = "time"
	RotationTypeCount = "count"
	RotationTypeSize  = "size"
)

// Schedule is one monitored streamer. Quality holds a comma-separated
// fallback chain tried in order when a capture starts.
type Schedule struct {
	ID               uuid.UUID `json:"id"`
	Platform         string    `json:"platform"`
	StreamerID       string    `json:"streamer_id"`
	StreamerName     string    `json:"streamer_name"`
	Quality          string    `json:"quality"`
	CustomArguments  string    `json:"custom_arguments,omitempty"`
	OutputFormat     string    `json:"output_format"`
	FilenameTemplate string    `json:"filename_template"`
	Enabled          bool      `json:"enabled"`
	CreatedBy        string    `json:"created_by,omitempty"`

	// Inline rotation settings. When RotationEnabled is set these override
	// every global RotationPolicy for this streamer.
	RotationEnabled  bool   `json:"rotation_enabled"`
	RotationType     string `json:"rotation_type,omitempty"`
	MaxAgeDays       int    `json:"max_age_days,omitempty"`
	MaxCount         int    `json:"max_count,omitempty"`
	MaxSizeGB        int    `json:"max_size_gb,omitempty"`
	ProtectFavorites bool   `json:"protect_favorites"`
	DeleteEmptyFiles bool   `json:"delete_empty_files"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QualityChain returns the quality fallback chain in preference order.
func (s *Schedule) QualityChain() []string {
	var chain []string
	for _, q := range strings.Split(s.Quality, ",") {
		if q = strings.TrimSpace(q); q != "" {
			chain = append(chain, q)
		}
	}
	if len(chain) == 0 {
		chain = []string{"best"}
	}
	return chain
}
