package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents the recording lifecycle. Terminal states are
// final: a new capture always creates a new recording row.
const (
	RecordingStatusRecording = "recording"
	RecordingStatusCompleted = "completed"
	RecordingStatusFailed    = "failed"
	RecordingStatusCancelled = "cancelled"
)

// IsTerminalStatus reports whether s is a final recording status.
func IsTerminalStatus(s string) bool {
	return s == RecordingStatusCompleted || s == RecordingStatusFailed || s == RecordingStatusCancelled
}

// Recording is one capture attempt. FileSize only grows while status is
// "recording"; EndTime and ErrorMessage are set on the terminal transition
// and never change afterwards. IsFavorite is user-set and sticky.
type Recording struct {
	ID           uuid.UUID  `json:"id"`
	ScheduleID   uuid.UUID  `json:"schedule_id"`
	Platform     string     `json:"platform"`
	StreamerID   string     `json:"streamer_id"`
	StreamerName string     `json:"streamer_name"`
	Quality      string     `json:"quality"`
	FilePath     string     `json:"file_path"`
	FileName     string     `json:"file_name"`
	FileSize     int64      `json:"file_size"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Duration     int        `json:"duration"` // seconds
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	IsFavorite   bool       `json:"is_favorite"`
	ArchiveURL   string     `json:"archive_url,omitempty"`
	ArchiveKey   string     `json:"archive_key,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
