package models

import "github.com/google/uuid"

// StreamerUsage aggregates disk usage for one schedule's recordings.
type StreamerUsage struct {
	ScheduleID   uuid.UUID `json:"schedule_id"`
	Platform     string    `json:"platform"`
	StreamerID   string    `json:"streamer_id"`
	StreamerName string    `json:"streamer_name"`
	Count        int       `json:"count"`
	TotalBytes   int64     `json:"total_bytes"`
}

// StorageStats describes the recording volume and how it is spent.
type StorageStats struct {
	RecordingDir string          `json:"recording_dir"`
	TotalBytes   uint64          `json:"total_bytes"`
	FreeBytes    uint64          `json:"free_bytes"`
	UsedBytes    uint64          `json:"used_bytes"`
	Streamers    []StreamerUsage `json:"streamers"`
}
