// Package scheduler runs the monitoring loop: it checks which streamers are
// live, starts and finalizes capture sessions, and keeps recording state
// consistent with what the capture agent reports.
package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamvault/backend/internal/capture"
)

// ErrAlreadyRecording is returned when a capture is already in flight for
// the schedule.
var ErrAlreadyRecording = errors.New("schedule already has an active recording")

// ActiveRecording is the in-memory handle on one running capture.
type ActiveRecording struct {
	RecordingID  uuid.UUID `json:"recording_id"`
	ScheduleID   uuid.UUID `json:"schedule_id"`
	Platform     string    `json:"platform"`
	StreamerID   string    `json:"streamer_id"`
	StreamerName string    `json:"streamer_name"`
	Quality      string    `json:"quality"`
	FilePath     string    `json:"file_path"`
	StartTime    time.Time `json:"start_time"`

	session capture.Session
}

// sessionRegistry tracks active captures by schedule. The single-slot-per-
// schedule rule is enforced here in memory and again by the database's
// partial unique index.
type sessionRegistry struct {
	mu      sync.RWMutex
	bySched map[uuid.UUID]*ActiveRecording
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{bySched: make(map[uuid.UUID]*ActiveRecording)}
}

// add registers a capture, failing when the schedule already has one.
func (r *sessionRegistry) add(a *ActiveRecording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySched[a.ScheduleID]; exists {
		return ErrAlreadyRecording
	}
	r.bySched[a.ScheduleID] = a
	return nil
}

// remove drops a capture, but only if it is still the registered one.
func (r *sessionRegistry) remove(scheduleID, recordingID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.bySched[scheduleID]; ok && a.RecordingID == recordingID {
		delete(r.bySched, scheduleID)
	}
}

func (r *sessionRegistry) get(scheduleID uuid.UUID) *ActiveRecording {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bySched[scheduleID]
}

func (r *sessionRegistry) list() []*ActiveRecording {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ActiveRecording, 0, len(r.bySched))
	for _, a := range r.bySched {
		out = append(out, a)
	}
	return out
}

// HasActive reports whether the schedule has a capture in flight.
func (r *sessionRegistry) HasActive(scheduleID uuid.UUID) bool {
	return r.get(scheduleID) != nil
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySched)
}
