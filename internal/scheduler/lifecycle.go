package scheduler

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/capture"
	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/internal/platform"
	"github.com/streamvault/backend/internal/realtime"
	"github.com/streamvault/backend/internal/rotation"
	"github.com/streamvault/backend/pkg/queue"
)

// RecordingStore is the slice of the recordings repository the lifecycle
// needs.
type RecordingStore interface {
	Create(ctx context.Context, rec *models.Recording) error
	MarkTerminal(ctx context.Context, id uuid.UUID, status string, endTime time.Time, fileSize int64, errorMessage string) (bool, error)
	UpdateFileSize(ctx context.Context, id uuid.UUID, size int64) error
	ListActive(ctx context.Context) ([]models.Recording, error)
}

// Rotator applies retention after a recording reaches a terminal state.
type Rotator interface {
	ApplySchedule(ctx context.Context, s *models.Schedule) (*rotation.Report, error)
	ApplyScheduleID(ctx context.Context, scheduleID uuid.UUID) (*rotation.Report, error)
}

// Broadcaster pushes lifecycle events to dashboards.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Archiver queues completed recordings for upload. Nil when archiving is off.
type Archiver interface {
	EnqueueArchive(ctx context.Context, payload queue.ArchivePayload) error
}

// Clock supplies authoritative timestamps for recording boundaries.
type Clock interface {
	Now() time.Time
}

// Lifecycle drives recordings through their state machine. Every recording
// moves from "recording" to exactly one terminal state; the first terminal
// signal wins and later ones are ignored.
type Lifecycle struct {
	recordings RecordingStore
	agent      capture.Agent
	rotator    Rotator
	broadcast  Broadcaster
	archiver   Archiver
	clock      Clock
	sessions   *sessionRegistry
	dir        string
	logger     *zap.Logger
}

// NewLifecycle creates the lifecycle manager. rotator, broadcast and
// archiver may be nil.
func NewLifecycle(recordings RecordingStore, agent capture.Agent, rotator Rotator,
	broadcast Broadcaster, archiver Archiver, clock Clock, recordingDir string,
	logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		recordings: recordings,
		agent:      agent,
		rotator:    rotator,
		broadcast:  broadcast,
		archiver:   archiver,
		clock:      clock,
		sessions:   newSessionRegistry(),
		dir:        recordingDir,
		logger:     logger,
	}
}

// Active returns the in-flight captures.
func (l *Lifecycle) Active() []*ActiveRecording {
	return l.sessions.list()
}

// HasActive reports whether the schedule has a capture in flight.
func (l *Lifecycle) HasActive(scheduleID uuid.UUID) bool {
	return l.sessions.HasActive(scheduleID)
}

// StartRecording creates the recording row and asks the capture agent to
// start. Returns ErrAlreadyRecording when the schedule has one in flight.
func (l *Lifecycle) StartRecording(ctx context.Context, s *models.Schedule, info *platform.StreamInfo) (*ActiveRecording, error) {
	if l.sessions.HasActive(s.ID) {
		return nil, ErrAlreadyRecording
	}

	now := l.clock.Now()
	tmplRaw := s.FilenameTemplate
	if tmplRaw == "" {
		tmplRaw = capture.DefaultFilenameTemplate
	}
	tmpl, err := capture.NewFilenameTemplate(tmplRaw)
	if err != nil {
		// Stored templates are validated on write; fall back rather than
		// refuse to record.
		tmpl, _ = capture.NewFilenameTemplate(capture.DefaultFilenameTemplate)
	}
	quality := s.QualityChain()
	title := ""
	name := s.StreamerName
	if info != nil {
		title = info.Title
		if info.StreamerName != "" {
			name = info.StreamerName
		}
	}
	ext := s.OutputFormat
	if ext == "" {
		ext = "mp4"
	}
	fileName := tmpl.Render(capture.TemplateVars{
		StreamerID:   s.StreamerID,
		StreamerName: name,
		Platform:     s.Platform,
		Title:        title,
		Quality:      quality[0],
		Timestamp:    now,
	}) + "." + ext
	filePath := filepath.Join(l.dir, s.Platform, s.StreamerID, fileName)

	rec := &models.Recording{
		ScheduleID:   s.ID,
		Platform:     s.Platform,
		StreamerID:   s.StreamerID,
		StreamerName: name,
		Quality:      s.Quality,
		FilePath:     filePath,
		FileName:     fileName,
		StartTime:    now,
		Status:       models.RecordingStatusRecording,
	}
	if err := l.recordings.Create(ctx, rec); err != nil {
		// The partial unique index rejects a second active row per schedule.
		return nil, err
	}

	session, err := l.agent.Start(ctx, capture.StartRequest{
		Platform:        s.Platform,
		StreamerID:      s.StreamerID,
		Quality:         quality,
		CustomArguments: s.CustomArguments,
		OutputPath:      filePath,
	})
	if err != nil {
		// The row exists but nothing is capturing; close it out as failed.
		if _, mErr := l.recordings.MarkTerminal(ctx, rec.ID, models.RecordingStatusFailed,
			l.clock.Now(), 0, "[capture] "+err.Error()); mErr != nil {
			l.logger.Error("mark failed after start error", zap.Error(mErr))
		}
		return nil, err
	}

	active := &ActiveRecording{
		RecordingID:  rec.ID,
		ScheduleID:   s.ID,
		Platform:     s.Platform,
		StreamerID:   s.StreamerID,
		StreamerName: name,
		Quality:      quality[0],
		FilePath:     filePath,
		StartTime:    now,
		session:      session,
	}
	if err := l.sessions.add(active); err != nil {
		// Lost a race with a concurrent start for the same schedule. Stop
		// the extra capture and close its row so the schedule is not left
		// blocked by the active-row constraint.
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = session.Stop(stopCtx)
		cancel()
		if _, mErr := l.recordings.MarkTerminal(ctx, rec.ID, models.RecordingStatusCancelled,
			l.clock.Now(), 0, "[capture] superseded by concurrent start"); mErr != nil {
			l.logger.Error("mark cancelled after registry conflict", zap.Error(mErr))
		}
		return nil, err
	}

	schedCopy := *s
	go l.watch(active, &schedCopy)

	if l.broadcast != nil {
		l.broadcast.Broadcast(realtime.EventRecordingStarted, active)
	}
	l.logger.Info("recording started",
		zap.String("platform", s.Platform),
		zap.String("streamer_id", s.StreamerID),
		zap.String("recording_id", rec.ID.String()),
		zap.String("file", fileName))
	return active, nil
}

// watch waits for the capture session to end and finalizes the recording.
func (l *Lifecycle) watch(active *ActiveRecording, s *models.Schedule) {
	result := <-active.session.Done()
	l.finalize(active, s, result)
}

// finalize moves the recording to its terminal state and runs the
// post-terminal work: broadcast, archive enqueue, synchronous rotation.
// Only the transition that actually changed the row triggers side effects.
func (l *Lifecycle) finalize(active *ActiveRecording, s *models.Schedule, result capture.Result) {
	defer l.sessions.remove(active.ScheduleID, active.RecordingID)

	status := models.RecordingStatusCompleted
	switch result.Outcome {
	case capture.OutcomeFailed:
		status = models.RecordingStatusFailed
	case capture.OutcomeStopped:
		status = models.RecordingStatusCancelled
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	changed, err := l.recordings.MarkTerminal(ctx, active.RecordingID, status,
		l.clock.Now(), result.FileSize, result.ErrorMessage())
	if err != nil {
		l.logger.Error("terminal transition failed",
			zap.String("recording_id", active.RecordingID.String()), zap.Error(err))
		return
	}
	if !changed {
		l.logger.Debug("duplicate terminal signal ignored",
			zap.String("recording_id", active.RecordingID.String()),
			zap.String("status", status))
		return
	}

	l.logger.Info("recording finished",
		zap.String("recording_id", active.RecordingID.String()),
		zap.String("streamer_id", active.StreamerID),
		zap.String("status", status),
		zap.Int64("file_size", result.FileSize))

	if l.broadcast != nil {
		l.broadcast.Broadcast(realtime.EventRecordingFinished, map[string]interface{}{
			"recording_id": active.RecordingID,
			"schedule_id":  active.ScheduleID,
			"streamer_id":  active.StreamerID,
			"status":       status,
			"file_size":    result.FileSize,
		})
	}

	if status == models.RecordingStatusCompleted && l.archiver != nil && result.FileSize > 0 {
		if err := l.archiver.EnqueueArchive(ctx, queue.ArchivePayload{
			RecordingID: active.RecordingID,
			ScheduleID:  active.ScheduleID,
			FilePath:    active.FilePath,
		}); err != nil {
			l.logger.Warn("enqueue archive failed", zap.Error(err))
		}
	}

	// Retention runs right after every terminal transition so disk pressure
	// is relieved before the next capture starts.
	if l.rotator != nil {
		if _, err := l.rotator.ApplySchedule(ctx, s); err != nil {
			l.logger.Error("post-recording rotation failed",
				zap.String("schedule_id", s.ID.String()), zap.Error(err))
		}
	}
}

// StopRecording asks the agent to end the capture for one schedule. The
// watcher finalizes the recording as cancelled when the agent confirms.
func (l *Lifecycle) StopRecording(ctx context.Context, scheduleID uuid.UUID) error {
	active := l.sessions.get(scheduleID)
	if active == nil {
		return nil
	}
	return active.session.Stop(ctx)
}

// StopAll stops every in-flight capture and returns how many were signalled.
func (l *Lifecycle) StopAll(ctx context.Context) int {
	active := l.sessions.list()
	for _, a := range active {
		if err := a.session.Stop(ctx); err != nil {
			l.logger.Warn("stop capture failed",
				zap.String("recording_id", a.RecordingID.String()), zap.Error(err))
		}
	}
	return len(active)
}

// RecoverStuck closes out recordings left in "recording" by a crash. They
// are marked failed, then retention runs for the affected schedules so the
// leftover files are cleaned up before monitoring resumes.
func (l *Lifecycle) RecoverStuck(ctx context.Context) (int, error) {
	stuck, err := l.recordings.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	affected := make(map[uuid.UUID]struct{})
	for _, rec := range stuck {
		if l.sessions.HasActive(rec.ScheduleID) {
			continue
		}
		changed, err := l.recordings.MarkTerminal(ctx, rec.ID, models.RecordingStatusFailed,
			l.clock.Now(), rec.FileSize, "[capture] interrupted by service restart")
		if err != nil {
			l.logger.Error("recover stuck recording failed",
				zap.String("recording_id", rec.ID.String()), zap.Error(err))
			continue
		}
		if changed {
			recovered++
			if rec.ScheduleID != uuid.Nil {
				affected[rec.ScheduleID] = struct{}{}
			}
		}
	}
	if recovered > 0 {
		l.logger.Warn("recovered interrupted recordings", zap.Int("count", recovered))
	}
	if l.rotator != nil {
		for scheduleID := range affected {
			if _, err := l.rotator.ApplyScheduleID(ctx, scheduleID); err != nil {
				l.logger.Error("post-recovery rotation failed",
					zap.String("schedule_id", scheduleID.String()), zap.Error(err))
			}
		}
	}
	return recovered, nil
}

// UpdateObservedSize records the growing file size of one active capture
// and pushes a progress event.
func (l *Lifecycle) UpdateObservedSize(ctx context.Context, active *ActiveRecording, size int64) {
	if err := l.recordings.UpdateFileSize(ctx, active.RecordingID, size); err != nil {
		l.logger.Warn("update file size failed",
			zap.String("recording_id", active.RecordingID.String()), zap.Error(err))
		return
	}
	if l.broadcast != nil {
		l.broadcast.Broadcast(realtime.EventRecordingProgress, map[string]interface{}{
			"recording_id": active.RecordingID,
			"schedule_id":  active.ScheduleID,
			"streamer_id":  active.StreamerID,
			"file_size":    size,
			"duration_sec": int(l.clock.Now().Sub(active.StartTime).Seconds()),
		})
	}
}
