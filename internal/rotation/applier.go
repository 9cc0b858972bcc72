package rotation

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/pkg/queue"
)

// ScheduleStore is the slice of the schedule repository the applier needs.
type ScheduleStore interface {
	List(ctx context.Context) ([]models.Schedule, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
}

// RecordingStore is the slice of the recordings repository the applier needs.
type RecordingStore interface {
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.Recording, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PolicyStore supplies enabled global policies for resolution.
type PolicyStore interface {
	ListEnabled(ctx context.Context) ([]models.RotationPolicy, error)
}

// Broadcaster pushes rotation outcomes to connected dashboards.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// RetryQueue re-schedules rotation for a schedule whose deletions failed.
type RetryQueue interface {
	EnqueueRotationRetry(ctx context.Context, payload queue.RotationRetryPayload) error
}

// Clock supplies the authoritative now for age cutoffs.
type Clock interface {
	Now() time.Time
}

// DeletionFailure reports one file the applier could not remove. The
// recording row stays; the next evaluation sees the file again.
type DeletionFailure struct {
	RecordingID uuid.UUID `json:"recording_id"`
	FileName    string    `json:"file_name"`
	Error       string    `json:"error"`
}

// Report summarizes one rotation run for one schedule.
type Report struct {
	ScheduleID      uuid.UUID         `json:"schedule_id"`
	Platform        string            `json:"platform"`
	StreamerID      string            `json:"streamer_id"`
	PolicySource    string            `json:"policy_source,omitempty"`
	PolicyType      string            `json:"policy_type,omitempty"`
	Evaluated       int               `json:"evaluated"`
	Deleted         int               `json:"deleted"`
	FreedBytes      int64             `json:"freed_bytes"`
	Failures        []DeletionFailure `json:"failures,omitempty"`
	Flagged         []uuid.UUID       `json:"flagged,omitempty"`
	OverBudgetBytes int64             `json:"over_budget_bytes,omitempty"`
	Skipped         bool              `json:"skipped,omitempty"` // no effective policy
}

// Applier evaluates and applies retention for streamers. Runs for the same
// schedule are serialized through a per-schedule mutex; different schedules
// never contend since each run only touches its own streamer's files.
type Applier struct {
	schedules  ScheduleStore
	recordings RecordingStore
	policies   PolicyStore
	clock      Clock
	broadcast  Broadcaster
	retries    RetryQueue
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewApplier creates a rotation applier. broadcast and retries may be nil.
func NewApplier(schedules ScheduleStore, recordings RecordingStore, policies PolicyStore,
	clk Clock, broadcast Broadcaster, retries RetryQueue, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		schedules:  schedules,
		recordings: recordings,
		policies:   policies,
		clock:      clk,
		broadcast:  broadcast,
		retries:    retries,
		logger:     logger,
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

func (a *Applier) lockFor(scheduleID uuid.UUID) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[scheduleID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[scheduleID] = l
	}
	return l
}

// ApplySchedule runs one evaluation + deletion pass for a schedule.
// Idempotent: re-running after a partial failure only retries what is left.
// Deletion failures get one retry job; the retry path itself relies on the
// queue's bounded retries instead of enqueuing again.
func (a *Applier) ApplySchedule(ctx context.Context, s *models.Schedule) (*Report, error) {
	return a.applySchedule(ctx, s, true)
}

func (a *Applier) applySchedule(ctx context.Context, s *models.Schedule, enqueueRetries bool) (*Report, error) {
	lock := a.lockFor(s.ID)
	lock.Lock()
	defer lock.Unlock()

	report := &Report{ScheduleID: s.ID, Platform: s.Platform, StreamerID: s.StreamerID}

	globals, err := a.policies.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	policy := Resolve(s, globals)
	if policy == nil {
		report.Skipped = true
		return report, nil
	}
	report.PolicySource = policy.Source
	report.PolicyType = policy.Type

	recs, err := a.recordings.ListBySchedule(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	report.Evaluated = len(recs)

	result := Evaluate(recs, policy, a.clock.Now())
	report.Flagged = result.Flagged
	report.OverBudgetBytes = result.OverBudgetBytes

	byID := make(map[uuid.UUID]*models.Recording, len(recs))
	for i := range recs {
		byID[recs[i].ID] = &recs[i]
	}

	for _, id := range result.Delete {
		rec := byID[id]
		if err := a.removeFile(rec.FilePath); err != nil {
			a.logger.Error("rotation delete failed",
				zap.String("schedule_id", s.ID.String()),
				zap.String("file", rec.FileName),
				zap.Error(err))
			report.Failures = append(report.Failures, DeletionFailure{
				RecordingID: id,
				FileName:    rec.FileName,
				Error:       err.Error(),
			})
			continue
		}
		if err := a.recordings.Delete(ctx, id); err != nil {
			report.Failures = append(report.Failures, DeletionFailure{
				RecordingID: id,
				FileName:    rec.FileName,
				Error:       "db delete: " + err.Error(),
			})
			continue
		}
		report.Deleted++
		report.FreedBytes += rec.FileSize
	}

	if len(report.Failures) > 0 && enqueueRetries && a.retries != nil {
		if err := a.retries.EnqueueRotationRetry(ctx, queue.RotationRetryPayload{ScheduleID: s.ID}); err != nil {
			a.logger.Warn("enqueue rotation retry failed", zap.Error(err))
		}
	}
	if a.broadcast != nil && (report.Deleted > 0 || len(report.Failures) > 0) {
		a.broadcast.Broadcast("rotation_applied", report)
	}

	a.logger.Info("rotation applied",
		zap.String("schedule_id", s.ID.String()),
		zap.String("policy", report.PolicySource),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", len(report.Failures)),
		zap.Int64("freed_bytes", report.FreedBytes))
	return report, nil
}

// ApplyScheduleID loads the schedule and applies rotation; used by the retry
// worker and the crash-recovery rescan.
func (a *Applier) ApplyScheduleID(ctx context.Context, scheduleID uuid.UUID) (*Report, error) {
	s, err := a.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return &Report{ScheduleID: scheduleID, Skipped: true}, nil
	}
	return a.applySchedule(ctx, s, false)
}

// ApplyAll runs rotation across every schedule. Per-schedule errors are
// isolated: one streamer's failure never aborts the rest.
func (a *Applier) ApplyAll(ctx context.Context) ([]Report, error) {
	schedules, err := a.schedules.List(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(schedules))
	for i := range schedules {
		r, err := a.ApplySchedule(ctx, &schedules[i])
		if err != nil {
			a.logger.Error("rotation apply failed",
				zap.String("schedule_id", schedules[i].ID.String()), zap.Error(err))
			reports = append(reports, Report{
				ScheduleID: schedules[i].ID,
				Platform:   schedules[i].Platform,
				StreamerID: schedules[i].StreamerID,
				Failures:   []DeletionFailure{{Error: err.Error()}},
			})
			continue
		}
		reports = append(reports, *r)
	}
	return reports, nil
}

// removeFile deletes the file; a file already gone counts as success so
// re-runs after partial failures are idempotent.
func (a *Applier) removeFile(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
