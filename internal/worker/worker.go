// Package worker processes background jobs: archive uploads and rotation
// retries.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/recordings"
	"github.com/streamvault/backend/internal/rotation"
	"github.com/streamvault/backend/pkg/queue"
	"github.com/streamvault/backend/pkg/storage"
)

// Worker drains the job queue. Archive jobs stream the finished file to S3;
// rotation retry jobs re-run retention for a schedule whose deletions failed.
type Worker struct {
	recRepo *recordings.Repository
	applier *rotation.Applier
	s3      *storage.S3 // nil when archiving is disabled
	queue   *queue.Queue
	logger  *zap.Logger
}

// New creates a worker.
func New(recRepo *recordings.Repository, applier *rotation.Applier, s3 *storage.S3,
	q *queue.Queue, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{recRepo: recRepo, applier: applier, s3: s3, queue: q, logger: logger}
}

// Process executes one job.
func (w *Worker) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeArchive:
		var payload queue.ArchivePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return w.processArchive(ctx, payload)
	case queue.JobTypeRotationRetry:
		var payload queue.RotationRetryPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return w.processRotationRetry(ctx, payload.ScheduleID)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (w *Worker) processArchive(ctx context.Context, payload queue.ArchivePayload) error {
	if w.s3 == nil {
		w.logger.Debug("archiving disabled, dropping job",
			zap.String("recording_id", payload.RecordingID.String()))
		return nil
	}
	rec, err := w.recRepo.GetByID(ctx, payload.RecordingID)
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	if rec == nil {
		// Rotation may have deleted it between enqueue and processing.
		w.logger.Info("recording gone before archive",
			zap.String("recording_id", payload.RecordingID.String()))
		return nil
	}
	if rec.ArchiveKey != "" {
		return nil
	}

	f, err := os.Open(payload.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			w.logger.Warn("recording file missing, skipping archive",
				zap.String("path", payload.FilePath))
			return nil
		}
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(payload.FilePath))
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.ArchiveKey(payload.ScheduleID.String(), rec.FileName)
	url, err := w.s3.Upload(ctx, key, contentType, f)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := w.recRepo.SetArchive(ctx, rec.ID, url, key); err != nil {
		return fmt.Errorf("update db: %w", err)
	}
	w.logger.Info("recording archived",
		zap.String("recording_id", rec.ID.String()), zap.String("s3_key", key))
	return nil
}

func (w *Worker) processRotationRetry(ctx context.Context, scheduleID uuid.UUID) error {
	report, err := w.applier.ApplyScheduleID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("apply rotation: %w", err)
	}
	if len(report.Failures) > 0 {
		// Surface as a job failure so the queue retries a bounded number
		// of times and then parks the job in the DLQ.
		return fmt.Errorf("rotation for %s: %d deletions still failing",
			scheduleID, len(report.Failures))
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := w.queue.Retry(ctx, job); reErr != nil {
				w.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
		}
	}
}
