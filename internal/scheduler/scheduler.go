package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/internal/platform"
)

const (
	// fileSizeInterval is how often active capture files are measured.
	fileSizeInterval = 10 * time.Second
	// maxConcurrentChecks caps the liveness fan-out per tick.
	maxConcurrentChecks = 8

	// MinMonitoringIntervalSec and MaxMonitoringIntervalSec bound the
	// operator-configurable tick interval.
	MinMonitoringIntervalSec = 5
	MaxMonitoringIntervalSec = 3600
)

// ScheduleSource lists the streamers to monitor.
type ScheduleSource interface {
	ListEnabled(ctx context.Context) ([]models.Schedule, error)
}

// IntervalSource supplies the current monitoring interval in seconds. The
// value is re-read every tick so API changes take effect without a restart.
type IntervalSource interface {
	MonitoringIntervalSec(ctx context.Context) (int, error)
}

// Scheduler drives the periodic liveness checks and starts captures.
type Scheduler struct {
	schedules ScheduleSource
	checker   platform.Checker
	lifecycle *Lifecycle
	intervals IntervalSource
	logger    *zap.Logger

	checkTimeout    time.Duration
	defaultInterval time.Duration

	mu        sync.Mutex
	skipTicks int
	lastTick  time.Time
	running   bool
	monitored int
}

// NewScheduler creates the monitor loop.
func NewScheduler(schedules ScheduleSource, checker platform.Checker, lifecycle *Lifecycle,
	intervals IntervalSource, defaultIntervalSec int, checkTimeout time.Duration,
	logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultIntervalSec < MinMonitoringIntervalSec {
		defaultIntervalSec = MinMonitoringIntervalSec
	}
	return &Scheduler{
		schedules:       schedules,
		checker:         checker,
		lifecycle:       lifecycle,
		intervals:       intervals,
		checkTimeout:    checkTimeout,
		defaultInterval: time.Duration(defaultIntervalSec) * time.Second,
		logger:          logger,
	}
}

// Run loops until ctx is cancelled. The interval is re-resolved after every
// tick so operator changes apply on the next cycle.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval(ctx)))
	go s.runFileSizeMonitor(ctx)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.logger.Info("scheduler stopped")
			return
		case <-timer.C:
			s.Tick(ctx)
			timer.Reset(s.interval(ctx))
		}
	}
}

// interval resolves the current tick interval, clamped to sane bounds.
func (s *Scheduler) interval(ctx context.Context) time.Duration {
	if s.intervals == nil {
		return s.defaultInterval
	}
	sec, err := s.intervals.MonitoringIntervalSec(ctx)
	if err != nil || sec <= 0 {
		return s.defaultInterval
	}
	if sec < MinMonitoringIntervalSec {
		sec = MinMonitoringIntervalSec
	}
	if sec > MaxMonitoringIntervalSec {
		sec = MaxMonitoringIntervalSec
	}
	return time.Duration(sec) * time.Second
}

// Tick runs one monitoring pass: check liveness for every enabled schedule
// concurrently and start captures for streamers that are live.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	s.lastTick = time.Now()
	if s.skipTicks > 0 {
		s.skipTicks--
		s.mu.Unlock()
		s.logger.Info("tick skipped after stop-all")
		return
	}
	s.mu.Unlock()

	schedules, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("list enabled schedules", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.monitored = len(schedules)
	s.mu.Unlock()
	if len(schedules) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for i := range schedules {
		sched := schedules[i]
		g.Go(func() error {
			s.checkOne(gctx, &sched)
			return nil
		})
	}
	_ = g.Wait()
}

// checkOne checks one streamer's liveness and starts a capture when live.
// Check failures are logged and skipped; a flaky platform API never takes
// the whole tick down.
func (s *Scheduler) checkOne(ctx context.Context, sched *models.Schedule) {
	if s.lifecycle.HasActive(sched.ID) {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	info, err := s.checker.StreamInfo(cctx, sched.Platform, sched.StreamerID)
	if err != nil {
		s.logger.Warn("liveness check failed",
			zap.String("platform", sched.Platform),
			zap.String("streamer_id", sched.StreamerID),
			zap.Error(err))
		return
	}
	if !info.IsLive {
		return
	}

	if _, err := s.lifecycle.StartRecording(ctx, sched, info); err != nil {
		if errors.Is(err, ErrAlreadyRecording) {
			return
		}
		s.logger.Error("start recording failed",
			zap.String("platform", sched.Platform),
			zap.String("streamer_id", sched.StreamerID),
			zap.Error(err))
	}
}

// StopAll stops every running capture and skips the next tick so stopped
// streamers are not immediately re-captured while still live.
func (s *Scheduler) StopAll(ctx context.Context) int {
	s.mu.Lock()
	s.skipTicks = 1
	s.mu.Unlock()
	return s.lifecycle.StopAll(ctx)
}

// LastTick returns when the loop last ran.
func (s *Scheduler) LastTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// Running reports whether the monitor loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Monitored returns how many enabled schedules the last tick covered.
func (s *Scheduler) Monitored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitored
}

// IntervalSec returns the currently effective tick interval in seconds.
func (s *Scheduler) IntervalSec(ctx context.Context) int {
	return int(s.interval(ctx) / time.Second)
}

// runFileSizeMonitor periodically measures the files of active captures so
// dashboards see live progress and sizes survive a crash.
func (s *Scheduler) runFileSizeMonitor(ctx context.Context) {
	ticker := time.NewTicker(fileSizeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, active := range s.lifecycle.Active() {
				fi, err := os.Stat(active.FilePath)
				if err != nil {
					continue
				}
				s.lifecycle.UpdateObservedSize(ctx, active, fi.Size())
			}
		}
	}
}
