package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/internal/platform"
)

type fakeScheduleSource struct {
	mu        sync.Mutex
	schedules []models.Schedule
	listCalls int
}

func (f *fakeScheduleSource) ListEnabled(context.Context) ([]models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.schedules, nil
}

func (f *fakeScheduleSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type fakeChecker struct {
	mu   sync.Mutex
	live map[string]bool
}

func (f *fakeChecker) StreamInfo(_ context.Context, platformName, streamerID string) (*platform.StreamInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &platform.StreamInfo{
		StreamerID:   streamerID,
		StreamerName: streamerID,
		IsLive:       f.live[platformName+"/"+streamerID],
	}, nil
}

func newTestScheduler(t *testing.T, src *fakeScheduleSource, checker *fakeChecker) (*Scheduler, *Lifecycle, *fakeAgent) {
	t.Helper()
	store := newFakeStore()
	agent := &fakeAgent{}
	lifecycle := NewLifecycle(store, agent, nil, nil, nil, systemClock{}, t.TempDir(), nil)
	sched := NewScheduler(src, checker, lifecycle, nil, 60, time.Second, nil)
	return sched, lifecycle, agent
}

func TestTickStartsCaptureForLiveStreamer(t *testing.T) {
	s := testSchedule()
	src := &fakeScheduleSource{schedules: []models.Schedule{*s}}
	checker := &fakeChecker{live: map[string]bool{"twitch/shroud": true}}
	sched, lifecycle, _ := newTestScheduler(t, src, checker)

	sched.Tick(context.Background())
	assert.True(t, lifecycle.HasActive(s.ID))
}

func TestTickIgnoresOfflineStreamer(t *testing.T) {
	s := testSchedule()
	src := &fakeScheduleSource{schedules: []models.Schedule{*s}}
	checker := &fakeChecker{live: map[string]bool{}}
	sched, lifecycle, _ := newTestScheduler(t, src, checker)

	sched.Tick(context.Background())
	assert.False(t, lifecycle.HasActive(s.ID))
}

func TestTickDoesNotDoubleStart(t *testing.T) {
	s := testSchedule()
	src := &fakeScheduleSource{schedules: []models.Schedule{*s}}
	checker := &fakeChecker{live: map[string]bool{"twitch/shroud": true}}
	sched, lifecycle, agent := newTestScheduler(t, src, checker)

	sched.Tick(context.Background())
	sched.Tick(context.Background())

	assert.True(t, lifecycle.HasActive(s.ID))
	agent.mu.Lock()
	defer agent.mu.Unlock()
	assert.Len(t, agent.sessions, 1, "still-live streamer must not get a second capture")
}

func TestStopAllSkipsNextTick(t *testing.T) {
	s := testSchedule()
	src := &fakeScheduleSource{schedules: []models.Schedule{*s}}
	checker := &fakeChecker{live: map[string]bool{"twitch/shroud": true}}
	sched, lifecycle, _ := newTestScheduler(t, src, checker)

	sched.Tick(context.Background())
	require.True(t, lifecycle.HasActive(s.ID))

	stopped := sched.StopAll(context.Background())
	assert.Equal(t, 1, stopped)
	require.Eventually(t, func() bool {
		return !lifecycle.HasActive(s.ID)
	}, 2*time.Second, 10*time.Millisecond)

	// The tick right after stop-all must not re-capture the still-live
	// streamer; the one after that may.
	before := src.calls()
	sched.Tick(context.Background())
	assert.Equal(t, before, src.calls(), "cooldown tick does no work")
	assert.False(t, lifecycle.HasActive(s.ID))

	sched.Tick(context.Background())
	assert.True(t, lifecycle.HasActive(s.ID))
}

func TestIntervalClampsOperatorValues(t *testing.T) {
	sched := NewScheduler(nil, nil, nil, intervalFunc(func() (int, error) { return 1, nil }), 60, time.Second, nil)
	assert.Equal(t, time.Duration(MinMonitoringIntervalSec)*time.Second, sched.interval(context.Background()))

	sched = NewScheduler(nil, nil, nil, intervalFunc(func() (int, error) { return 100000, nil }), 60, time.Second, nil)
	assert.Equal(t, time.Duration(MaxMonitoringIntervalSec)*time.Second, sched.interval(context.Background()))

	sched = NewScheduler(nil, nil, nil, nil, 60, time.Second, nil)
	assert.Equal(t, 60*time.Second, sched.interval(context.Background()))
}

type intervalFunc func() (int, error)

func (f intervalFunc) MonitoringIntervalSec(context.Context) (int, error) { return f() }
