package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/backend/internal/capture"
	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/internal/platform"
	"github.com/streamvault/backend/internal/rotation"
	"github.com/streamvault/backend/pkg/queue"
)

type fakeSession struct {
	done     chan capture.Result
	stopOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan capture.Result, 1)}
}

func (s *fakeSession) Done() <-chan capture.Result { return s.done }

func (s *fakeSession) Stop(context.Context) error {
	s.stopOnce.Do(func() {
		s.done <- capture.Result{Outcome: capture.OutcomeStopped}
	})
	return nil
}

func (s *fakeSession) end(r capture.Result) {
	s.done <- r
}

type fakeAgent struct {
	mu       sync.Mutex
	sessions []*fakeSession
	startErr error
	onStart  func()
}

func (a *fakeAgent) Start(context.Context, capture.StartRequest) (capture.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return nil, a.startErr
	}
	if a.onStart != nil {
		a.onStart()
	}
	s := newFakeSession()
	a.sessions = append(a.sessions, s)
	return s, nil
}

func (a *fakeAgent) last() *fakeSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[len(a.sessions)-1]
}

type fakeStore struct {
	mu        sync.Mutex
	created   []models.Recording
	terminals []string // statuses of transitions that changed the row
	finalized map[uuid.UUID]bool
	active    []models.Recording
}

func newFakeStore() *fakeStore {
	return &fakeStore{finalized: make(map[uuid.UUID]bool)}
}

func (f *fakeStore) Create(_ context.Context, rec *models.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = uuid.New()
	f.created = append(f.created, *rec)
	return nil
}

func (f *fakeStore) MarkTerminal(_ context.Context, id uuid.UUID, status string, _ time.Time, _ int64, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalized[id] {
		return false, nil
	}
	f.finalized[id] = true
	f.terminals = append(f.terminals, status)
	return true, nil
}

func (f *fakeStore) UpdateFileSize(context.Context, uuid.UUID, int64) error { return nil }

func (f *fakeStore) ListActive(context.Context) ([]models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeStore) terminalStatuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terminals...)
}

type fakeRotator struct {
	mu      sync.Mutex
	calls   int
	idCalls []uuid.UUID
}

func (f *fakeRotator) ApplySchedule(context.Context, *models.Schedule) (*rotation.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &rotation.Report{}, nil
}

func (f *fakeRotator) ApplyScheduleID(_ context.Context, scheduleID uuid.UUID) (*rotation.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idCalls = append(f.idCalls, scheduleID)
	return &rotation.Report{ScheduleID: scheduleID}, nil
}

func (f *fakeRotator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRotator) appliedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.idCalls...)
}

type fakeBroadcast struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcast) Broadcast(event string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBroadcast) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

type fakeArchiver struct {
	mu       sync.Mutex
	payloads []queue.ArchivePayload
}

func (f *fakeArchiver) EnqueueArchive(_ context.Context, p queue.ArchivePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return nil
}

func (f *fakeArchiver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func testSchedule() *models.Schedule {
	return &models.Schedule{
		ID:           uuid.New(),
		Platform:     "twitch",
		StreamerID:   "shroud",
		StreamerName: "Shroud",
		Quality:      "best",
		OutputFormat: "mp4",
		Enabled:      true,
	}
}

func liveInfo() *platform.StreamInfo {
	return &platform.StreamInfo{StreamerID: "shroud", StreamerName: "Shroud", IsLive: true, Title: "ranked"}
}

func TestStartRecordingRegistersSingleActive(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{}
	l := NewLifecycle(store, agent, nil, nil, nil, systemClock{}, t.TempDir(), nil)
	sched := testSchedule()

	active, err := l.StartRecording(context.Background(), sched, liveInfo())
	require.NoError(t, err)
	assert.True(t, l.HasActive(sched.ID))
	assert.NotEqual(t, uuid.Nil, active.RecordingID)

	_, err = l.StartRecording(context.Background(), sched, liveInfo())
	assert.ErrorIs(t, err, ErrAlreadyRecording)
}

func TestCompletedRecordingRunsRotationAndArchive(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{}
	rot := &fakeRotator{}
	bc := &fakeBroadcast{}
	arch := &fakeArchiver{}
	l := NewLifecycle(store, agent, rot, bc, arch, systemClock{}, t.TempDir(), nil)
	sched := testSchedule()

	_, err := l.StartRecording(context.Background(), sched, liveInfo())
	require.NoError(t, err)

	agent.last().end(capture.Result{Outcome: capture.OutcomeCompleted, FileSize: 1024})

	require.Eventually(t, func() bool {
		return !l.HasActive(sched.ID)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{models.RecordingStatusCompleted}, store.terminalStatuses())
	assert.Equal(t, 1, rot.count())
	assert.Equal(t, 1, arch.count())
	assert.Equal(t, 1, bc.count("recording_finished"))
}

func TestDuplicateTerminalSignalIsIgnored(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{}
	rot := &fakeRotator{}
	bc := &fakeBroadcast{}
	l := NewLifecycle(store, agent, rot, bc, nil, systemClock{}, t.TempDir(), nil)
	sched := testSchedule()

	active, err := l.StartRecording(context.Background(), sched, liveInfo())
	require.NoError(t, err)

	// The agent reports completion and a stop races in behind it.
	l.finalize(active, sched, capture.Result{Outcome: capture.OutcomeCompleted, FileSize: 10})
	l.finalize(active, sched, capture.Result{Outcome: capture.OutcomeStopped})

	assert.Equal(t, []string{models.RecordingStatusCompleted}, store.terminalStatuses(),
		"first terminal signal wins, second is a no-op")
	assert.Equal(t, 1, rot.count(), "rotation runs once")
	assert.Equal(t, 1, bc.count("recording_finished"), "finish event fires once")
}

func TestStoppedRecordingIsCancelled(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{}
	l := NewLifecycle(store, agent, nil, nil, nil, systemClock{}, t.TempDir(), nil)
	sched := testSchedule()

	_, err := l.StartRecording(context.Background(), sched, liveInfo())
	require.NoError(t, err)

	require.NoError(t, l.StopRecording(context.Background(), sched.ID))
	require.Eventually(t, func() bool {
		return !l.HasActive(sched.ID)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{models.RecordingStatusCancelled}, store.terminalStatuses())
}

func TestFailedRecordingStoresErrorSections(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{}
	l := NewLifecycle(store, agent, nil, nil, nil, systemClock{}, t.TempDir(), nil)
	sched := testSchedule()

	_, err := l.StartRecording(context.Background(), sched, liveInfo())
	require.NoError(t, err)

	agent.last().end(capture.Result{
		Outcome:       capture.OutcomeFailed,
		AgentError:    "disk full",
		PlatformError: "stream ended unexpectedly",
	})
	require.Eventually(t, func() bool {
		return !l.HasActive(sched.ID)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{models.RecordingStatusFailed}, store.terminalStatuses())
}

func TestStartFailureClosesRecordingRow(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{startErr: context.DeadlineExceeded}
	l := NewLifecycle(store, agent, nil, nil, nil, systemClock{}, t.TempDir(), nil)
	sched := testSchedule()

	_, err := l.StartRecording(context.Background(), sched, liveInfo())
	require.Error(t, err)
	assert.False(t, l.HasActive(sched.ID))
	assert.Equal(t, []string{models.RecordingStatusFailed}, store.terminalStatuses())
}

func TestRecoverStuckMarksInterruptedFailed(t *testing.T) {
	store := newFakeStore()
	stuckID := uuid.New()
	store.active = []models.Recording{{
		ID:         stuckID,
		ScheduleID: uuid.New(),
		Status:     models.RecordingStatusRecording,
	}}
	l := NewLifecycle(store, &fakeAgent{}, nil, nil, nil, systemClock{}, t.TempDir(), nil)

	n, err := l.RecoverStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{models.RecordingStatusFailed}, store.terminalStatuses())
}

func TestRecoverStuckRunsRotationForAffectedSchedules(t *testing.T) {
	store := newFakeStore()
	schedA := uuid.New()
	schedB := uuid.New()
	store.active = []models.Recording{
		{ID: uuid.New(), ScheduleID: schedA, Status: models.RecordingStatusRecording},
		{ID: uuid.New(), ScheduleID: schedA, Status: models.RecordingStatusRecording},
		{ID: uuid.New(), ScheduleID: schedB, Status: models.RecordingStatusRecording},
	}
	rot := &fakeRotator{}
	l := NewLifecycle(store, &fakeAgent{}, rot, nil, nil, systemClock{}, t.TempDir(), nil)

	n, err := l.RecoverStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Rotation runs once per schedule, not once per recovered row.
	ids := rot.appliedIDs()
	assert.Len(t, ids, 2)
	assert.ElementsMatch(t, []uuid.UUID{schedA, schedB}, ids)
}

func TestRegistryConflictClosesSupersededRow(t *testing.T) {
	store := newFakeStore()
	sched := testSchedule()
	agent := &fakeAgent{}
	l := NewLifecycle(store, agent, nil, nil, nil, systemClock{}, t.TempDir(), nil)

	// A competing start registers its session while the agent call for this
	// one is still in flight.
	agent.onStart = func() {
		require.NoError(t, l.sessions.add(&ActiveRecording{
			RecordingID: uuid.New(),
			ScheduleID:  sched.ID,
			session:     newFakeSession(),
		}))
	}

	_, err := l.StartRecording(context.Background(), sched, liveInfo())
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	// The loser's row is not left in "recording" where it would block the
	// schedule until a restart.
	assert.Equal(t, []string{models.RecordingStatusCancelled}, store.terminalStatuses())
}
