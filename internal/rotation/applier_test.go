package rotation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/pkg/queue"
)

type fakeScheduleStore struct {
	schedules []models.Schedule
}

func (f *fakeScheduleStore) List(context.Context) ([]models.Schedule, error) {
	return f.schedules, nil
}

func (f *fakeScheduleStore) GetByID(_ context.Context, id uuid.UUID) (*models.Schedule, error) {
	for i := range f.schedules {
		if f.schedules[i].ID == id {
			return &f.schedules[i], nil
		}
	}
	return nil, nil
}

type fakeRecordingStore struct {
	recs    map[uuid.UUID][]models.Recording
	deleted []uuid.UUID
}

func (f *fakeRecordingStore) ListBySchedule(_ context.Context, scheduleID uuid.UUID) ([]models.Recording, error) {
	return f.recs[scheduleID], nil
}

func (f *fakeRecordingStore) Delete(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	for sid, list := range f.recs {
		kept := list[:0]
		for _, r := range list {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		f.recs[sid] = kept
	}
	return nil
}

type fakePolicyStore struct {
	policies []models.RotationPolicy
}

func (f *fakePolicyStore) ListEnabled(context.Context) ([]models.RotationPolicy, error) {
	return f.policies, nil
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

type fakeRetryQueue struct {
	payloads []queue.RotationRetryPayload
}

func (f *fakeRetryQueue) EnqueueRotationRetry(_ context.Context, p queue.RotationRetryPayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

type fakeBroadcaster struct {
	events []string
}

func (f *fakeBroadcaster) Broadcast(event string, _ interface{}) {
	f.events = append(f.events, event)
}

func writeTempFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	return p
}

func TestApplyScheduleDeletesFilesAndRows(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	schedule := models.Schedule{
		ID: uuid.New(), Platform: "twitch", StreamerID: "pokimane",
		RotationEnabled: true, RotationType: models.RotationTypeCount, MaxCount: 1,
	}

	oldEnd := now.Add(-48 * time.Hour)
	newEnd := now.Add(-1 * time.Hour)
	oldRec := models.Recording{
		ID: uuid.New(), ScheduleID: schedule.ID, FileName: "old.mp4",
		FilePath: writeTempFile(t, dir, "old.mp4", 100), FileSize: 100,
		Status: models.RecordingStatusCompleted, EndTime: &oldEnd,
	}
	newRec := models.Recording{
		ID: uuid.New(), ScheduleID: schedule.ID, FileName: "new.mp4",
		FilePath: writeTempFile(t, dir, "new.mp4", 100), FileSize: 100,
		Status: models.RecordingStatusCompleted, EndTime: &newEnd,
	}

	recs := &fakeRecordingStore{recs: map[uuid.UUID][]models.Recording{
		schedule.ID: {oldRec, newRec},
	}}
	bc := &fakeBroadcaster{}
	a := NewApplier(&fakeScheduleStore{schedules: []models.Schedule{schedule}},
		recs, &fakePolicyStore{}, fakeClock{now}, bc, nil, nil)

	report, err := a.ApplySchedule(context.Background(), &schedule)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, int64(100), report.FreedBytes)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []uuid.UUID{oldRec.ID}, recs.deleted)
	assert.NoFileExists(t, oldRec.FilePath)
	assert.FileExists(t, newRec.FilePath)
	assert.Equal(t, []string{"rotation_applied"}, bc.events)
}

func TestApplyScheduleMissingFileCountsAsDeleted(t *testing.T) {
	now := time.Now()
	schedule := models.Schedule{
		ID: uuid.New(), RotationEnabled: true,
		RotationType: models.RotationTypeCount, MaxCount: 0,
	}
	end := now.Add(-time.Hour)
	gone := models.Recording{
		ID: uuid.New(), ScheduleID: schedule.ID, FileName: "gone.mp4",
		FilePath: filepath.Join(t.TempDir(), "gone.mp4"), FileSize: 5,
		Status: models.RecordingStatusCompleted, EndTime: &end,
	}
	recs := &fakeRecordingStore{recs: map[uuid.UUID][]models.Recording{schedule.ID: {gone}}}
	a := NewApplier(&fakeScheduleStore{}, recs, &fakePolicyStore{}, fakeClock{now}, nil, nil, nil)

	report, err := a.ApplySchedule(context.Background(), &schedule)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Empty(t, report.Failures)
}

func TestApplyScheduleSkipsWithoutPolicy(t *testing.T) {
	schedule := models.Schedule{ID: uuid.New()}
	recs := &fakeRecordingStore{recs: map[uuid.UUID][]models.Recording{}}
	a := NewApplier(&fakeScheduleStore{}, recs, &fakePolicyStore{}, fakeClock{time.Now()}, nil, nil, nil)

	report, err := a.ApplySchedule(context.Background(), &schedule)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, recs.deleted)
}

func TestApplyScheduleFailureEnqueuesRetry(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	schedule := models.Schedule{
		ID: uuid.New(), RotationEnabled: true,
		RotationType: models.RotationTypeCount, MaxCount: 0,
	}
	end := now.Add(-time.Hour)
	// A path whose parent is a file cannot be removed cleanly.
	blocker := writeTempFile(t, dir, "blocker", 1)
	stuck := models.Recording{
		ID: uuid.New(), ScheduleID: schedule.ID, FileName: "stuck.mp4",
		FilePath: filepath.Join(blocker, "stuck.mp4"), FileSize: 5,
		Status: models.RecordingStatusCompleted, EndTime: &end,
	}
	recs := &fakeRecordingStore{recs: map[uuid.UUID][]models.Recording{schedule.ID: {stuck}}}
	retries := &fakeRetryQueue{}
	a := NewApplier(&fakeScheduleStore{}, recs, &fakePolicyStore{}, fakeClock{now}, nil, retries, nil)

	report, err := a.ApplySchedule(context.Background(), &schedule)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, stuck.ID, report.Failures[0].RecordingID)
	assert.Empty(t, recs.deleted, "row stays when the file could not be removed")
	require.Len(t, retries.payloads, 1)
	assert.Equal(t, schedule.ID, retries.payloads[0].ScheduleID)
}

func TestApplyAllIsolatesSchedules(t *testing.T) {
	now := time.Now()
	s1 := models.Schedule{ID: uuid.New(), Platform: "twitch", StreamerID: "a"}
	s2 := models.Schedule{ID: uuid.New(), Platform: "chzzk", StreamerID: "b",
		RotationEnabled: true, RotationType: models.RotationTypeCount, MaxCount: 10}
	recs := &fakeRecordingStore{recs: map[uuid.UUID][]models.Recording{}}
	a := NewApplier(&fakeScheduleStore{schedules: []models.Schedule{s1, s2}},
		recs, &fakePolicyStore{}, fakeClock{now}, nil, nil, nil)

	reports, err := a.ApplyAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.True(t, reports[0].Skipped)
	assert.False(t, reports[1].Skipped)
}
