package rotation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/backend/internal/models"
)

const gib = int64(1024 * 1024 * 1024)

func rec(endedAgo time.Duration, size int64, now time.Time) models.Recording {
	end := now.Add(-endedAgo)
	return models.Recording{
		ID:       uuid.New(),
		FileName: "stream.mp4",
		FileSize: size,
		Status:   models.RecordingStatusCompleted,
		EndTime:  &end,
	}
}

func toSet(ids []uuid.UUID) map[uuid.UUID]bool {
	s := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func TestEvaluateNilPolicyKeepsEverything(t *testing.T) {
	now := time.Now()
	recs := []models.Recording{rec(time.Hour, gib, now), rec(48*time.Hour, 0, now)}
	res := Evaluate(recs, nil, now)
	assert.Len(t, res.Keep, 2)
	assert.Empty(t, res.Delete)
}

func TestEvaluateTimePolicy(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	old := rec(40*24*time.Hour, gib, now)
	fresh := rec(5*24*time.Hour, gib, now)
	boundary := rec(30*24*time.Hour, gib, now) // exactly at cutoff, kept

	p := &ResolvedPolicy{Type: models.RotationTypeTime, MaxAgeDays: 30}
	res := Evaluate([]models.Recording{old, fresh, boundary}, p, now)

	del := toSet(res.Delete)
	assert.True(t, del[old.ID])
	assert.False(t, del[fresh.ID])
	assert.False(t, del[boundary.ID])
}

func TestEvaluateTimePolicyProtectsFavorites(t *testing.T) {
	now := time.Now()
	fav := rec(90*24*time.Hour, gib, now)
	fav.IsFavorite = true
	plain := rec(90*24*time.Hour, gib, now)

	p := &ResolvedPolicy{Type: models.RotationTypeTime, MaxAgeDays: 30, ProtectFavorites: true}
	res := Evaluate([]models.Recording{fav, plain}, p, now)

	del := toSet(res.Delete)
	assert.False(t, del[fav.ID])
	assert.True(t, del[plain.ID])
}

func TestEvaluateCountPolicy(t *testing.T) {
	now := time.Now()
	recs := make([]models.Recording, 0, 5)
	for i := 0; i < 5; i++ {
		recs = append(recs, rec(time.Duration(i+1)*24*time.Hour, gib, now))
	}
	p := &ResolvedPolicy{Type: models.RotationTypeCount, MaxCount: 3}
	res := Evaluate(recs, p, now)

	require.Len(t, res.Delete, 2)
	del := toSet(res.Delete)
	// The two oldest go.
	assert.True(t, del[recs[3].ID])
	assert.True(t, del[recs[4].ID])
	// Deletions ordered oldest first.
	assert.Equal(t, recs[4].ID, res.Delete[0])
	assert.Equal(t, recs[3].ID, res.Delete[1])
}

func TestEvaluateCountPolicyFavoritesDoNotConsumeQuota(t *testing.T) {
	now := time.Now()
	fav := rec(10*24*time.Hour, gib, now)
	fav.IsFavorite = true
	a := rec(1*24*time.Hour, gib, now)
	b := rec(2*24*time.Hour, gib, now)
	c := rec(3*24*time.Hour, gib, now)

	p := &ResolvedPolicy{Type: models.RotationTypeCount, MaxCount: 2, ProtectFavorites: true}
	res := Evaluate([]models.Recording{fav, a, b, c}, p, now)

	del := toSet(res.Delete)
	assert.False(t, del[fav.ID], "favorite kept in addition to the quota")
	assert.False(t, del[a.ID])
	assert.False(t, del[b.ID])
	assert.True(t, del[c.ID])
}

func TestEvaluateSizePolicy(t *testing.T) {
	now := time.Now()
	recs := make([]models.Recording, 0, 4)
	for i := 0; i < 4; i++ {
		recs = append(recs, rec(time.Duration(i+1)*24*time.Hour, 10*gib, now))
	}
	p := &ResolvedPolicy{Type: models.RotationTypeSize, MaxSizeGB: 25}
	res := Evaluate(recs, p, now)

	// 40 GiB total, 25 GiB budget: the two oldest must go.
	require.Len(t, res.Delete, 2)
	del := toSet(res.Delete)
	assert.True(t, del[recs[2].ID])
	assert.True(t, del[recs[3].ID])
	assert.Zero(t, res.OverBudgetBytes)
}

func TestEvaluateSizePolicyProtectedOverBudget(t *testing.T) {
	now := time.Now()
	fav := rec(10*24*time.Hour, 30*gib, now)
	fav.IsFavorite = true
	plain := rec(1*24*time.Hour, 10*gib, now)

	p := &ResolvedPolicy{Type: models.RotationTypeSize, MaxSizeGB: 20, ProtectFavorites: true}
	res := Evaluate([]models.Recording{fav, plain}, p, now)

	del := toSet(res.Delete)
	assert.True(t, del[plain.ID])
	assert.False(t, del[fav.ID])
	assert.Equal(t, 10*gib, res.OverBudgetBytes)
}

func TestEvaluateActiveRecordingAlwaysKept(t *testing.T) {
	now := time.Now()
	active := models.Recording{ID: uuid.New(), FileName: "live.mp4", Status: models.RecordingStatusRecording}
	old := rec(90*24*time.Hour, gib, now)

	p := &ResolvedPolicy{Type: models.RotationTypeTime, MaxAgeDays: 1}
	res := Evaluate([]models.Recording{active, old}, p, now)

	del := toSet(res.Delete)
	assert.False(t, del[active.ID])
	assert.True(t, del[old.ID])
}

func TestEvaluateMissingEndTimeFlaggedAndKept(t *testing.T) {
	now := time.Now()
	broken := models.Recording{ID: uuid.New(), FileName: "broken.mp4", FileSize: gib, Status: models.RecordingStatusFailed}

	p := &ResolvedPolicy{Type: models.RotationTypeTime, MaxAgeDays: 1}
	res := Evaluate([]models.Recording{broken}, p, now)

	assert.Empty(t, res.Delete)
	assert.Equal(t, []uuid.UUID{broken.ID}, res.Flagged)
	assert.Equal(t, []uuid.UUID{broken.ID}, res.Keep)
}

func TestEvaluateMinFileSizeFloor(t *testing.T) {
	now := time.Now()
	junk := rec(time.Hour, 2*1024*1024, now)
	fine := rec(time.Hour, 200*1024*1024, now)
	favJunk := rec(time.Hour, 1024*1024, now)
	favJunk.IsFavorite = true

	p := &ResolvedPolicy{Type: models.RotationTypeCount, MaxCount: 100, MinFileSizeMB: 10, ProtectFavorites: true}
	res := Evaluate([]models.Recording{junk, fine, favJunk}, p, now)

	del := toSet(res.Delete)
	assert.True(t, del[junk.ID])
	assert.False(t, del[fine.ID])
	assert.False(t, del[favJunk.ID])
}

func TestEvaluateDeleteEmptyFilesIncludesFavorites(t *testing.T) {
	now := time.Now()
	emptyFav := rec(time.Hour, 0, now)
	emptyFav.IsFavorite = true

	p := &ResolvedPolicy{Type: models.RotationTypeCount, MaxCount: 100, ProtectFavorites: true, DeleteEmptyFiles: true}
	res := Evaluate([]models.Recording{emptyFav}, p, now)

	assert.Equal(t, []uuid.UUID{emptyFav.ID}, res.Delete)
}

func TestEvaluateExcludePatternsWinLast(t *testing.T) {
	now := time.Now()
	keepMe := rec(90*24*time.Hour, gib, now)
	keepMe.FileName = "finale_2024.mp4"
	goner := rec(90*24*time.Hour, gib, now)

	p := &ResolvedPolicy{Type: models.RotationTypeTime, MaxAgeDays: 30, ExcludePatterns: []string{"finale_*"}}
	res := Evaluate([]models.Recording{keepMe, goner}, p, now)

	del := toSet(res.Delete)
	assert.False(t, del[keepMe.ID])
	assert.True(t, del[goner.ID])
}

func TestEvaluateMalformedPatternFallsBackToSubstring(t *testing.T) {
	now := time.Now()
	r := rec(90*24*time.Hour, gib, now)
	r.FileName = "raid[special].mp4"

	p := &ResolvedPolicy{Type: models.RotationTypeTime, MaxAgeDays: 30, ExcludePatterns: []string{"[special"}}
	res := Evaluate([]models.Recording{r}, p, now)
	assert.Empty(t, res.Delete)
}

func TestEvaluateKeepDeletePartition(t *testing.T) {
	now := time.Now()
	recs := make([]models.Recording, 0, 10)
	for i := 0; i < 10; i++ {
		recs = append(recs, rec(time.Duration(i)*24*time.Hour, int64(i)*gib, now))
	}
	p := &ResolvedPolicy{Type: models.RotationTypeCount, MaxCount: 4, DeleteEmptyFiles: true}
	res := Evaluate(recs, p, now)

	assert.Equal(t, len(recs), len(res.Keep)+len(res.Delete))
	seen := toSet(res.Keep)
	for _, id := range res.Delete {
		assert.False(t, seen[id], "keep and delete must be disjoint")
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	now := time.Now()
	recs := make([]models.Recording, 0, 6)
	for i := 0; i < 6; i++ {
		recs = append(recs, rec(time.Duration(i+1)*24*time.Hour, 5*gib, now))
	}
	p := &ResolvedPolicy{Type: models.RotationTypeSize, MaxSizeGB: 12}

	first := Evaluate(recs, p, now)
	second := Evaluate(recs, p, now)
	assert.Equal(t, first.Delete, second.Delete)
	assert.Equal(t, first.Keep, second.Keep)
}

func TestEvaluateRoundTripConverges(t *testing.T) {
	now := time.Now()
	recs := make([]models.Recording, 0, 6)
	for i := 0; i < 6; i++ {
		recs = append(recs, rec(time.Duration(i+1)*24*time.Hour, 5*gib, now))
	}
	p := &ResolvedPolicy{Type: models.RotationTypeSize, MaxSizeGB: 12}

	first := Evaluate(recs, p, now)
	require.NotEmpty(t, first.Delete)

	deleted := toSet(first.Delete)
	var survivors []models.Recording
	for _, r := range recs {
		if !deleted[r.ID] {
			survivors = append(survivors, r)
		}
	}
	second := Evaluate(survivors, p, now)
	assert.Empty(t, second.Delete, "re-evaluating after applying deletions must be a no-op")
}

func TestEvaluateDeterministicTieBreak(t *testing.T) {
	now := time.Now()
	end := now.Add(-48 * time.Hour)
	a := models.Recording{ID: uuid.New(), FileName: "a.mp4", FileSize: gib, Status: models.RecordingStatusCompleted, EndTime: &end}
	b := models.Recording{ID: uuid.New(), FileName: "b.mp4", FileSize: gib, Status: models.RecordingStatusCompleted, EndTime: &end}

	p := &ResolvedPolicy{Type: models.RotationTypeCount, MaxCount: 1}
	res1 := Evaluate([]models.Recording{a, b}, p, now)
	res2 := Evaluate([]models.Recording{b, a}, p, now)
	require.Len(t, res1.Delete, 1)
	assert.Equal(t, res1.Delete, res2.Delete, "same verdict regardless of input order")
}
