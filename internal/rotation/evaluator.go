package rotation

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streamvault/backend/internal/models"
)

// Result is the evaluator's verdict over one streamer's file set.
// Keep and Delete are disjoint and together cover every input id.
type Result struct {
	Keep   []uuid.UUID
	Delete []uuid.UUID // oldest-first, the order deletions should run in
	// Flagged lists recordings kept fail-safe because their end time is
	// missing, for operator visibility.
	Flagged []uuid.UUID
	// OverBudgetBytes is nonzero when a size policy could not get under the
	// threshold because everything left is protected.
	OverBudgetBytes int64
}

// Evaluate computes the deletion set for one streamer under one resolved
// policy. Pure: no I/O, no mutation of recs, deterministic for a given input
// (end-time ties break on id). Recordings still in "recording" status and
// recordings without a parseable end time are always kept. Evaluate never
// fails on malformed records; it flags them instead.
func Evaluate(recs []models.Recording, p *ResolvedPolicy, now time.Time) Result {
	var res Result
	if p == nil {
		for _, r := range recs {
			res.Keep = append(res.Keep, r.ID)
		}
		return res
	}

	deleteSet := make(map[uuid.UUID]bool)
	protected := func(r *models.Recording) bool {
		return p.ProtectFavorites && r.IsFavorite
	}
	// Active captures and records with no usable end time never enter the
	// type-specific passes.
	eligible := make([]models.Recording, 0, len(recs))
	for _, r := range recs {
		if r.Status == models.RecordingStatusRecording {
			continue
		}
		if endOf(&r).IsZero() {
			res.Flagged = append(res.Flagged, r.ID)
			continue
		}
		eligible = append(eligible, r)
	}

	switch p.Type {
	case models.RotationTypeTime:
		cutoff := now.AddDate(0, 0, -p.MaxAgeDays)
		for _, r := range eligible {
			if endOf(&r).Before(cutoff) && !protected(&r) {
				deleteSet[r.ID] = true
			}
		}

	case models.RotationTypeCount:
		// Protected recordings are kept in addition to the quota; they never
		// displace unprotected ones.
		candidates := make([]models.Recording, 0, len(eligible))
		for _, r := range eligible {
			if !protected(&r) {
				candidates = append(candidates, r)
			}
		}
		sortByEndDesc(candidates)
		for i := p.MaxCount; i < len(candidates); i++ {
			deleteSet[candidates[i].ID] = true
		}

	case models.RotationTypeSize:
		// Protected files still occupy disk, so they count toward the total,
		// but only unprotected files may be deleted, oldest first.
		threshold := int64(p.MaxSizeGB) * 1024 * 1024 * 1024
		var total int64
		for _, r := range recs {
			if r.Status != models.RecordingStatusRecording {
				total += r.FileSize
			}
		}
		oldest := make([]models.Recording, len(eligible))
		copy(oldest, eligible)
		sortByEndAsc(oldest)
		for _, r := range oldest {
			if total <= threshold {
				break
			}
			if protected(&r) {
				continue
			}
			deleteSet[r.ID] = true
			total -= r.FileSize
		}
		if total > threshold {
			res.OverBudgetBytes = total - threshold
		}
	}

	// Junk fragments below the size floor. Favorites under protection are
	// exempt; zero-byte handling comes next and is stricter.
	if p.MinFileSizeMB > 0 {
		floor := int64(p.MinFileSizeMB) * 1024 * 1024
		for _, r := range recs {
			if r.Status == models.RecordingStatusRecording || protected(&r) {
				continue
			}
			if r.FileSize < floor {
				deleteSet[r.ID] = true
			}
		}
	}

	// Empty files are deleted regardless of policy type or protection:
	// a zero-byte file holds nothing worth favoriting.
	if p.DeleteEmptyFiles {
		for _, r := range recs {
			if r.Status == models.RecordingStatusRecording {
				continue
			}
			if r.FileSize == 0 {
				deleteSet[r.ID] = true
			}
		}
	}

	// Exclusions run last and win over every deletion reason.
	if len(p.ExcludePatterns) > 0 {
		for _, r := range recs {
			if deleteSet[r.ID] && matchesAny(p.ExcludePatterns, r.FileName) {
				delete(deleteSet, r.ID)
			}
		}
	}

	for _, r := range recs {
		if !deleteSet[r.ID] {
			res.Keep = append(res.Keep, r.ID)
		}
	}
	deleted := make([]models.Recording, 0, len(deleteSet))
	for _, r := range recs {
		if deleteSet[r.ID] {
			deleted = append(deleted, r)
		}
	}
	sortByEndAsc(deleted)
	for _, r := range deleted {
		res.Delete = append(res.Delete, r.ID)
	}
	return res
}

func endOf(r *models.Recording) time.Time {
	if r.EndTime == nil {
		return time.Time{}
	}
	return *r.EndTime
}

// matchesAny checks the file name against glob patterns; a malformed pattern
// degrades to a substring match rather than dropping the exclusion.
func matchesAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		ok, err := path.Match(pat, name)
		if err == nil && ok {
			return true
		}
		if err != nil && strings.Contains(name, pat) {
			return true
		}
	}
	return false
}
