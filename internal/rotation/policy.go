// Package rotation decides which recorded files to delete for a streamer and
// applies those decisions. Evaluation is a pure function over the streamer's
// file set and one resolved policy; application performs the deletions and
// reports what it could not do.
package rotation

import (
	"sort"
	"strings"

	"github.com/streamvault/backend/internal/models"
)

// ResolvedPolicy is the single effective retention configuration for one
// streamer at evaluation time. It unifies the schedule's inline settings and
// the global RotationPolicy entity: inline settings always win, otherwise the
// highest-priority enabled global policy applies.
type ResolvedPolicy struct {
	Source           string // "schedule" or the global policy name
	Type             string // time | count | size
	MaxAgeDays       int
	MaxCount         int
	MaxSizeGB        int
	ProtectFavorites bool
	DeleteEmptyFiles bool
	ExcludePatterns  []string
	MinFileSizeMB    int
}

// Resolve produces the effective policy for a schedule, or nil when rotation
// is off for this streamer.
func Resolve(s *models.Schedule, globals []models.RotationPolicy) *ResolvedPolicy {
	if s.RotationEnabled && validType(s.RotationType) {
		return &ResolvedPolicy{
			Source:           "schedule",
			Type:             s.RotationType,
			MaxAgeDays:       s.MaxAgeDays,
			MaxCount:         s.MaxCount,
			MaxSizeGB:        s.MaxSizeGB,
			ProtectFavorites: s.ProtectFavorites,
			DeleteEmptyFiles: s.DeleteEmptyFiles,
		}
	}

	best := -1
	for i, p := range globals {
		if !p.Enabled || !validType(p.RotationType) {
			continue
		}
		if best == -1 ||
			p.Priority > globals[best].Priority ||
			(p.Priority == globals[best].Priority && p.Name < globals[best].Name) {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	p := globals[best]
	return &ResolvedPolicy{
		Source:           p.Name,
		Type:             p.RotationType,
		MaxAgeDays:       p.MaxAgeDays,
		MaxCount:         p.MaxCount,
		MaxSizeGB:        p.MaxSizeGB,
		ProtectFavorites: p.ProtectFavorites,
		DeleteEmptyFiles: p.DeleteEmptyFiles,
		ExcludePatterns:  splitPatterns(p.ExcludePatterns),
		MinFileSizeMB:    p.MinFileSizeMB,
	}
}

func validType(t string) bool {
	return t == models.RotationTypeTime || t == models.RotationTypeCount || t == models.RotationTypeSize
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sortByEndDesc orders newest-first with id as the stable tie-break.
func sortByEndDesc(recs []models.Recording) {
	sort.SliceStable(recs, func(i, j int) bool {
		ti, tj := endOf(&recs[i]), endOf(&recs[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return recs[i].ID.String() < recs[j].ID.String()
	})
}

// sortByEndAsc orders oldest-first with id as the stable tie-break.
func sortByEndAsc(recs []models.Recording) {
	sort.SliceStable(recs, func(i, j int) bool {
		ti, tj := endOf(&recs[i]), endOf(&recs[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return recs[i].ID.String() < recs[j].ID.String()
	})
}
