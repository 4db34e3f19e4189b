package engine

import (
	"sort"

	"raidbot/internal/domain"
	"raidbot/internal/repo"
)

// trustRank orders review priority: high first, then medium, then new,
// then low. A short bad history ranks below no history at all.
var trustRank = map[string]int{
	domain.TrustHigh:   0,
	domain.TrustMedium: 1,
	domain.TrustNew:    2,
	domain.TrustLow:    3,
}

func scoreFromCounts(subjectID int64, counts repo.TrustCounts) domain.TrustScore {
	s := domain.TrustScore{
		SubjectID:     subjectID,
		TotalPrior:    counts.Total,
		ApprovedPrior: counts.Approved,
	}
	if counts.Total == 0 {
		s.Level = domain.TrustNew
		return s
	}
	s.ApprovalRate = float64(counts.Approved) / float64(counts.Total)
	switch {
	case s.ApprovalRate >= 0.8 && counts.Total >= 3:
		s.Level = domain.TrustHigh
	case s.ApprovalRate >= 0.5:
		s.Level = domain.TrustMedium
	default:
		s.Level = domain.TrustLow
	}
	return s
}

// sortByTrust orders pending completions by the submitter's trust level,
// preserving submission order within a level.
func sortByTrust(pending []domain.Completion, scores map[int64]domain.TrustScore) {
	sort.SliceStable(pending, func(i, j int) bool {
		return trustRank[scores[pending[i].SubjectID].Level] < trustRank[scores[pending[j].SubjectID].Level]
	})
}
