package match

import (
	"sort"
	"time"

	"github.com/spigell/leads/internal/ai"
	"github.com/spigell/leads/internal/jobs"
)

// Result pairs a posting with its assessment and tier.
type Result struct {
	Posting       *jobs.Posting `json:"posting"`
	Fingerprint   string        `json:"fingerprint"`
	Assessment    ai.Assessment `json:"assessment"`
	Tier          Tier          `json:"tier"`
	TargetCompany bool          `json:"target_company,omitempty"`
}

// Rank returns results ordered by tier, then confidence, then posting time, all descending.
// Results equal on all three keep their input order. The input slice is not modified.
func Rank(results []Result) []Result {
	ranked := append([]Result(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Tier != b.Tier {
			return a.Tier > b.Tier
		}
		if a.Assessment.Confidence != b.Assessment.Confidence {
			return a.Assessment.Confidence > b.Assessment.Confidence
		}
		return postedAt(a).After(postedAt(b))
	})
	return ranked
}

// CountByTier returns how many results fall in each tier.
func CountByTier(results []Result) map[Tier]int {
	counts := map[Tier]int{TierHigh: 0, TierMedium: 0, TierLow: 0}
	for _, r := range results {
		counts[r.Tier]++
	}
	return counts
}

func postedAt(r Result) time.Time {
	if r.Posting == nil {
		return time.Time{}
	}
	return r.Posting.PostedAt
}
