package prediction

import (
	"sort"
	"time"

	"github.com/elonfeng/mememarket/pkg/source"
)

// Rank scores every candidate at now, drops those at or below minScore when
// it is set, and returns at most limit posts ordered by virality score.
// Candidates with equal scores keep their input order. The input slice is
// not modified.
func (s *Scorer) Rank(candidates []source.Post, now time.Time, limit int, minScore *float64) []source.Post {
	ranked := make([]source.Post, 0, len(candidates))
	for _, p := range candidates {
		v := s.Score(p, now)
		if minScore != nil && v <= *minScore {
			continue
		}
		p.ViralityScore = &v
		ranked = append(ranked, p)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].ViralityScore > *ranked[j].ViralityScore
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Rank is Scorer.Rank with the default logger.
func Rank(candidates []source.Post, now time.Time, limit int, minScore *float64) []source.Post {
	var s Scorer
	return s.Rank(candidates, now, limit, minScore)
}
