// Package scoring computes per-answer points and cross-player rankings.
// Everything here is pure: no I/O and no shared state.
package scoring

import "sort"

const (
	// BasePoints is awarded for any correct answer.
	BasePoints = 10

	fastBonus     = 5
	fastCutoffMs  = 3000
	quickBonus    = 3
	quickCutoffMs = 5000
)

// Score returns the points for one answer. Callers clamp responseTimeMs first.
func Score(isCorrect bool, responseTimeMs int) int {
	if !isCorrect {
		return 0
	}
	return BasePoints + SpeedBonus(responseTimeMs)
}

// SpeedBonus returns the bonus tier for a response time. Tier boundaries belong to the faster tier.
func SpeedBonus(ms int) int {
	switch {
	case ms <= fastCutoffMs:
		return fastBonus
	case ms <= quickCutoffMs:
		return quickBonus
	default:
		return 0
	}
}

// ClampResponseTime bounds a reported response time to [0, timerMs].
func ClampResponseTime(ms, timerMs int) int {
	if ms < 0 {
		return 0
	}
	if timerMs > 0 && ms > timerMs {
		return timerMs
	}
	return ms
}

// Entry is one player's standing going into a ranking.
type Entry struct {
	PlayerID                 string
	TotalScore               int
	CumulativeResponseTimeMs int64
}

// Ranked is an Entry with its competition rank.
type Ranked struct {
	Entry
	Rank int
}

// Rank orders entries by score (desc) then cumulative response time (asc) and assigns
// standard competition ranks: exact ties share a rank and the next entry takes its position.
func Rank(entries []Entry) []Ranked {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalScore != sorted[j].TotalScore {
			return sorted[i].TotalScore > sorted[j].TotalScore
		}
		return sorted[i].CumulativeResponseTimeMs < sorted[j].CumulativeResponseTimeMs
	})

	ranked := make([]Ranked, len(sorted))
	for i, e := range sorted {
		rank := i + 1
		if i > 0 {
			prev := ranked[i-1]
			if prev.TotalScore == e.TotalScore && prev.CumulativeResponseTimeMs == e.CumulativeResponseTimeMs {
				rank = prev.Rank
			}
		}
		ranked[i] = Ranked{Entry: e, Rank: rank}
	}
	return ranked
}
