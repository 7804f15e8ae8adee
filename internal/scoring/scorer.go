// Package scoring computes the bounded confidence score of a signal.
package scoring

const (
	// MinScore is the lowest possible score.
	MinScore = 0
	// MaxScore is the highest possible score.
	MaxScore = 100
)

// Scorer maps a credible-wallet match count and a narrative bonus to a score.
// The base is BaseOffset + PerMatch*matchCount, saturating at BaseCeiling.
type Scorer struct {
	BaseOffset     int
	PerMatch       int
	BaseCeiling    int
	NarrativeBonus int
}

// DefaultScorer returns the default scorer: 2 matches score 60,
// a narrative match adds 20.
func DefaultScorer() Scorer {
	return Scorer{
		BaseOffset:     40,
		PerMatch:       10,
		BaseCeiling:    100,
		NarrativeBonus: 20,
	}
}

// Base returns the base score for matchCount. It never decreases as
// matchCount grows and is 0 for no matches.
func (s Scorer) Base(matchCount int) int {
	if matchCount <= 0 {
		return 0
	}
	base := s.BaseOffset + s.PerMatch*matchCount
	if s.BaseCeiling > 0 && base > s.BaseCeiling {
		base = s.BaseCeiling
	}
	return base
}

// Score returns clamp(Base(matchCount) + bonus, 0, 100).
// Pass narrative=true to apply NarrativeBonus.
func (s Scorer) Score(matchCount int, narrative bool) int {
	score := s.Base(matchCount)
	if narrative {
		score += s.NarrativeBonus
	}
	return clamp(score)
}

func clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
