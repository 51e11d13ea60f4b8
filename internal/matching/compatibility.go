// Package matching scores how compatible two profiles are from their
// interests, qualities and what they are looking for, and adjusts the
// score with swipe feedback.
package matching

import (
	"math"
	"sort"

	"brewnet-server/internal/models"
)

const (
	cosineWeight     = 0.7
	preferenceWeight = 0.3

	likeBoost    = 1.2
	passDampener = 0.8
)

// Candidate is the part of a profile the model reads.
type Candidate struct {
	ID        string
	Interests map[string]bool
	Qualities map[string]bool
	Want      string
}

func FromProfile(p *models.Profile) Candidate {
	return Candidate{
		ID:        p.ID,
		Interests: p.Interests.Data(),
		Qualities: p.Qualities.Data(),
		Want:      p.Want,
	}
}

type Match struct {
	ID    string  `json:"userId"`
	Score float64 `json:"score"`
}

// Cosine is the cosine similarity of the interest and quality indicator
// vectors. Profiles with nothing selected score 0.
func Cosine(a, b Candidate) float64 {
	va, vb := indicators(a), indicators(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}
	var dot float64
	for k := range va {
		if vb[k] {
			dot++
		}
	}
	return dot / (math.Sqrt(float64(len(va))) * math.Sqrt(float64(len(vb))))
}

func indicators(c Candidate) map[string]bool {
	v := make(map[string]bool, len(c.Interests)+len(c.Qualities))
	for k, on := range c.Interests {
		if on {
			v["interest:"+k] = true
		}
	}
	for k, on := range c.Qualities {
		if on {
			v["quality:"+k] = true
		}
	}
	return v
}

// PreferenceScore is the fraction of preference checks that pass: a shared
// interest, compatible seek, and each quality one side selected being
// selected by the other.
func PreferenceScore(a, b Candidate) float64 {
	var score, checks float64

	switch {
	case overlaps(a.Interests, b.Interests):
		score++
	case hasAny(a.Interests) != hasAny(b.Interests):
		score += 0.5
	}
	checks++

	if SeeksCompatible(a.Want, b.Want) {
		score++
	}
	checks++

	for q, on := range a.Qualities {
		if !on {
			continue
		}
		checks++
		if b.Qualities[q] {
			score++
		}
	}
	for q, on := range b.Qualities {
		if !on {
			continue
		}
		checks++
		if a.Qualities[q] {
			score++
		}
	}

	return score / checks
}

// SeeksCompatible is true when both seek the same thing, either seeks both,
// or either has not said.
func SeeksCompatible(a, b string) bool {
	if a == "" || b == "" || a == b {
		return true
	}
	return a == models.WantBoth || b == models.WantBoth
}

// Adjust applies swipe feedback to a similarity and clips it to [0,1].
func Adjust(similarity float64, actions ...string) float64 {
	for _, action := range actions {
		switch action {
		case models.SwipeLike:
			similarity *= likeBoost
		case models.SwipePass:
			similarity *= passDampener
		}
		similarity = clip(similarity)
	}
	return clip(similarity)
}

// Score combines the feedback-adjusted cosine with the preference score.
func Score(a, b Candidate, feedback ...string) float64 {
	return cosineWeight*Adjust(Cosine(a, b), feedback...) + preferenceWeight*PreferenceScore(a, b)
}

// Rank scores every candidate in pool against self and returns the best
// topN, highest first. feedback is keyed by candidate id.
func Rank(self Candidate, pool []Candidate, feedback map[string][]string, topN int) []Match {
	matches := make([]Match, 0, len(pool))
	for _, c := range pool {
		if c.ID == self.ID {
			continue
		}
		matches = append(matches, Match{ID: c.ID, Score: Score(self, c, feedback[c.ID]...)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topN > 0 && len(matches) > topN {
		matches = matches[:topN]
	}
	return matches
}

func overlaps(a, b map[string]bool) bool {
	for k, on := range a {
		if on && b[k] {
			return true
		}
	}
	return false
}

func hasAny(m map[string]bool) bool {
	for _, on := range m {
		if on {
			return true
		}
	}
	return false
}

func clip(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
