// Package matcher implements the correlation algorithm: a greedy
// chronological subsequence match of an actor's event history against each
// catalog pattern, bounded by the pattern's time window.
package matcher

import (
	"threatcorr/internal/catalog"
	"threatcorr/pkg/models"
)

// ratioSlack absorbs float division error when comparing against the
// configured threshold.
const ratioSlack = 1e-9

// Candidate is one satisfied pattern occurrence before duplicate
// suppression.
type Candidate struct {
	Pattern catalog.Pattern
	Matched []models.Event
	Ratio   float64
}

// Evaluate runs every pattern against the actor's history. Events must be in
// chronological order, oldest first. Patterns are independent; overlapping
// matches across patterns are all reported.
func Evaluate(events []models.Event, patterns []catalog.Pattern) []Candidate {
	if len(events) == 0 || len(patterns) == 0 {
		return nil
	}
	out := make([]Candidate, 0, 4)
	for _, p := range patterns {
		if cand, ok := evaluatePattern(events, p); ok {
			out = append(out, cand)
		}
	}
	return out
}

// evaluatePattern walks the history once, consuming each matching event
// against the earliest unsatisfied sequence position with its kind. A
// position is never satisfied twice and each matched event advances the
// cursor, so repeated kinds in the sequence require distinct events.
// Matching stops once the elapsed time since the first matched event exceeds
// the window. The candidate counts only if the terminal sequence position was
// matched and the achieved ratio meets the threshold.
func evaluatePattern(events []models.Event, p catalog.Pattern) (Candidate, bool) {
	seq := p.Sequence
	if len(seq) == 0 {
		return Candidate{}, false
	}

	cursor := 0
	matched := make([]models.Event, 0, len(seq))
	for _, ev := range events {
		if cursor >= len(seq) {
			break
		}
		if len(matched) > 0 && p.Window > 0 && ev.OccurredAt.Sub(matched[0].OccurredAt) > p.Window {
			break
		}
		pos := nextPosition(seq, cursor, ev.Kind)
		if pos < 0 {
			continue
		}
		matched = append(matched, ev)
		cursor = pos + 1
	}

	// cursor reaches len(seq) only when the final stage was consumed.
	if cursor < len(seq) {
		return Candidate{}, false
	}
	ratio := float64(len(matched)) / float64(len(seq))
	if ratio+ratioSlack < p.MatchThreshold {
		return Candidate{}, false
	}
	return Candidate{Pattern: p, Matched: matched, Ratio: ratio}, true
}

// nextPosition returns the earliest sequence position at or after cursor
// whose kind equals the event's kind, or -1. Skipped positions stay
// unsatisfied, which is what lowers the match ratio for noisy histories.
func nextPosition(seq []string, cursor int, kind string) int {
	for i := cursor; i < len(seq); i++ {
		if seq[i] == kind {
			return i
		}
	}
	return -1
}
