// Package catalog holds the attack pattern definitions the matcher evaluates.
// The installed set is an immutable snapshot swapped atomically on load, so
// matches in flight see either the old or the new catalog in its entirety.
package catalog

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"threatcorr/pkg/models"
)

// Pattern is a declarative, ordered, time-bounded template describing a
// multi-stage attack. Sequence lists event kinds earliest stage first; Window
// bounds the elapsed time between the first and last matched event;
// MatchThreshold is the minimum fraction of sequence positions that must be
// satisfied in order.
type Pattern struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	Severity       models.Severity `yaml:"severity"`
	Description    string          `yaml:"description"`
	Sequence       []string        `yaml:"sequence"`
	Window         time.Duration   `yaml:"window"`
	MatchThreshold float64         `yaml:"match_threshold"`
}

type snapshot struct {
	patterns  []Pattern
	maxWindow time.Duration
}

// Catalog is the installed pattern set. Reads never block loads and loads
// never tear reads.
type Catalog struct {
	kinds *models.KindRegistry
	snap  atomic.Pointer[snapshot]
}

// New creates an empty catalog whose patterns are validated against the
// given kind registry.
func New(kinds *models.KindRegistry) *Catalog {
	c := &Catalog{kinds: kinds}
	c.snap.Store(&snapshot{})
	return c
}

// Load validates every pattern and replaces the catalog atomically. On any
// violation the whole load is rejected and the previous catalog stays
// installed.
func (c *Catalog) Load(patterns []Pattern) error {
	next := &snapshot{patterns: make([]Pattern, 0, len(patterns))}
	seen := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		if err := c.validate(p); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return &models.InvalidPatternError{PatternID: p.ID, Reason: "duplicate pattern id"}
		}
		seen[p.ID] = struct{}{}
		if p.Window > next.maxWindow {
			next.maxWindow = p.Window
		}
		next.patterns = append(next.patterns, p)
	}
	c.snap.Store(next)
	return nil
}

// All returns a read-only snapshot of the installed patterns.
func (c *Catalog) All() []Pattern {
	return c.snap.Load().patterns
}

// MaxWindow returns the largest pattern window in the installed catalog.
func (c *Catalog) MaxWindow() time.Duration {
	return c.snap.Load().maxWindow
}

func (c *Catalog) validate(p Pattern) error {
	if strings.TrimSpace(p.ID) == "" {
		return &models.InvalidPatternError{PatternID: p.ID, Reason: "pattern id is empty"}
	}
	if len(p.Sequence) == 0 {
		return &models.InvalidPatternError{PatternID: p.ID, Reason: "sequence is empty"}
	}
	if p.MatchThreshold <= 0 || p.MatchThreshold > 1 {
		return &models.InvalidPatternError{
			PatternID: p.ID,
			Reason:    fmt.Sprintf("match_threshold %.2f outside (0, 1]", p.MatchThreshold),
		}
	}
	if p.Window <= 0 {
		return &models.InvalidPatternError{PatternID: p.ID, Reason: "window must be positive"}
	}
	if !p.Severity.Valid() {
		return &models.InvalidPatternError{
			PatternID: p.ID,
			Reason:    fmt.Sprintf("unknown severity %q", p.Severity),
		}
	}
	for _, kind := range p.Sequence {
		if !c.kinds.Known(kind) {
			return &models.InvalidPatternError{
				PatternID: p.ID,
				Reason:    fmt.Sprintf("sequence references unknown event kind %q", kind),
			}
		}
	}
	return nil
}
