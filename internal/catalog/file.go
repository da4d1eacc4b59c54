package catalog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"threatcorr/pkg/models"
)

// File is the on-disk catalog document.
type File struct {
	Version  int          `yaml:"version"`
	Defaults FileDefaults `yaml:"defaults"`
	Patterns []Pattern    `yaml:"patterns"`
}

// FileDefaults are fallback options applied to patterns that omit them.
type FileDefaults struct {
	Window         time.Duration   `yaml:"window"`
	MatchThreshold float64         `yaml:"match_threshold"`
	Severity       models.Severity `yaml:"severity"`
}

// LoadFile reads attack patterns from a YAML file, applying file-level
// defaults and trimming sequence entries. Validation happens at Load time.
func LoadFile(path string) ([]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var doc File
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	if doc.Defaults.Window <= 0 {
		doc.Defaults.Window = 10 * time.Minute
	}
	if doc.Defaults.MatchThreshold <= 0 {
		doc.Defaults.MatchThreshold = 1.0
	}
	if doc.Defaults.Severity == "" {
		doc.Defaults.Severity = models.SeverityMedium
	}

	for i := range doc.Patterns {
		p := &doc.Patterns[i]
		if p.ID == "" {
			p.ID = fmt.Sprintf("pattern-%d", i+1)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.Window <= 0 {
			p.Window = doc.Defaults.Window
		}
		if p.MatchThreshold <= 0 {
			p.MatchThreshold = doc.Defaults.MatchThreshold
		}
		if p.Severity == "" {
			p.Severity = doc.Defaults.Severity
		}
		if len(p.Sequence) > 0 {
			clean := make([]string, 0, len(p.Sequence))
			for _, s := range p.Sequence {
				s = strings.TrimSpace(s)
				if s != "" {
					clean = append(clean, s)
				}
			}
			p.Sequence = clean
		}
	}
	return doc.Patterns, nil
}
