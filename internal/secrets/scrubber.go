package secrets

import (
	"fmt"
	"slices"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Scrubber detects and redacts secrets from content.
type Scrubber interface {
	Scrub(content string) *Result
	IsEnabled() bool
}

type scrubber struct {
	config   *Config
	detector *detect.Detector
}

type span struct {
	start, end int
}

// New creates a Scrubber. If cfg is nil, DefaultConfig() is used.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &scrubber{config: cfg}
	if cfg.Enabled && cfg.Gitleaks {
		detector, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("load gitleaks rules: %w", err)
		}
		s.detector = detector
	}
	return s, nil
}

// Scrub redacts secrets from the content.
func (s *scrubber) Scrub(content string) *Result {
	result := &Result{
		Original: content,
		Scrubbed: content,
		ByRule:   make(map[string]int),
	}
	if !s.config.Enabled || content == "" {
		return result
	}

	var spans []span
	for _, rule := range s.config.compiledRules {
		for _, m := range rule.pattern.FindAllStringSubmatchIndex(content, -1) {
			start, end := m[0], m[1]
			// Redact only the captured value when the rule has a group.
			if len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			}
			if s.isAllowed(content[start:end]) {
				continue
			}
			result.add(Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				StartIndex:  start,
				EndIndex:    end,
			})
			spans = append(spans, span{start, end})
		}
	}

	if s.detector != nil {
		for _, f := range s.detector.DetectString(content) {
			if f.Secret == "" || s.isAllowed(f.Secret) {
				continue
			}
			offset := 0
			for {
				idx := strings.Index(content[offset:], f.Secret)
				if idx < 0 {
					break
				}
				start := offset + idx
				end := start + len(f.Secret)
				result.add(Finding{
					RuleID:      "gitleaks:" + f.RuleID,
					Description: f.Description,
					Severity:    "high",
					StartIndex:  start,
					EndIndex:    end,
				})
				spans = append(spans, span{start, end})
				offset = end
			}
		}
	}

	if len(spans) > 0 {
		result.Scrubbed = redact(content, spans, s.config.RedactionString)
	}
	return result
}

// IsEnabled returns whether scrubbing is enabled.
func (s *scrubber) IsEnabled() bool {
	return s.config.Enabled
}

func (s *scrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

// redact replaces merged spans, handling overlapping matches from
// different rules.
func redact(content string, spans []span, replacement string) string {
	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })

	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			last.end = max(last.end, cur.end)
			continue
		}
		merged = append(merged, cur)
	}

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, sp := range merged {
		b.WriteString(content[prev:sp.start])
		b.WriteString(replacement)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

// NoopScrubber leaves content unchanged.
type NoopScrubber struct{}

func (NoopScrubber) Scrub(content string) *Result {
	return &Result{Original: content, Scrubbed: content, ByRule: map[string]int{}}
}

func (NoopScrubber) IsEnabled() bool { return false }

var _ Scrubber = (*scrubber)(nil)
var _ Scrubber = NoopScrubber{}
