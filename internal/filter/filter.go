// Package filter decides which collected entries reach the output.
//
// A Spec either carries an advanced boolean expression, which replaces all
// structured filtering, or a set of structured filters applied as a
// conjunction. Every failure while serializing an entry or compiling a
// pattern excludes the entry instead of surfacing an error.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/entry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Spec selects entries for one extraction.
type Spec struct {
	LogLevels          []string `json:"logLevels,omitempty" yaml:"log_levels,omitempty" koanf:"log_levels"`
	Sources            []string `json:"sources,omitempty" yaml:"sources,omitempty" koanf:"sources"`
	Domains            []string `json:"domains,omitempty" yaml:"domains,omitempty" koanf:"domains"`
	Keywords           []string `json:"keywords,omitempty" yaml:"keywords,omitempty" koanf:"keywords"`
	ExcludePatterns    []string `json:"excludePatterns,omitempty" yaml:"exclude_patterns,omitempty" koanf:"exclude_patterns"`
	AdvancedExpression string   `json:"advancedExpression,omitempty" yaml:"advanced_expression,omitempty" koanf:"advanced_expression"`
}

// IsZero reports whether the spec filters nothing.
func (s Spec) IsZero() bool {
	return len(s.LogLevels) == 0 && len(s.Sources) == 0 && len(s.Domains) == 0 &&
		len(s.Keywords) == 0 && len(s.ExcludePatterns) == 0 && strings.TrimSpace(s.AdvancedExpression) == ""
}

// Engine evaluates one Spec. Patterns and the expression are compiled once
// by New. It is safe for concurrent use.
type Engine struct {
	spec   Spec
	logger *zap.Logger
	diag   *rate.Sometimes

	advanced bool
	expr     Node
	exprErr  error

	levels   map[string]bool
	sources  map[entry.Kind]bool
	domains  []*regexp.Regexp
	excludes []*regexp.Regexp
	patErr   error
}

// New compiles spec. Compilation problems are not returned: they make the
// affected entries fail closed and are reported by Err.
func New(spec Spec, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		spec:   spec,
		logger: logger.Named("filter"),
		diag:   &rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}

	if strings.TrimSpace(spec.AdvancedExpression) != "" {
		e.advanced = true
		e.expr, e.exprErr = Parse(spec.AdvancedExpression)
		if e.exprErr != nil {
			e.logger.Warn("advanced expression rejected, no entries will match",
				zap.String("expression", spec.AdvancedExpression),
				zap.Error(e.exprErr),
			)
		}
		return e
	}

	if len(spec.LogLevels) > 0 {
		e.levels = make(map[string]bool, len(spec.LogLevels))
		for _, l := range spec.LogLevels {
			e.levels[NormalizeLevel(l)] = true
		}
	}
	if len(spec.Sources) > 0 {
		e.sources = make(map[entry.Kind]bool, len(spec.Sources))
		for _, s := range spec.Sources {
			e.sources[entry.Kind(strings.ToLower(strings.TrimSpace(s)))] = true
		}
	}
	for _, d := range spec.Domains {
		re, err := compileDomain(d)
		if err != nil {
			e.patErr = err
			break
		}
		e.domains = append(e.domains, re)
	}
	for _, p := range spec.ExcludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			e.patErr = fmt.Errorf("exclude pattern %q: %w", p, err)
			break
		}
		e.excludes = append(e.excludes, re)
	}
	if e.patErr != nil {
		e.logger.Warn("filter pattern rejected, affected entries will be excluded", zap.Error(e.patErr))
	}
	return e
}

// Err returns the compilation problem that makes entries fail closed.
func (e *Engine) Err() error {
	if e.exprErr != nil {
		return e.exprErr
	}
	return e.patErr
}

// Filter returns the entries that pass, in order.
func (e *Engine) Filter(entries []entry.Entry) []entry.Entry {
	out := make([]entry.Entry, 0, len(entries))
	for _, en := range entries {
		if e.ShouldInclude(en) {
			out = append(out, en)
		}
	}
	return out
}

// ShouldInclude reports whether en passes the spec.
func (e *Engine) ShouldInclude(en entry.Entry) bool {
	if e.advanced {
		return e.matchExpression(en)
	}
	return e.matchStructured(en)
}

func (e *Engine) matchExpression(en entry.Entry) bool {
	if e.exprErr != nil {
		e.diagnose("excluding entry: advanced expression is invalid", zap.Error(e.exprErr))
		return false
	}
	text, err := en.Serialize()
	if err != nil {
		e.diagnose("excluding entry: serialization failed", zap.Error(err))
		return false
	}
	return e.expr.Eval(text)
}

func (e *Engine) matchStructured(en entry.Entry) bool {
	if e.levels != nil && (en.Kind == entry.KindConsole || en.Kind == entry.KindLog) {
		level := NormalizeLevel(en.Level())
		if level == "" {
			e.diagnose("excluding entry without a usable level", zap.String("kind", string(en.Kind)))
			return false
		}
		if !e.levels[level] {
			return false
		}
	}

	if e.sources != nil && !e.sources[en.Kind] {
		return false
	}

	if len(e.spec.Domains) > 0 && en.Kind == entry.KindNetwork {
		if e.patErr != nil {
			return false
		}
		if !e.matchDomain(en.URL()) {
			return false
		}
	}

	if len(e.spec.Keywords) == 0 && len(e.spec.ExcludePatterns) == 0 {
		return true
	}
	if e.patErr != nil {
		return false
	}

	text, err := en.Serialize()
	if err != nil {
		e.diagnose("excluding entry: serialization failed", zap.Error(err))
		return false
	}

	if len(e.spec.Keywords) > 0 {
		found := false
		for _, kw := range e.spec.Keywords {
			if strings.Contains(text, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, re := range e.excludes {
		if re.MatchString(text) {
			return false
		}
	}
	return true
}

func (e *Engine) matchDomain(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	for _, re := range e.domains {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

func (e *Engine) diagnose(msg string, fields ...zap.Field) {
	e.diag.Do(func() {
		e.logger.Warn(msg, fields...)
	})
}

// compileDomain turns a URL pattern with * wildcards into a case-insensitive
// expression that matches anywhere in the URL.
func compileDomain(pattern string) (*regexp.Regexp, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("domain pattern is empty")
	}
	expr := "(?i)" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, `.*`)
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("domain pattern %q: %w", pattern, err)
	}
	return re, nil
}

// NormalizeLevel lowercases a level and folds common aliases.
func NormalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "warn":
		return "warning"
	case "err":
		return "error"
	}
	return level
}
