package scoring

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultNarratives are the keyword patterns matched when none are configured.
var DefaultNarratives = []string{
	`\bai\b`, `agent`, `gpt`, `trump`, `elon`, `pepe`, `doge`, `cat`, `frog`,
}

// NarrativeMatcher matches asset symbols and names against a precompiled
// set of case-insensitive patterns.
type NarrativeMatcher struct {
	patterns []*regexp.Regexp
}

// NewNarrativeMatcher compiles patterns. Blank patterns are skipped; an
// invalid pattern is an error.
func NewNarrativeMatcher(patterns []string) (*NarrativeMatcher, error) {
	m := &NarrativeMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("narrative pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Len returns the number of compiled patterns.
func (m *NarrativeMatcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

// Match returns the first pattern matching symbol or name, if any.
func (m *NarrativeMatcher) Match(symbol, name string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, re := range m.patterns {
		if re.MatchString(symbol) || re.MatchString(name) {
			return re.String(), true
		}
	}
	return "", false
}
