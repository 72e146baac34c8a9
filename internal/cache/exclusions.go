package cache

import (
	"fmt"
	"regexp"
)

// ExclusionList keeps selected models out of the dispatch response cache.
// The orchestrator consults it after resolving the sub-request's model and
// skips the cache plan entirely on a match, regardless of the capability TTL.
// Two rule kinds:
//
//   - Exact: the resolved model name must equal the rule.
//   - Regex: the resolved model name is tested against a compiled regexp.
//
// A nil *ExclusionList is safe to call — Matches always returns false, so a
// deployment with no exclusion rules configures nothing.
type ExclusionList struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

// NewExclusionList compiles the configured exact names and regex patterns
// (CACHE_EXCLUDE_EXACT / CACHE_EXCLUDE_PATTERNS). A pattern that fails to
// compile is a startup error, not a silently dead rule.
func NewExclusionList(exact, patterns []string) (*ExclusionList, error) {
	el := &ExclusionList{
		exact: make(map[string]struct{}, len(exact)),
	}

	for _, e := range exact {
		if e != "" {
			el.exact[e] = struct{}{}
		}
	}

	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("cache exclusion: invalid pattern %q: %w", p, err)
		}
		el.patterns = append(el.patterns, re)
	}

	return el, nil
}

// Matches reports whether responses for the given model must bypass the
// cache. Exact rules are checked first (O(1)), then regex patterns in order.
func (el *ExclusionList) Matches(model string) bool {
	if el == nil {
		return false
	}
	if _, ok := el.exact[model]; ok {
		return true
	}
	for _, re := range el.patterns {
		if re.MatchString(model) {
			return true
		}
	}
	return false
}

// Len returns the total number of exclusion rules configured.
func (el *ExclusionList) Len() int {
	if el == nil {
		return 0
	}
	return len(el.exact) + len(el.patterns)
}
