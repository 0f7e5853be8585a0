package voice

import (
	"context"
	"strings"
	"sync/atomic"
)

type Category string

const (
	CategorySession    Category = "session"
	CategoryNavigation Category = "navigation"
	CategoryAI         Category = "ai"
	CategoryUtility    Category = "utility"
)

// Action runs when a rule matches. Session actions go through the
// controller's guarded operations.
type Action func(ctx context.Context) error

type Rule struct {
	Name        string
	Patterns    []string
	Category    Category
	Description string
	ActionName  string
	Run         Action
}

func (r Rule) matches(transcript string) bool {
	for _, p := range r.Patterns {
		if p != "" && strings.Contains(transcript, p) {
			return true
		}
	}
	return false
}

// Registry holds an ordered rule table that can be swapped while
// transcripts are being matched.
type Registry struct {
	rules atomic.Pointer[[]Rule]
}

func NewRegistry(rules []Rule) *Registry {
	r := &Registry{}
	r.Replace(rules)
	return r
}

func (r *Registry) Replace(rules []Rule) {
	table := make([]Rule, len(rules))
	for i, rule := range rules {
		rule.Patterns = normalizePatterns(rule.Patterns)
		table[i] = rule
	}
	r.rules.Store(&table)
}

func (r *Registry) Rules() []Rule {
	table := r.rules.Load()
	if table == nil {
		return nil
	}
	return *table
}

// Patterns lists every distinct pattern in registration order.
func (r *Registry) Patterns() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rule := range r.Rules() {
		for _, p := range rule.Patterns {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Match returns the first rule, in registration order, with a pattern
// contained in the normalized transcript.
func (r *Registry) Match(transcript string) (Rule, bool) {
	normalized := normalize(transcript)
	if normalized == "" {
		return Rule{}, false
	}
	for _, rule := range r.Rules() {
		if rule.matches(normalized) {
			return rule, true
		}
	}
	return Rule{}, false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if n := normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}
