// Package rules parses keyword rule sets and matches trend items against them.
package rules

import (
	"regexp"
	"strings"
)

// Mode decides how a rule's normal terms combine
type Mode string

const (
	ModeAny Mode = "ANY"
	ModeAll Mode = "ALL"
)

// Term is a single keyword, phrase or pattern
type Term struct {
	Text    string         // Normalized form; the raw pattern for regex terms
	Display string         // Name shown in reports
	Regex   *regexp.Regexp // Set for /pattern/ terms
	cjk     bool
}

// Rule is one keyword group
type Rule struct {
	ID       string
	Name     string
	Terms    []Term // Normal terms, combined by Mode
	Required []Term // Must all be present regardless of Mode
	Mode     Mode
	Weight   float64
	MaxItems int // 0 means unlimited
}

// RuleSet is the parsed, immutable form of a caller's rules
type RuleSet struct {
	Rules   []Rule
	Filters []Term // An item matching any filter is excluded
}

// Keywords returns the display names of all rules in order
func (rs *RuleSet) Keywords() []string {
	out := make([]string, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		out = append(out, r.Name)
	}
	return out
}

// Rule returns the rule with the given id
func (rs *RuleSet) Rule(id string) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

func (t Term) label() string {
	if t.Display != "" {
		return t.Display
	}
	return t.Text
}

// matches reports whether the term occurs in a title.
// norm is the normalized title padded with single spaces on both ends.
func (t Term) matches(raw, norm string) bool {
	switch {
	case t.Regex != nil:
		return t.Regex.MatchString(raw)
	case t.cjk:
		return strings.Contains(norm, t.Text)
	default:
		return strings.Contains(norm, " "+t.Text+" ")
	}
}
