package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/trendbrief/internal/model"
)

const (
	sectionGlobalFilter = "[GLOBAL_FILTER]"
	sectionWordGroups   = "[WORD_GROUPS]"
)

// Parse builds a RuleSet from caller rule strings.
//
// The strings are joined with blank lines and split into blocks; each block is one group:
//
//	[Alias]          display name for the group
//	word             normal term, any one matches
//	+word            required term
//	!word            filter term, excludes the item entirely
//	@N               group claims at most N items
//	^W               group weight, default 1
//	word => Display  per-term display name
//	/pattern/        case-insensitive regular expression
//	# comment
//
// A block starting with [GLOBAL_FILTER] lists filter terms; [WORD_GROUPS] switches back.
// Section headers match in any case and are never taken as an alias.
func Parse(ruleStrings []string) (*RuleSet, error) {
	rs := &RuleSet{}
	inFilter := false

	for _, block := range splitBlocks(strings.Join(ruleStrings, "\n\n")) {
		switch strings.ToUpper(block[0]) {
		case sectionGlobalFilter:
			inFilter = true
			block = block[1:]
		case sectionWordGroups:
			inFilter = false
			block = block[1:]
		}
		if len(block) == 0 {
			continue
		}

		if inFilter {
			for _, line := range block {
				if strings.ContainsAny(line[:1], "!+@^") {
					continue
				}
				term, err := parseTerm(line)
				if err != nil {
					return nil, err
				}
				rs.Filters = append(rs.Filters, term)
			}
			continue
		}

		rule, filters, err := parseGroup(block)
		if err != nil {
			return nil, err
		}
		rs.Filters = append(rs.Filters, filters...)
		if len(rule.Terms) == 0 && len(rule.Required) == 0 {
			continue
		}
		rule.ID = fmt.Sprintf("g%d", len(rs.Rules)+1)
		rs.Rules = append(rs.Rules, rule)
	}

	if len(rs.Rules) == 0 {
		return nil, model.NewConfigurationError("rules", "rule set contains no keyword groups")
	}
	return rs, nil
}

// MustParse is Parse for fixed rule strings; it panics on error
func MustParse(ruleStrings ...string) *RuleSet {
	rs, err := Parse(ruleStrings)
	if err != nil {
		panic(err)
	}
	return rs
}

// splitBlocks returns the non-comment lines of each blank-line-separated block
func splitBlocks(text string) [][]string {
	var blocks [][]string
	var current []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, current)
			current = nil
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

func parseGroup(lines []string) (Rule, []Term, error) {
	rule := Rule{Weight: 1}
	var alias string
	var filters []Term

	if first := lines[0]; len(first) > 2 && strings.HasPrefix(first, "[") && strings.HasSuffix(first, "]") {
		alias = strings.TrimSpace(first[1 : len(first)-1])
		lines = lines[1:]
	}

	for _, line := range lines {
		switch line[0] {
		case '@':
			n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
			if err != nil || n <= 0 {
				return Rule{}, nil, model.NewConfigurationError("rules", "invalid max items %q", line)
			}
			rule.MaxItems = n
		case '^':
			w, err := strconv.ParseFloat(strings.TrimSpace(line[1:]), 64)
			if err != nil || w <= 0 {
				return Rule{}, nil, model.NewConfigurationError("rules", "invalid weight %q", line)
			}
			rule.Weight = w
		case '!':
			term, err := parseTerm(line[1:])
			if err != nil {
				return Rule{}, nil, err
			}
			filters = append(filters, term)
		case '+':
			term, err := parseTerm(line[1:])
			if err != nil {
				return Rule{}, nil, err
			}
			rule.Required = append(rule.Required, term)
		default:
			term, err := parseTerm(line)
			if err != nil {
				return Rule{}, nil, err
			}
			rule.Terms = append(rule.Terms, term)
		}
	}

	rule.Mode = ModeAny
	if len(rule.Terms) == 0 {
		rule.Mode = ModeAll
	}
	rule.Name = alias
	if rule.Name == "" {
		labels := make([]string, 0, len(rule.Terms)+len(rule.Required))
		for _, t := range rule.Terms {
			labels = append(labels, t.label())
		}
		for _, t := range rule.Required {
			labels = append(labels, t.label())
		}
		rule.Name = strings.Join(labels, " / ")
	}
	return rule, filters, nil
}

// parseTerm handles "word", "word => Display" and "/pattern/flags"
func parseTerm(s string) (Term, error) {
	s = strings.TrimSpace(s)
	var display string
	if i := strings.Index(s, "=>"); i >= 0 {
		display = strings.TrimSpace(s[i+2:])
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return Term{}, model.NewConfigurationError("rules", "empty term")
	}

	if len(s) > 2 && s[0] == '/' {
		if end := strings.LastIndex(s, "/"); end > 0 {
			pattern := s[1:end]
			if pattern == "" {
				return Term{}, model.NewConfigurationError("rules", "empty pattern %q", s)
			}
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return Term{}, model.NewConfigurationError("rules", "invalid pattern %q: %v", s, err)
			}
			if display == "" {
				display = pattern
			}
			return Term{Text: pattern, Display: display, Regex: re}, nil
		}
	}

	norm := Normalize(s)
	if norm == "" {
		return Term{}, model.NewConfigurationError("rules", "term %q has no letters or digits", s)
	}
	if display == "" {
		display = s
	}
	return Term{Text: norm, Display: display, cjk: hasWideScript(norm)}, nil
}
