package engine

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Matcher runs the three rule kinds against one event. It is stateless
// apart from the shared pattern-compilation cache and is safe for
// concurrent use.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(logger *zap.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// Match evaluates every enabled rule of every kind and returns the fired
// rules in evaluation order: keywords, then patterns, then conditions.
// A rule that cannot be evaluated (bad pattern, missing field) simply does
// not fire; it never aborts its siblings.
func (m *Matcher) Match(ev *Event, rs *RuleSet) []MatchedRule {
	var fired []MatchedRule

	for _, r := range rs.Keywords {
		if !r.Enabled || r.Keyword == "" {
			continue
		}
		if matchKeyword(ev.Content, r.Keyword, r.CaseSensitive) {
			fired = append(fired, MatchedRule{
				Kind:     KindKeyword,
				RuleID:   r.ID,
				Label:    "keyword: " + r.Keyword,
				Severity: r.Severity,
			})
		}
	}

	for _, r := range rs.Patterns {
		if !r.Enabled {
			continue
		}
		re, err := compilePattern(r.Pattern)
		if err != nil {
			m.logger.Warn("pattern rule does not compile, treating as non-matching",
				zap.String("rule_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		if re.MatchString(ev.Content) {
			label := r.Name
			if label == "" {
				label = "pattern: " + r.Pattern
			}
			fired = append(fired, MatchedRule{
				Kind:     KindPattern,
				RuleID:   r.ID,
				Label:    label,
				Severity: r.Severity,
			})
		}
	}

	for _, r := range rs.Conditions {
		if !r.Enabled {
			continue
		}
		if m.matchCondition(ev, r) {
			fired = append(fired, MatchedRule{
				Kind:     KindCondition,
				RuleID:   r.ID,
				Label:    r.Field + " " + string(r.Operator) + " " + r.Value,
				Severity: r.Severity,
			})
		}
	}

	return fired
}

func matchKeyword(content, keyword string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.Contains(content, keyword)
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(keyword))
}

// addressFields are the condition fields that semantically hold an email
// address and get display-name extraction applied.
var addressFields = map[string]bool{
	"from":   true,
	"to":     true,
	"sender": true,
}

func (m *Matcher) matchCondition(ev *Event, r ConditionRule) bool {
	val, ok := fieldValue(ev, r.Field)
	if !ok {
		return false
	}
	if addressFields[strings.ToLower(r.Field)] {
		val = ExtractAddress(val)
	}

	switch r.Operator {
	case OpEquals:
		return strings.EqualFold(val, r.Value)
	case OpContains, OpIncludes:
		return strings.Contains(strings.ToLower(val), strings.ToLower(r.Value))
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(val), strings.ToLower(r.Value))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(val), strings.ToLower(r.Value))
	case OpGreaterThan, OpLessThan:
		a, errA := strconv.ParseFloat(strings.TrimSpace(val), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
		if errA != nil || errB != nil {
			return false
		}
		if r.Operator == OpGreaterThan {
			return a > b
		}
		return a < b
	case OpMatches:
		re, err := compilePattern(r.Value)
		if err != nil {
			m.logger.Warn("condition regex does not compile, treating as non-matching",
				zap.String("rule_id", r.ID),
				zap.Error(err),
			)
			return false
		}
		return re.MatchString(val)
	default:
		return false
	}
}

// fieldValue resolves a condition field from the event: the three built-in
// fields first, then the metadata map.
func fieldValue(ev *Event, field string) (string, bool) {
	switch strings.ToLower(field) {
	case "content":
		return ev.Content, true
	case "source":
		return ev.Source, true
	case "type":
		return ev.Type, true
	default:
		return ev.MetaText(field)
	}
}

// ExtractAddress pulls the bracketed address out of a `"Display Name"
// <addr>` form. Values without a bracket pair are returned unchanged.
func ExtractAddress(s string) string {
	open := strings.LastIndex(s, "<")
	close := strings.LastIndex(s, ">")
	if open >= 0 && close > open {
		return strings.TrimSpace(s[open+1 : close])
	}
	return strings.TrimSpace(s)
}
