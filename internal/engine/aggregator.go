package engine

// Aggregate resolves the fired-rule list into one match decision and one
// worst-case severity.
//
// Rules:
//  1. Under "any" logic, matched iff at least one rule fired.
//  2. Under "all" logic, matched iff every enabled rule fired. An empty
//     enabled-rule set never matches; "all of nothing" must not fire.
//  3. Severity is the maximum among fired rules (info < warning < critical)
//     and is nil when not matched.
//
// The fired list is returned in the result unchanged either way, so callers
// can see which rules fired even when "all" logic failed overall.
func Aggregate(fired []MatchedRule, enabledCount int, logic LogicMode) MatchResult {
	var matched bool
	switch logic.Normalize() {
	case LogicAll:
		matched = enabledCount > 0 && len(fired) == enabledCount
	default:
		matched = len(fired) > 0
	}

	result := MatchResult{
		Matched: matched,
		Rules:   fired,
	}
	if !matched {
		return result
	}

	max := SeverityInfo
	for _, r := range fired {
		if r.Severity > max {
			max = r.Severity
		}
	}
	result.Severity = &max
	return result
}
