package engine

// LogicMode controls how individual rule matches combine into one decision.
type LogicMode string

const (
	LogicAny LogicMode = "any" // any enabled rule firing is a match (default)
	LogicAll LogicMode = "all" // every enabled rule must fire
)

// Normalize maps an empty or unknown mode to the default.
func (m LogicMode) Normalize() LogicMode {
	if m == LogicAll {
		return LogicAll
	}
	return LogicAny
}

// Operator is a condition rule's comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpIncludes    Operator = "includes" // alias for contains
	OpStartsWith  Operator = "starts-with"
	OpEndsWith    Operator = "ends-with"
	OpGreaterThan Operator = "greater-than"
	OpLessThan    Operator = "less-than"
	OpMatches     Operator = "matches"
)

// KeywordRule matches when its keyword appears as a substring of the
// event content.
type KeywordRule struct {
	ID            string   `json:"id"`
	Keyword       string   `json:"keyword"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
	Severity      Severity `json:"severity"`
	Enabled       bool     `json:"enabled"`
}

// PatternRule matches event content against a regular expression. Patterns
// are compiled with Go's RE2-based regexp package, which guarantees
// linear-time matching, and are length-capped before compilation. A rule
// whose pattern does not compile is permanently non-matching, never an
// evaluation error.
type PatternRule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Pattern     string   `json:"pattern"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
}

// ConditionRule compares a named event field against a value. Field is one
// of content/source/type or an arbitrary metadata key.
type ConditionRule struct {
	ID       string   `json:"id"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
	Severity Severity `json:"severity"`
	Enabled  bool     `json:"enabled"`
}

// RuleSet is the full versionable rule configuration of one monitor.
type RuleSet struct {
	Keywords   []KeywordRule   `json:"keywords,omitempty"`
	Patterns   []PatternRule   `json:"patterns,omitempty"`
	Conditions []ConditionRule `json:"conditions,omitempty"`
	Logic      LogicMode       `json:"logic,omitempty"`
}

// EnabledCount returns the number of enabled rules across all three kinds.
// A keyword rule with an empty keyword is not counted: it can never fire,
// and counting it would make "all" logic unsatisfiable.
func (rs *RuleSet) EnabledCount() int {
	n := 0
	for _, r := range rs.Keywords {
		if r.Enabled && r.Keyword != "" {
			n++
		}
	}
	for _, r := range rs.Patterns {
		if r.Enabled {
			n++
		}
	}
	for _, r := range rs.Conditions {
		if r.Enabled {
			n++
		}
	}
	return n
}

// TemplateAction tells the caller what to do with a rendered alert.
type TemplateAction string

const (
	ActionLog         TemplateAction = "log"
	ActionAlert       TemplateAction = "alert"
	ActionForwardToAI TemplateAction = "forward-to-ai"
	ActionSendReply   TemplateAction = "send-reply"
	ActionLogToSheets TemplateAction = "log-to-sheets"
)

// ResponseTemplate holds the alert rendering template for one severity.
// At most one template per severity; a severity with no template yields
// no alert even when rules matched.
type ResponseTemplate struct {
	Severity Severity       `json:"severity"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Action   TemplateAction `json:"action"`
}

// TemplateFor returns the template for a severity, or nil if absent.
func TemplateFor(templates []ResponseTemplate, sev Severity) *ResponseTemplate {
	for i := range templates {
		if templates[i].Severity == sev {
			return &templates[i]
		}
	}
	return nil
}
