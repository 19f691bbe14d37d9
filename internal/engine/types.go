package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity is the ordered alert classification: info < warning < critical.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unspecified"
	}
}

// ParseSeverity maps a severity name to its enum value.
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "info":
		return SeverityInfo, true
	case "warning":
		return SeverityWarning, true
	case "critical":
		return SeverityCritical, true
	default:
		return 0, false
	}
}

// MarshalText implements encoding.TextMarshaler so severities serialize
// as their names in rule-set JSON.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	sev, ok := ParseSeverity(string(b))
	if !ok {
		return fmt.Errorf("unknown severity %q", string(b))
	}
	*s = sev
	return nil
}

// RuleKind identifies which of the three rule collections a rule belongs to.
type RuleKind string

const (
	KindKeyword   RuleKind = "keyword"
	KindPattern   RuleKind = "pattern"
	KindCondition RuleKind = "condition"
)

// MetaKind tags the value type held by a metadata entry.
type MetaKind int

const (
	MetaString MetaKind = iota + 1
	MetaNumber
	MetaBool
)

// MetaValue is a tagged scalar carried in an event's metadata map.
// Only strings, numbers, and booleans are representable.
type MetaValue struct {
	Kind MetaKind
	Str  string
	Num  float64
	Bool bool
}

// StringValue returns a MetaValue holding a string.
func StringValue(s string) MetaValue { return MetaValue{Kind: MetaString, Str: s} }

// NumberValue returns a MetaValue holding a number.
func NumberValue(n float64) MetaValue { return MetaValue{Kind: MetaNumber, Num: n} }

// BoolValue returns a MetaValue holding a boolean.
func BoolValue(b bool) MetaValue { return MetaValue{Kind: MetaBool, Bool: b} }

// Text returns the value in the textual form rule conditions compare against.
func (v MetaValue) Text() string {
	switch v.Kind {
	case MetaString:
		return v.Str
	case MetaNumber:
		// Integral values print without a decimal point so "42" compares
		// equal to a metadata value of 42.
		if v.Num == float64(int64(v.Num)) {
			return fmt.Sprintf("%d", int64(v.Num))
		}
		return fmt.Sprintf("%g", v.Num)
	case MetaBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// MarshalJSON serializes the tagged value as its plain JSON scalar.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetaString:
		return json.Marshal(v.Str)
	case MetaNumber:
		return json.Marshal(v.Num)
	case MetaBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON string, number, or boolean. Anything else
// (objects, arrays, null) is rejected; metadata values are scalars only.
func (v *MetaValue) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case string:
		*v = StringValue(val)
	case float64:
		*v = NumberValue(val)
	case bool:
		*v = BoolValue(val)
	default:
		return fmt.Errorf("metadata value must be a string, number, or boolean")
	}
	return nil
}

// Event is one externally-sourced record to evaluate. Events are immutable:
// the engine never writes to an Event after construction.
type Event struct {
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Source    string               `json:"source"`
	Type      string               `json:"type"`
	Content   string               `json:"content"`
	Metadata  map[string]MetaValue `json:"metadata,omitempty"`
}

// MetaText looks up a metadata key and returns its textual form.
func (e *Event) MetaText(key string) (string, bool) {
	v, ok := e.Metadata[key]
	if !ok {
		return "", false
	}
	return v.Text(), true
}

// MatchedRule records one individual rule that fired during evaluation.
type MatchedRule struct {
	Kind     RuleKind `json:"kind"`
	RuleID   string   `json:"rule_id"`
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

// MatchResult is the outcome of evaluating one event against one rule set.
// Rules lists every rule that fired, in evaluation order, even when the
// overall decision under "all" logic is not-matched. Callers use it for
// diagnostics.
type MatchResult struct {
	Matched  bool          `json:"matched"`
	Severity *Severity     `json:"severity,omitempty"`
	Rules    []MatchedRule `json:"rules"`
}

// RuleIDs returns the ids of all fired rules, in order.
func (r MatchResult) RuleIDs() []string {
	ids := make([]string, len(r.Rules))
	for i, m := range r.Rules {
		ids[i] = m.RuleID
	}
	return ids
}

// RuleLabels returns the labels of all fired rules, in order.
func (r MatchResult) RuleLabels() []string {
	labels := make([]string, len(r.Rules))
	for i, m := range r.Rules {
		labels[i] = m.Label
	}
	return labels
}
