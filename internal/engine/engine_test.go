package engine

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func TestEvaluate_AnyLogicPicksWorstSeverity(t *testing.T) {
	eng := New(zap.NewNop())
	rs := &RuleSet{
		Keywords: []KeywordRule{
			{ID: "kw-refund", Keyword: "refund", Severity: SeverityInfo, Enabled: true},
			{ID: "kw-legal", Keyword: "lawsuit", Severity: SeverityCritical, Enabled: true},
		},
		Logic: LogicAny,
	}

	res := eng.Evaluate(testEvent("requesting a refund or we file a lawsuit"), rs)
	if !res.Matched {
		t.Fatal("expected match")
	}
	if *res.Severity != SeverityCritical {
		t.Errorf("expected critical, got %v", *res.Severity)
	}
	if len(res.Rules) != 2 {
		t.Errorf("expected both rules fired, got %d", len(res.Rules))
	}
}

func TestEvaluate_AllLogicRequiresEveryRule(t *testing.T) {
	eng := New(zap.NewNop())
	rs := &RuleSet{
		Keywords: []KeywordRule{
			{ID: "kw-1", Keyword: "invoice", Severity: SeverityInfo, Enabled: true},
		},
		Conditions: []ConditionRule{
			{ID: "cond-1", Field: "source", Operator: OpEquals, Value: "billing", Severity: SeverityWarning, Enabled: true},
		},
		Logic: LogicAll,
	}

	ev := testEvent("your invoice is attached")
	ev.Source = "support"
	res := eng.Evaluate(ev, rs)
	if res.Matched {
		t.Error("expected no match: condition rule did not fire")
	}
	if len(res.Rules) != 1 {
		t.Errorf("fired list should still report the keyword hit, got %d", len(res.Rules))
	}

	ev.Source = "billing"
	res = eng.Evaluate(ev, rs)
	if !res.Matched {
		t.Error("expected match with every rule firing")
	}
	if *res.Severity != SeverityWarning {
		t.Errorf("expected warning, got %v", *res.Severity)
	}
}

func TestEvaluate_DisabledRulesExcludedFromAllLogic(t *testing.T) {
	eng := New(zap.NewNop())
	rs := &RuleSet{
		Keywords: []KeywordRule{
			{ID: "kw-1", Keyword: "urgent", Severity: SeverityInfo, Enabled: true},
			{ID: "kw-2", Keyword: "never-appears", Severity: SeverityInfo, Enabled: false},
		},
		Logic: LogicAll,
	}

	res := eng.Evaluate(testEvent("urgent request"), rs)
	if !res.Matched {
		t.Error("disabled rule must not count toward the all-logic denominator")
	}
}

func TestEvaluate_NoEnabledRules(t *testing.T) {
	eng := New(zap.NewNop())

	for _, logic := range []LogicMode{LogicAny, LogicAll} {
		res := eng.Evaluate(testEvent("anything"), &RuleSet{Logic: logic})
		if res.Matched {
			t.Errorf("empty rule set must not match under %s logic", logic)
		}
	}
}

func TestTestRules_NoSideEffects(t *testing.T) {
	eng := New(zap.NewNop())
	rs := &RuleSet{
		Keywords: []KeywordRule{
			{ID: "kw-1", Keyword: "chargeback", Severity: SeverityCritical, Enabled: true},
		},
	}

	res := eng.TestRules("customer threatens a chargeback", rs)
	if !res.Matched {
		t.Error("expected match")
	}
	if res.Rules[0].RuleID != "kw-1" {
		t.Errorf("unexpected rule id %s", res.Rules[0].RuleID)
	}
}

func TestRuleSetJSONRoundTrip(t *testing.T) {
	raw := `{
		"keywords": [{"id": "kw-1", "keyword": "refund", "severity": "warning", "enabled": true}],
		"patterns": [{"id": "pat-1", "name": "card", "pattern": "\\d{16}", "severity": "critical", "enabled": true}],
		"conditions": [{"id": "cond-1", "field": "amount", "operator": "greater-than", "value": "100", "severity": "info", "enabled": true}],
		"logic": "all"
	}`

	var rs RuleSet
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rs.Keywords[0].Severity != SeverityWarning {
		t.Errorf("severity text did not decode, got %v", rs.Keywords[0].Severity)
	}
	if rs.Logic.Normalize() != LogicAll {
		t.Errorf("logic did not decode, got %v", rs.Logic)
	}
	if rs.EnabledCount() != 3 {
		t.Errorf("expected 3 enabled rules, got %d", rs.EnabledCount())
	}
}

func TestSeverityUnmarshalRejectsUnknown(t *testing.T) {
	var s Severity
	if err := s.UnmarshalText([]byte("fatal")); err == nil {
		t.Error("expected error for unknown severity name")
	}
}

func TestMetaValueJSON(t *testing.T) {
	raw := `{"subject": "Invoice", "amount": 42, "vip": true}`
	var meta map[string]MetaValue
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if meta["subject"].Text() != "Invoice" {
		t.Errorf("string value: got %q", meta["subject"].Text())
	}
	if meta["amount"].Text() != "42" {
		t.Errorf("integral number should print without decimal, got %q", meta["amount"].Text())
	}
	if meta["vip"].Text() != "true" {
		t.Errorf("bool value: got %q", meta["vip"].Text())
	}

	var bad MetaValue
	if err := json.Unmarshal([]byte(`{"nested": 1}`), &bad); err == nil {
		t.Error("expected error for non-scalar metadata value")
	}
}
