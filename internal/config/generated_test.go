package config

import (
	"testing"

	"github.com/vigil-hq/vigil/internal/engine"
)

func TestValidateGenerated_AcceptsWellFormedDocument(t *testing.T) {
	current := validConfig()
	doc := []byte(`{
		"rules": {
			"keywords": [{"id": "kw-gen-1", "keyword": "chargeback", "severity": "critical", "enabled": true}],
			"logic": "any"
		},
		"templates": [
			{"severity": "info", "title": "t", "message": "m", "action": "log"},
			{"severity": "warning", "title": "t", "message": "m", "action": "alert"},
			{"severity": "critical", "title": "Critical: {subject}", "message": "{matched_rule}", "action": "alert"}
		]
	}`)

	merged, res := ValidateGenerated(doc, current)
	if merged == nil {
		t.Fatalf("expected merged config, got errors %v", res.Errors)
	}
	if len(merged.Rules.Keywords) != 1 || merged.Rules.Keywords[0].ID != "kw-gen-1" {
		t.Errorf("generated rules did not replace current, got %+v", merged.Rules.Keywords)
	}
	// Name survives from current config
	if merged.Name != current.Name {
		t.Errorf("merge must preserve current name, got %q", merged.Name)
	}
}

func TestValidateGenerated_RejectsUnknownSeverity(t *testing.T) {
	doc := []byte(`{"rules": {"keywords": [{"id": "k", "keyword": "x", "severity": "fatal", "enabled": true}]}}`)
	merged, res := ValidateGenerated(doc, validConfig())
	if merged != nil {
		t.Fatal("expected rejection")
	}
	if len(res.Errors) == 0 {
		t.Error("expected a schema error")
	}
}

func TestValidateGenerated_RejectsMissingRules(t *testing.T) {
	if merged, _ := ValidateGenerated([]byte(`{"templates": []}`), validConfig()); merged != nil {
		t.Error("document without rules must be rejected")
	}
}

func TestValidateGenerated_RejectsInvalidJSON(t *testing.T) {
	merged, res := ValidateGenerated([]byte(`{"rules": `), validConfig())
	if merged != nil {
		t.Fatal("expected rejection")
	}
	if len(res.Errors) == 0 || res.Errors[0].Field != "document" {
		t.Errorf("expected a document error, got %v", res.Errors)
	}
}

func TestValidateGenerated_StructuralValidatorStillRuns(t *testing.T) {
	// Schema-valid but structurally broken: the pattern does not compile.
	doc := []byte(`{"rules": {"patterns": [{"id": "p", "pattern": "[broken", "severity": "info", "enabled": true}]}}`)
	merged, res := ValidateGenerated(doc, validConfig())
	if merged != nil {
		t.Fatal("uncompilable pattern must be rejected after schema validation")
	}
	if !hasError(res, "rules.patterns[0]") {
		t.Errorf("expected structural pattern error, got %v", res.Errors)
	}
}

func TestValidateGenerated_TemplatesOptional(t *testing.T) {
	current := validConfig()
	doc := []byte(`{"rules": {"keywords": [{"id": "k", "keyword": "x", "severity": "info", "enabled": true}]}}`)

	merged, res := ValidateGenerated(doc, current)
	if merged == nil {
		t.Fatalf("expected acceptance, got %v", res.Errors)
	}
	if len(merged.Templates) != len(current.Templates) {
		t.Error("absent templates must leave current templates in place")
	}
	if merged.Templates[0].Severity != engine.SeverityInfo {
		t.Errorf("unexpected templates: %+v", merged.Templates)
	}
}
