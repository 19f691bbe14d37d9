// Package config defines the full monitor configuration and its pre-save
// validation. Validation returns structured errors and warnings; it never
// panics, and it never touches a live evaluation.
package config

import (
	"fmt"
	"net/url"

	"github.com/vigil-hq/vigil/internal/engine"
	"github.com/vigil-hq/vigil/internal/reply"
	"github.com/vigil-hq/vigil/internal/sanitize"
)

const (
	// MinPollIntervalSeconds and MaxPollIntervalSeconds bound the polling
	// interval: [10 seconds, 24 hours].
	MinPollIntervalSeconds = 10
	MaxPollIntervalSeconds = 86_400
)

// PollingConfig describes a polled event source.
type PollingConfig struct {
	Source          string `json:"source"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// WebhookConfig describes inbound webhook ingestion and the optional
// outward alert webhook target.
type WebhookConfig struct {
	Secret   string `json:"secret,omitempty"`
	AlertURL string `json:"alert_url,omitempty"`
}

// MonitorConfig is everything a monitor persists between invocations:
// rules, templates, auto-reply, and ingestion settings.
type MonitorConfig struct {
	Name      string                    `json:"name"`
	Rules     engine.RuleSet            `json:"rules"`
	Templates []engine.ResponseTemplate `json:"templates,omitempty"`
	AutoReply reply.Config              `json:"auto_reply,omitempty"`
	Polling   *PollingConfig            `json:"polling,omitempty"`
	Webhook   *WebhookConfig            `json:"webhook,omitempty"`
}

// Issue is one validation finding tied to a config field.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result separates hard errors (block save) from soft warnings (allowed
// but surfaced to the user).
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Validate runs the full pre-save check over a monitor configuration,
// independent of any single event.
func Validate(cfg *MonitorConfig) Result {
	var res Result

	if cfg.Name == "" {
		res.fail("name", "name must not be empty")
	}

	for i, r := range cfg.Rules.Keywords {
		if r.Enabled && r.Keyword == "" {
			res.fail(fmt.Sprintf("rules.keywords[%d]", i), "enabled keyword rule has an empty keyword")
		}
	}
	for i, r := range cfg.Rules.Patterns {
		if err := engine.CheckPattern(r.Pattern); err != nil {
			res.fail(fmt.Sprintf("rules.patterns[%d]", i), err.Error())
		}
	}
	for i, r := range cfg.Rules.Conditions {
		if r.Field == "" {
			res.fail(fmt.Sprintf("rules.conditions[%d]", i), "condition rule has an empty field")
		}
		if r.Operator == engine.OpMatches {
			if err := engine.CheckPattern(r.Value); err != nil {
				res.fail(fmt.Sprintf("rules.conditions[%d]", i), err.Error())
			}
		}
	}

	seen := map[engine.Severity]bool{}
	for i, t := range cfg.Templates {
		if seen[t.Severity] {
			res.fail(fmt.Sprintf("templates[%d]", i), "duplicate template for severity "+t.Severity.String())
		}
		seen[t.Severity] = true
	}
	for _, sev := range []engine.Severity{engine.SeverityInfo, engine.SeverityWarning, engine.SeverityCritical} {
		if !seen[sev] {
			res.warn("templates", "no template for severity "+sev.String()+"; matches at this severity will produce no alert")
		}
	}

	if cfg.AutoReply.Enabled && cfg.AutoReply.Conditions.SenderPattern != "" {
		if err := engine.CheckPattern(cfg.AutoReply.Conditions.SenderPattern); err != nil {
			res.fail("auto_reply.conditions.sender_pattern", err.Error())
		}
	}

	if p := cfg.Polling; p != nil {
		if p.Source == "" {
			res.fail("polling.source", "polling requires a named source")
		}
		if p.IntervalSeconds < MinPollIntervalSeconds || p.IntervalSeconds > MaxPollIntervalSeconds {
			res.fail("polling.interval_seconds", fmt.Sprintf("interval must be between %d and %d seconds", MinPollIntervalSeconds, MaxPollIntervalSeconds))
		}
	}

	if w := cfg.Webhook; w != nil {
		if w.Secret == "" {
			// Explicitly allowed but flagged insecure.
			res.warn("webhook.secret", "webhook has no secret; inbound requests cannot be verified")
		}
		if w.AlertURL != "" {
			if _, err := url.Parse(w.AlertURL); err != nil {
				res.fail("webhook.alert_url", fmt.Sprintf("invalid URL: %v", err))
			} else if ur := sanitize.WebhookURL(w.AlertURL); !ur.Valid {
				res.fail("webhook.alert_url", ur.Err)
			}
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func (r *Result) fail(field, msg string) {
	r.Errors = append(r.Errors, Issue{Field: field, Message: msg})
}

func (r *Result) warn(field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Message: msg})
}
