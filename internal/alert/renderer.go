// Package alert renders match results into displayable alert records via
// template interpolation.
package alert

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vigil-hq/vigil/internal/engine"
)

// PreviewLength is the number of characters of event content included in
// the {content} placeholder.
const PreviewLength = 100

// Alert is one rendered alert record. The engine creates it; the calling
// application owns it afterward (acknowledgement, storage).
type Alert struct {
	ID            string          `json:"id"`
	MonitorID     string          `json:"monitor_id"`
	Severity      engine.Severity `json:"severity"`
	Title         string          `json:"title"`
	Message       string          `json:"message"`
	EventID       string          `json:"event_id"`
	RuleIDs       []string        `json:"rule_ids"`
	Timestamp     time.Time       `json:"timestamp"`
	Acknowledged  bool            `json:"acknowledged"`
	ForwardedToAI bool            `json:"forwarded_to_ai"`
}

// Render looks up the template for the resolved severity and interpolates
// it with fields extracted from the event and match result. A nil return
// is not an error: it means the result did not match, or no template is
// configured for the severity (a configuration gap, surfaced as silence).
func Render(ev *engine.Event, res engine.MatchResult, templates []engine.ResponseTemplate, monitorID string) *Alert {
	if !res.Matched || res.Severity == nil {
		return nil
	}
	tmpl := engine.TemplateFor(templates, *res.Severity)
	if tmpl == nil {
		return nil
	}

	ctx := PlaceholderContext(ev, res)

	return &Alert{
		ID:            uuid.New().String(),
		MonitorID:     monitorID,
		Severity:      *res.Severity,
		Title:         Interpolate(tmpl.Title, ctx),
		Message:       Interpolate(tmpl.Message, ctx),
		EventID:       ev.ID,
		RuleIDs:       res.RuleIDs(),
		Timestamp:     time.Now(),
		ForwardedToAI: tmpl.Action == engine.ActionForwardToAI,
	}
}

// PlaceholderContext builds the {name} substitution map for one event and
// match result. The reply gatekeeper shares this context for reply bodies.
func PlaceholderContext(ev *engine.Event, res engine.MatchResult) map[string]string {
	sender := ev.Source
	if s, ok := ev.MetaText("sender"); ok {
		sender = s
	} else if s, ok := ev.MetaText("from"); ok {
		sender = s
	}

	subject := ev.Type
	if s, ok := ev.MetaText("subject"); ok {
		subject = s
	}

	// Highest-priority matched rule: severity first, evaluation order as
	// the tiebreak.
	topRule := ""
	var topSev engine.Severity
	for _, r := range res.Rules {
		if topRule == "" || r.Severity > topSev {
			topRule = r.Label
			topSev = r.Severity
		}
	}

	severity := ""
	if res.Severity != nil {
		severity = res.Severity.String()
	}

	return map[string]string{
		"sender":        sender,
		"sender_name":   senderName(sender),
		"subject":       subject,
		"content":       Preview(ev.Content, PreviewLength),
		"matched_rule":  topRule,
		"matched_rules": strings.Join(res.RuleLabels(), ", "),
		"severity":      severity,
		"timestamp":     ev.Timestamp.Format(time.RFC3339),
	}
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Interpolate replaces {name} tokens with context values. An unrecognized
// placeholder is left verbatim in the output, with no error, no silent
// deletion. This is a deliberate contract: a typo in a template stays
// visible instead of vanishing.
func Interpolate(tmpl string, ctx map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := ctx[name]; ok {
			return v
		}
		return tok
	})
}

// Preview returns the first n characters of content, with an ellipsis when
// truncated. Never splits a multi-byte character.
func Preview(content string, n int) string {
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n]) + "..."
}

// senderName returns the display-name part of a `"Name" <addr>` value, or
// the bare address when no display name is present.
func senderName(sender string) string {
	if i := strings.LastIndex(sender, "<"); i > 0 {
		name := strings.Trim(strings.TrimSpace(sender[:i]), `"`)
		if name != "" {
			return name
		}
	}
	return engine.ExtractAddress(sender)
}
