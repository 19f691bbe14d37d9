// Package reply decides whether a rendered alert should trigger an
// automated reply, applies sliding-window rate limiting, and builds the
// reply body. Actual delivery belongs to an external collaborator behind
// the Deliverer interface.
package reply

import (
	"context"
	"strings"
	"time"

	"github.com/vigil-hq/vigil/internal/alert"
	"github.com/vigil-hq/vigil/internal/engine"
	"go.uber.org/zap"
)

// Template holds the reply rendering configuration.
type Template struct {
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	Signature       string `json:"signature,omitempty"`
	IncludeOriginal bool   `json:"include_original,omitempty"`
}

// Conditions gate which alerts qualify for an automated reply.
type Conditions struct {
	Severities      []engine.Severity `json:"severities"`
	ExcludedSenders []string          `json:"excluded_senders,omitempty"`
	SenderPattern   string            `json:"sender_pattern,omitempty"`
	// BusinessHoursOnly is accepted in configuration but not enforced;
	// an unimplemented hook carried for forward compatibility.
	BusinessHoursOnly bool `json:"business_hours_only,omitempty"`
}

// RateLimit bounds reply frequency per recipient over a sliding window.
type RateLimit struct {
	MaxPerSender  int `json:"max_per_sender"`
	WindowMinutes int `json:"window_minutes"`
}

// Config is the full auto-reply configuration of one monitor.
type Config struct {
	Enabled    bool       `json:"enabled"`
	Template   Template   `json:"template"`
	Conditions Conditions `json:"conditions"`
	RateLimit  RateLimit  `json:"rate_limit"`
}

// Record is the long-lived recipient→timestamps store backing the sliding
// window. The gatekeeper treats it as externally-owned state: it is passed
// in, a new version is passed out, and the caller persists it. Concurrent
// evaluations for the same recipient must be serialized by the caller's
// storage layer (the monitor store offers compare-and-swap for this).
type Record struct {
	Sent map[string][]time.Time `json:"sent,omitempty"`
}

// Decision is a yes/no with the reason a reply was allowed or suppressed.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Gatekeeper applies reply conditions and rate limiting. The clock is a
// field so tests can pin time.
type Gatekeeper struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewGatekeeper creates a Gatekeeper using the wall clock.
func NewGatekeeper(logger *zap.Logger) *Gatekeeper {
	return &Gatekeeper{logger: logger, now: time.Now}
}

// ShouldSend checks the severity allow-list, sender exclusions, and the
// optional sender pattern. It does not consult the rate limit.
func (g *Gatekeeper) ShouldSend(recipient string, sev engine.Severity, c Conditions) Decision {
	allowed := false
	for _, s := range c.Severities {
		if s == sev {
			allowed = true
			break
		}
	}
	if !allowed {
		return Decision{Reason: "severity " + sev.String() + " not in allow-list"}
	}

	lower := strings.ToLower(recipient)
	for _, excl := range c.ExcludedSenders {
		if excl != "" && strings.Contains(lower, strings.ToLower(excl)) {
			return Decision{Reason: "sender matches exclusion: " + excl}
		}
	}

	if c.SenderPattern != "" {
		ok, err := engine.MatchSafe(c.SenderPattern, recipient)
		if err != nil {
			g.logger.Warn("sender pattern does not compile, suppressing reply",
				zap.Error(err),
			)
			return Decision{Reason: "sender pattern invalid"}
		}
		if !ok {
			return Decision{Reason: "sender does not match pattern"}
		}
	}

	return Decision{Allowed: true}
}

// CheckRateLimit reports whether the recipient is under the sliding-window
// limit. Only timestamps within the trailing window count.
func (g *Gatekeeper) CheckRateLimit(recipient string, rec *Record, rl RateLimit) Decision {
	if rl.MaxPerSender <= 0 {
		return Decision{Allowed: true}
	}
	recent := g.withinWindow(recipient, rec, rl)
	if len(recent) >= rl.MaxPerSender {
		return Decision{Reason: "rate limit reached for recipient"}
	}
	return Decision{Allowed: true}
}

// RecordSent returns a new Record with the current timestamp appended to
// the recipient's pruned timestamp list. The input record is not mutated;
// the caller persists the returned one before the next invocation.
func (g *Gatekeeper) RecordSent(recipient string, rec *Record, rl RateLimit) *Record {
	updated := &Record{Sent: make(map[string][]time.Time)}
	if rec != nil {
		for k, v := range rec.Sent {
			updated.Sent[k] = v
		}
	}
	recent := g.withinWindow(recipient, rec, rl)
	updated.Sent[recipient] = append(recent, g.now())
	return updated
}

func (g *Gatekeeper) withinWindow(recipient string, rec *Record, rl RateLimit) []time.Time {
	if rec == nil || rec.Sent == nil {
		return nil
	}
	cutoff := g.now().Add(-time.Duration(rl.WindowMinutes) * time.Minute)
	var recent []time.Time
	for _, ts := range rec.Sent[recipient] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	return recent
}

// BuildReply renders the reply subject and body using the shared
// placeholder-interpolation contract.
func BuildReply(ev *engine.Event, res engine.MatchResult, tmpl Template) (subject, body string) {
	ctx := alert.PlaceholderContext(ev, res)
	subject = alert.Interpolate(tmpl.Subject, ctx)

	var b strings.Builder
	b.WriteString(alert.Interpolate(tmpl.Body, ctx))
	if tmpl.Signature != "" {
		b.WriteString("\n\n")
		b.WriteString(alert.Interpolate(tmpl.Signature, ctx))
	}
	if tmpl.IncludeOriginal {
		b.WriteString("\n\n--- Original message ---\n")
		b.WriteString(ev.Content)
	}
	return subject, b.String()
}

// Deliverer is the external send collaborator. The gatekeeper hands it a
// fully rendered recipient/subject/body triple and nothing else.
type Deliverer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Outcome reports what the gatekeeper did with one alert.
type Outcome struct {
	Attempted bool   `json:"attempted"`
	Sent      bool   `json:"sent"`
	Reason    string `json:"reason,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// Process runs the full gate: conditions, rate limit, render, deliver,
// record. The returned Record is nil when nothing was sent; a failed
// delivery does not consume quota, so the caller has nothing to persist.
func (g *Gatekeeper) Process(ctx context.Context, ev *engine.Event, res engine.MatchResult, cfg Config, rec *Record, d Deliverer) (Outcome, *Record) {
	if !cfg.Enabled || res.Severity == nil {
		return Outcome{Reason: "auto-reply disabled"}, nil
	}

	recipient := replyRecipient(ev)
	if recipient == "" {
		return Outcome{Reason: "event has no sender address"}, nil
	}

	if dec := g.ShouldSend(recipient, *res.Severity, cfg.Conditions); !dec.Allowed {
		return Outcome{Recipient: recipient, Reason: dec.Reason}, nil
	}
	if dec := g.CheckRateLimit(recipient, rec, cfg.RateLimit); !dec.Allowed {
		return Outcome{Recipient: recipient, Reason: dec.Reason}, nil
	}

	subject, body := BuildReply(ev, res, cfg.Template)

	if err := d.Send(ctx, recipient, subject, body); err != nil {
		g.logger.Warn("reply delivery failed",
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		return Outcome{
			Attempted: true,
			Recipient: recipient,
			Subject:   subject,
			Reason:    "delivery failed: " + err.Error(),
		}, nil
	}

	return Outcome{
		Attempted: true,
		Sent:      true,
		Recipient: recipient,
		Subject:   subject,
	}, g.RecordSent(recipient, rec, cfg.RateLimit)
}

// replyRecipient resolves the reply-to address from event metadata.
func replyRecipient(ev *engine.Event) string {
	for _, key := range []string{"reply_to", "sender", "from"} {
		if v, ok := ev.MetaText(key); ok && v != "" {
			return engine.ExtractAddress(v)
		}
	}
	return ""
}
