package reply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vigil-hq/vigil/internal/engine"
	"go.uber.org/zap"
)

func fixedGatekeeper(now time.Time) *Gatekeeper {
	g := NewGatekeeper(zap.NewNop())
	g.now = func() time.Time { return now }
	return g
}

func replyEvent(sender string) *engine.Event {
	return &engine.Event{
		ID:        "ev-1",
		Timestamp: time.Now(),
		Source:    "mail",
		Type:      "message",
		Content:   "original body",
		Metadata: map[string]engine.MetaValue{
			"sender": engine.StringValue(sender),
		},
	}
}

func matchedCritical() engine.MatchResult {
	sev := engine.SeverityCritical
	return engine.MatchResult{
		Matched:  true,
		Severity: &sev,
		Rules: []engine.MatchedRule{
			{Kind: engine.KindKeyword, RuleID: "kw-1", Label: "keyword: outage", Severity: engine.SeverityCritical},
		},
	}
}

type fakeDeliverer struct {
	err   error
	calls int
	sent  []string
}

func (d *fakeDeliverer) Send(_ context.Context, recipient, subject, body string) error {
	d.calls++
	d.sent = append(d.sent, recipient)
	return d.err
}

func TestShouldSend_SeverityAllowList(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	c := Conditions{Severities: []engine.Severity{engine.SeverityCritical}}

	if dec := g.ShouldSend("a@x.example", engine.SeverityCritical, c); !dec.Allowed {
		t.Errorf("critical should be allowed, got reason %q", dec.Reason)
	}
	if dec := g.ShouldSend("a@x.example", engine.SeverityInfo, c); dec.Allowed {
		t.Error("info should be rejected")
	}
}

func TestShouldSend_ExcludedSenders(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	c := Conditions{
		Severities:      []engine.Severity{engine.SeverityWarning},
		ExcludedSenders: []string{"noreply@", "@internal.example"},
	}

	if dec := g.ShouldSend("NoReply@shop.example", engine.SeverityWarning, c); dec.Allowed {
		t.Error("exclusion match should be case-insensitive")
	}
	if dec := g.ShouldSend("dana@internal.example", engine.SeverityWarning, c); dec.Allowed {
		t.Error("domain exclusion should reject")
	}
	if dec := g.ShouldSend("dana@partner.example", engine.SeverityWarning, c); !dec.Allowed {
		t.Errorf("unrelated sender should pass, got %q", dec.Reason)
	}
}

func TestShouldSend_SenderPattern(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	c := Conditions{
		Severities:    []engine.Severity{engine.SeverityWarning},
		SenderPattern: `@partner\.example$`,
	}

	if dec := g.ShouldSend("dana@partner.example", engine.SeverityWarning, c); !dec.Allowed {
		t.Errorf("pattern match should pass, got %q", dec.Reason)
	}
	if dec := g.ShouldSend("dana@other.example", engine.SeverityWarning, c); dec.Allowed {
		t.Error("non-matching sender should be rejected")
	}
}

func TestShouldSend_BadSenderPatternSuppresses(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	c := Conditions{
		Severities:    []engine.Severity{engine.SeverityWarning},
		SenderPattern: `[broken`,
	}

	if dec := g.ShouldSend("dana@partner.example", engine.SeverityWarning, c); dec.Allowed {
		t.Error("uncompilable pattern must suppress, not allow")
	}
}

func TestCheckRateLimit_SlidingWindow(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	g := fixedGatekeeper(base)
	rl := RateLimit{MaxPerSender: 1, WindowMinutes: 60}
	rec := &Record{Sent: map[string][]time.Time{
		"a@x.example": {base.Add(-30 * time.Minute)},
	}}

	if dec := g.CheckRateLimit("a@x.example", rec, rl); dec.Allowed {
		t.Error("expected rejection inside the window")
	}

	// Advance past the window; the old send no longer counts
	g.now = func() time.Time { return base.Add(31 * time.Minute) }
	if dec := g.CheckRateLimit("a@x.example", rec, rl); !dec.Allowed {
		t.Errorf("expected allowance after window expiry, got %q", dec.Reason)
	}
}

func TestCheckRateLimit_ZeroMaxMeansUnlimited(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	rec := &Record{Sent: map[string][]time.Time{
		"a@x.example": {time.Now(), time.Now(), time.Now()},
	}}

	if dec := g.CheckRateLimit("a@x.example", rec, RateLimit{MaxPerSender: 0, WindowMinutes: 60}); !dec.Allowed {
		t.Error("max of zero disables the limit")
	}
}

func TestRecordSent_DoesNotMutateInput(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	g := fixedGatekeeper(base)
	rl := RateLimit{MaxPerSender: 5, WindowMinutes: 60}
	old := base.Add(-2 * time.Hour)
	rec := &Record{Sent: map[string][]time.Time{
		"a@x.example": {old},
	}}

	updated := g.RecordSent("a@x.example", rec, rl)

	if len(rec.Sent["a@x.example"]) != 1 || !rec.Sent["a@x.example"][0].Equal(old) {
		t.Error("input record was mutated")
	}
	// Expired entry pruned, new timestamp appended
	if len(updated.Sent["a@x.example"]) != 1 || !updated.Sent["a@x.example"][0].Equal(base) {
		t.Errorf("unexpected updated record: %v", updated.Sent["a@x.example"])
	}
}

func TestRecordSent_NilRecord(t *testing.T) {
	base := time.Now()
	g := fixedGatekeeper(base)

	updated := g.RecordSent("a@x.example", nil, RateLimit{MaxPerSender: 1, WindowMinutes: 60})
	if len(updated.Sent["a@x.example"]) != 1 {
		t.Errorf("expected one timestamp, got %v", updated.Sent["a@x.example"])
	}
}

func TestBuildReply_SignatureAndOriginal(t *testing.T) {
	ev := replyEvent(`"Dana" <dana@partner.example>`)
	res := matchedCritical()
	tmpl := Template{
		Subject:         "Re: {subject}",
		Body:            "Hi {sender_name}, we received your message.",
		Signature:       "Vigil Support",
		IncludeOriginal: true,
	}

	subject, body := BuildReply(ev, res, tmpl)
	if subject != "Re: message" {
		t.Errorf("unexpected subject: %s", subject)
	}
	want := "Hi Dana, we received your message.\n\nVigil Support\n\n--- Original message ---\noriginal body"
	if body != want {
		t.Errorf("unexpected body:\n%s", body)
	}
}

func TestProcess_SendsAndRecords(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	d := &fakeDeliverer{}
	cfg := Config{
		Enabled:    true,
		Template:   Template{Subject: "Re: {subject}", Body: "ack"},
		Conditions: Conditions{Severities: []engine.Severity{engine.SeverityCritical}},
		RateLimit:  RateLimit{MaxPerSender: 1, WindowMinutes: 60},
	}

	out, rec := g.Process(context.Background(), replyEvent("dana@partner.example"), matchedCritical(), cfg, nil, d)
	if !out.Sent || !out.Attempted {
		t.Fatalf("expected sent outcome, got %+v", out)
	}
	if out.Recipient != "dana@partner.example" {
		t.Errorf("unexpected recipient: %s", out.Recipient)
	}
	if rec == nil || len(rec.Sent["dana@partner.example"]) != 1 {
		t.Errorf("expected a recorded send, got %+v", rec)
	}
	if d.calls != 1 {
		t.Errorf("expected one delivery, got %d", d.calls)
	}
}

func TestProcess_DisabledConfig(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	d := &fakeDeliverer{}

	out, rec := g.Process(context.Background(), replyEvent("a@x.example"), matchedCritical(), Config{Enabled: false}, nil, d)
	if out.Attempted || out.Sent || rec != nil {
		t.Errorf("disabled config must do nothing, got %+v", out)
	}
	if d.calls != 0 {
		t.Error("deliverer must not be called")
	}
}

func TestProcess_NoSenderAddress(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	d := &fakeDeliverer{}
	ev := &engine.Event{ID: "ev-1", Content: "x"}
	cfg := Config{Enabled: true, Conditions: Conditions{Severities: []engine.Severity{engine.SeverityCritical}}}

	out, rec := g.Process(context.Background(), ev, matchedCritical(), cfg, nil, d)
	if out.Attempted || rec != nil {
		t.Errorf("expected suppression without a sender, got %+v", out)
	}
}

func TestProcess_FailedDeliveryDoesNotConsumeQuota(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	d := &fakeDeliverer{err: errors.New("relay down")}
	cfg := Config{
		Enabled:    true,
		Template:   Template{Subject: "s", Body: "b"},
		Conditions: Conditions{Severities: []engine.Severity{engine.SeverityCritical}},
		RateLimit:  RateLimit{MaxPerSender: 1, WindowMinutes: 60},
	}

	out, rec := g.Process(context.Background(), replyEvent("a@x.example"), matchedCritical(), cfg, nil, d)
	if !out.Attempted || out.Sent {
		t.Fatalf("expected attempted-but-not-sent, got %+v", out)
	}
	if rec != nil {
		t.Error("failed delivery must not produce a record to persist")
	}
}

func TestProcess_RateLimitBlocksSecondSend(t *testing.T) {
	g := fixedGatekeeper(time.Now())
	d := &fakeDeliverer{}
	cfg := Config{
		Enabled:    true,
		Template:   Template{Subject: "s", Body: "b"},
		Conditions: Conditions{Severities: []engine.Severity{engine.SeverityCritical}},
		RateLimit:  RateLimit{MaxPerSender: 1, WindowMinutes: 60},
	}
	ev := replyEvent("a@x.example")

	_, rec := g.Process(context.Background(), ev, matchedCritical(), cfg, nil, d)
	out, rec2 := g.Process(context.Background(), ev, matchedCritical(), cfg, rec, d)
	if out.Sent {
		t.Error("second send within the window must be suppressed")
	}
	if rec2 != nil {
		t.Error("suppressed send must not produce a new record")
	}
	if d.calls != 1 {
		t.Errorf("expected one delivery total, got %d", d.calls)
	}
}

func TestReplyRecipient_PrefersReplyTo(t *testing.T) {
	ev := &engine.Event{
		ID:      "ev-1",
		Content: "x",
		Metadata: map[string]engine.MetaValue{
			"from":     engine.StringValue("orig@x.example"),
			"reply_to": engine.StringValue(`"Desk" <desk@x.example>`),
		},
	}
	if got := replyRecipient(ev); got != "desk@x.example" {
		t.Errorf("expected reply_to preference, got %q", got)
	}
}
