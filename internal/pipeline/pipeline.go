// Package pipeline runs one event through the full monitoring flow:
// sanitize, evaluate, render, reply-gatekeep, and record to the alert
// history. Both the HTTP API and the Kafka ingester feed it.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vigil-hq/vigil/internal/alert"
	"github.com/vigil-hq/vigil/internal/config"
	"github.com/vigil-hq/vigil/internal/engine"
	"github.com/vigil-hq/vigil/internal/reply"
	"github.com/vigil-hq/vigil/internal/sanitize"
	"github.com/vigil-hq/vigil/internal/storage"
	"github.com/vigil-hq/vigil/internal/store"
	"go.uber.org/zap"
)

// casRetries bounds reply-record compare-and-swap attempts per event.
const casRetries = 3

// Monitor is the resolved monitor a processed event belongs to.
type Monitor struct {
	ID     string
	Config *config.MonitorConfig
}

// Outcome is everything one event evaluation produced.
type Outcome struct {
	RequestID   string             `json:"request_id"`
	Blocked     bool               `json:"blocked"`
	BlockReason string             `json:"block_reason,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Result      engine.MatchResult `json:"result"`
	Alert       *alert.Alert       `json:"alert,omitempty"`
	Reply       reply.Outcome      `json:"reply"`
	LatencyMs   float64            `json:"latency_ms"`
}

// Processor owns the evaluation flow dependencies.
type Processor struct {
	engine     *engine.Engine
	gatekeeper *reply.Gatekeeper
	writer     storage.AlertWriter
	store      *store.Store
	deliverer  reply.Deliverer
	logger     *zap.Logger
}

// NewProcessor wires a Processor. store may be nil (no rate-limit
// persistence, e.g. in dry-run tooling); deliverer may be nil to disable
// reply dispatch entirely.
func NewProcessor(eng *engine.Engine, gk *reply.Gatekeeper, w storage.AlertWriter, st *store.Store, d reply.Deliverer, logger *zap.Logger) *Processor {
	return &Processor{
		engine:     eng,
		gatekeeper: gk,
		writer:     w,
		store:      st,
		deliverer:  d,
		logger:     logger,
	}
}

// Process runs one event through the full flow for one monitor and
// records the outcome to the alert history. ingestSource tags where the
// event came from ("api" or "kafka").
func (p *Processor) Process(ctx context.Context, mon Monitor, ev *engine.Event, ingestSource string) Outcome {
	start := time.Now()
	out := Outcome{RequestID: uuid.New().String()}

	san := sanitize.Content(ev.Content)
	out.Warnings = san.Warnings
	if san.Blocked {
		// Fail closed: the event is dropped from further processing with
		// a reason, never silently evaluated.
		out.Blocked = true
		out.BlockReason = san.Reason
		out.LatencyMs = msSince(start)
		p.record(mon, ev, out, ingestSource)
		return out
	}

	clean := *ev
	clean.Content = san.Sanitized

	out.Result = p.engine.Evaluate(&clean, &mon.Config.Rules)
	out.Alert = alert.Render(&clean, out.Result, mon.Config.Templates, mon.ID)

	if out.Alert != nil && mon.Config.AutoReply.Enabled && p.deliverer != nil {
		out.Reply = p.processReply(ctx, mon, &clean, out.Result)
	}

	out.LatencyMs = msSince(start)
	p.record(mon, ev, out, ingestSource)
	return out
}

// processReply runs the gatekeeper under the store's compare-and-swap
// loop. Two concurrent evaluations for the same recipient race on the
// rate-limit record; the version check makes the loser reload and re-check
// so the limit cannot be overshot.
func (p *Processor) processReply(ctx context.Context, mon Monitor, ev *engine.Event, res engine.MatchResult) reply.Outcome {
	for attempt := 0; attempt < casRetries; attempt++ {
		rec, version, err := p.loadRecord(ctx, mon.ID)
		if err != nil {
			p.logger.Error("reply record load failed", zap.Error(err))
			return reply.Outcome{Reason: "rate-limit record unavailable"}
		}

		outcome, updated := p.gatekeeper.Process(ctx, ev, res, mon.Config.AutoReply, rec, p.deliverer)
		if updated == nil {
			return outcome
		}

		saved, err := p.saveRecord(ctx, mon.ID, updated, version)
		if err != nil {
			p.logger.Error("reply record save failed", zap.Error(err))
			return outcome
		}
		if saved {
			return outcome
		}
		// Version conflict: another evaluation sent a reply first.
		// Reload and re-check the limit before trying again.
	}
	return reply.Outcome{Reason: "rate-limit record contention"}
}

func (p *Processor) loadRecord(ctx context.Context, monitorID string) (*reply.Record, int64, error) {
	if p.store == nil {
		return nil, 0, nil
	}
	raw, version, err := p.store.GetReplyRecord(ctx, monitorID)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) == 0 {
		return nil, version, nil
	}
	var rec reply.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, 0, err
	}
	return &rec, version, nil
}

func (p *Processor) saveRecord(ctx context.Context, monitorID string, rec *reply.Record, expectedVersion int64) (bool, error) {
	if p.store == nil {
		return true, nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	return p.store.SaveReplyRecord(ctx, monitorID, raw, expectedVersion)
}

// record fires the outcome to the async alert-history writer.
func (p *Processor) record(mon Monitor, ev *engine.Event, out Outcome, ingestSource string) {
	if p.writer == nil {
		return
	}

	hashBytes := sha256.Sum256([]byte(ev.Content))

	event := &storage.AlertEvent{
		RequestID:      out.RequestID,
		MonitorID:      mon.ID,
		EventID:        ev.ID,
		Timestamp:      time.Now(),
		Source:         ev.Source,
		EventType:      ev.Type,
		ContentPreview: storage.TruncateContent(ev.Content, storage.PreviewLength),
		ContentHash:    hex.EncodeToString(hashBytes[:]),
		ContentSize:    uint32(len(ev.Content)),
		Blocked:        out.Blocked,
		BlockReason:    out.BlockReason,
		Matched:        out.Result.Matched,
		RuleIDs:        out.Result.RuleIDs(),
		RuleLabels:     out.Result.RuleLabels(),
		ReplySent:      out.Reply.Sent,
		ReplyReason:    out.Reply.Reason,
		LatencyMs:      float32(out.LatencyMs),
		IngestSource:   ingestSource,
	}
	if out.Result.Severity != nil {
		event.Severity = out.Result.Severity.String()
	}
	if out.Alert != nil {
		event.AlertID = out.Alert.ID
		event.Title = out.Alert.Title
		event.ForwardedToAI = out.Alert.ForwardedToAI
	}

	p.writer.Write(event)
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
