package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vigil-hq/vigil/internal/engine"
	"github.com/vigil-hq/vigil/internal/pipeline"
)

// handleEvent implements POST /v1/events.
// Auth middleware has already validated the Bearer token and injected the
// monitor.
func (d *Dependencies) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req EventReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "content is required"})
		return
	}

	mon := monitorFromContext(r.Context())
	if mon == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing monitor context"})
		return
	}
	if !mon.Enabled {
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: "monitor is disabled"})
		return
	}

	ev := eventFromReq(req)
	out := d.Processor.Process(r.Context(), pipeline.Monitor{ID: mon.ID, Config: mon.Config}, ev, "api")

	writeJSON(w, http.StatusOK, evaluateRespFrom(out))
}

// handleTestRules implements POST /v1/test-rules: evaluates ad-hoc text
// with no side effects. Nothing is written to the alert history and no
// reply is considered.
func (d *Dependencies) handleTestRules(w http.ResponseWriter, r *http.Request) {
	var req TestRulesReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "content is required"})
		return
	}

	mon := monitorFromContext(r.Context())
	if mon == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing monitor context"})
		return
	}

	rules := &mon.Config.Rules
	if req.Rules != nil {
		rules = req.Rules
	}

	result := d.Engine.TestRules(req.Content, rules)
	writeJSON(w, http.StatusOK, matchResultResp(result))
}

func eventFromReq(req EventReq) *engine.Event {
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	return &engine.Event{
		ID:        id,
		Timestamp: ts,
		Source:    req.Source,
		Type:      req.Type,
		Content:   req.Content,
		Metadata:  req.Metadata,
	}
}

func matchResultResp(res engine.MatchResult) MatchResultResp {
	rules := make([]MatchedRuleResp, 0, len(res.Rules))
	for _, m := range res.Rules {
		rules = append(rules, MatchedRuleResp{
			Kind:     string(m.Kind),
			RuleID:   m.RuleID,
			Label:    m.Label,
			Severity: m.Severity.String(),
		})
	}
	var sev *string
	if res.Severity != nil {
		s := res.Severity.String()
		sev = &s
	}
	return MatchResultResp{
		Matched:  res.Matched,
		Severity: sev,
		Rules:    rules,
	}
}

func evaluateRespFrom(out pipeline.Outcome) EvaluateResp {
	var blockReason *string
	if out.BlockReason != "" {
		br := out.BlockReason
		blockReason = &br
	}
	return EvaluateResp{
		RequestID:   out.RequestID,
		Blocked:     out.Blocked,
		BlockReason: blockReason,
		Warnings:    out.Warnings,
		Result:      matchResultResp(out.Result),
		Alert:       out.Alert,
		Reply:       out.Reply,
		LatencyMs:   out.LatencyMs,
	}
}
