package api

import (
	"encoding/json"
	"time"

	"github.com/vigil-hq/vigil/internal/alert"
	"github.com/vigil-hq/vigil/internal/config"
	"github.com/vigil-hq/vigil/internal/engine"
	"github.com/vigil-hq/vigil/internal/reply"
)

// --- POST /v1/events request/response ---

// EventReq is the JSON body for POST /v1/events.
type EventReq struct {
	ID        string                      `json:"id,omitempty"`
	Timestamp *time.Time                  `json:"timestamp,omitempty"`
	Source    string                      `json:"source"`
	Type      string                      `json:"type"`
	Content   string                      `json:"content"`
	Metadata  map[string]engine.MetaValue `json:"metadata,omitempty"`
}

// MatchedRuleResp mirrors engine.MatchedRule for API responses.
type MatchedRuleResp struct {
	Kind     string `json:"kind"`
	RuleID   string `json:"rule_id"`
	Label    string `json:"label"`
	Severity string `json:"severity"`
}

// MatchResultResp is the JSON shape of one evaluation result.
type MatchResultResp struct {
	Matched  bool              `json:"matched"`
	Severity *string           `json:"severity"`
	Rules    []MatchedRuleResp `json:"rules"`
}

// EvaluateResp is the response for POST /v1/events.
type EvaluateResp struct {
	RequestID   string          `json:"request_id"`
	Blocked     bool            `json:"blocked"`
	BlockReason *string         `json:"block_reason"`
	Warnings    []string        `json:"warnings,omitempty"`
	Result      MatchResultResp `json:"result"`
	Alert       *alert.Alert    `json:"alert"`
	Reply       reply.Outcome   `json:"reply"`
	LatencyMs   float64         `json:"latency_ms"`
}

// --- POST /v1/test-rules ---

// TestRulesReq carries ad-hoc text plus an optional rule-set override.
// With no override the monitor's stored rules are used.
type TestRulesReq struct {
	Content string          `json:"content"`
	Rules   *engine.RuleSet `json:"rules,omitempty"`
}

// --- Monitor CRUD ---

// CreateMonitorReq is the JSON body for POST /api/vigil/monitors.
type CreateMonitorReq struct {
	Name string `json:"name"`
}

// CreateMonitorResp includes the plaintext API key (shown once).
type CreateMonitorResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"api_key"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// UpdateMonitorReq is the JSON body for PATCH /api/vigil/monitors/{id}.
type UpdateMonitorReq struct {
	Name    *string `json:"name,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// MonitorResp is the public monitor shape (no plaintext key).
type MonitorResp struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	APIKeyPrefix string          `json:"api_key_prefix"`
	Enabled      bool            `json:"enabled"`
	Config       json.RawMessage `json:"config"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Config validation ---

// ValidationResp surfaces the config validator's structured result.
type ValidationResp struct {
	Valid    bool           `json:"valid"`
	Errors   []config.Issue `json:"errors"`
	Warnings []config.Issue `json:"warnings"`
}

// --- Alert history ---

// AlertEventResp mirrors one alert_events row.
type AlertEventResp struct {
	RequestID      string    `json:"request_id"`
	MonitorID      string    `json:"monitor_id"`
	AlertID        *string   `json:"alert_id"`
	EventID        string    `json:"event_id"`
	Source         string    `json:"source"`
	EventType      string    `json:"event_type"`
	ContentPreview string    `json:"content_preview"`
	Blocked        bool      `json:"blocked"`
	BlockReason    *string   `json:"block_reason"`
	Matched        bool      `json:"matched"`
	Severity       *string   `json:"severity"`
	Title          *string   `json:"title"`
	RuleIDs        []string  `json:"rule_ids"`
	RuleLabels     []string  `json:"rule_labels"`
	ReplySent      bool      `json:"reply_sent"`
	ReplyReason    *string   `json:"reply_reason"`
	ForwardedToAI  bool      `json:"forwarded_to_ai"`
	LatencyMs      float32   `json:"latency_ms"`
	IngestSource   string    `json:"ingest_source"`
	Timestamp      time.Time `json:"timestamp"`
}

// AlertListResp is the paginated alert listing.
type AlertListResp struct {
	Alerts   []AlertEventResp `json:"alerts"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
