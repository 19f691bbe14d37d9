// Package chread provides read access to the ClickHouse alert_events
// table for the history and analytics endpoints.
package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse alert_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// AlertRow represents a single row from the alert_events table.
type AlertRow struct {
	RequestID      string
	MonitorID      string
	AlertID        string
	EventID        string
	Timestamp      time.Time
	Source         string
	EventType      string
	ContentPreview string
	Blocked        uint8
	BlockReason    string
	Matched        uint8
	Severity       string
	Title          string
	RuleIDs        []string
	RuleLabels     []string
	ReplySent      uint8
	ReplyReason    string
	ForwardedToAI  uint8
	LatencyMs      float32
	IngestSource   string
}

// ListAlertsParams holds filters and pagination for alert listing.
type ListAlertsParams struct {
	MonitorID string
	Severity  *string
	Matched   *bool
	Blocked   *bool
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// ListAlerts returns paginated, filtered alert events and the total count.
func (r *Reader) ListAlerts(ctx context.Context, params ListAlertsParams) ([]AlertRow, int, error) {
	conditions := []string{"monitor_id = @monitor_id"}
	args := []any{
		clickhouse.Named("monitor_id", params.MonitorID),
	}

	if params.Severity != nil {
		conditions = append(conditions, "severity = @severity")
		args = append(args, clickhouse.Named("severity", *params.Severity))
	}
	if params.Matched != nil {
		var v uint8
		if *params.Matched {
			v = 1
		}
		conditions = append(conditions, "matched = @matched")
		args = append(args, clickhouse.Named("matched", v))
	}
	if params.Blocked != nil {
		var v uint8
		if *params.Blocked {
			v = 1
		}
		conditions = append(conditions, "blocked = @blocked")
		args = append(args, clickhouse.Named("blocked", v))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	// Count query
	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM alert_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListAlerts count: %w", err)
	}

	// Data query
	dataQuery := fmt.Sprintf(
		"SELECT request_id, monitor_id, alert_id, event_id, timestamp, "+
			"source, event_type, content_preview, blocked, block_reason, "+
			"matched, severity, title, rule_ids, rule_labels, "+
			"reply_sent, reply_reason, forwarded_to_ai, latency_ms, ingest_source "+
			"FROM alert_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListAlerts query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []AlertRow
	for rows.Next() {
		var a AlertRow
		if err := rows.Scan(
			&a.RequestID, &a.MonitorID, &a.AlertID, &a.EventID, &a.Timestamp,
			&a.Source, &a.EventType, &a.ContentPreview, &a.Blocked, &a.BlockReason,
			&a.Matched, &a.Severity, &a.Title, &a.RuleIDs, &a.RuleLabels,
			&a.ReplySent, &a.ReplyReason, &a.ForwardedToAI, &a.LatencyMs, &a.IngestSource,
		); err != nil {
			return nil, 0, fmt.Errorf("ListAlerts scan: %w", err)
		}
		alerts = append(alerts, a)
	}

	return alerts, int(total), rows.Err()
}

// GetAlert returns a single alert event by monitor ID and alert ID, or nil
// if not found.
func (r *Reader) GetAlert(ctx context.Context, monitorID, alertID string) (*AlertRow, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT request_id, monitor_id, alert_id, event_id, timestamp, "+
			"source, event_type, content_preview, blocked, block_reason, "+
			"matched, severity, title, rule_ids, rule_labels, "+
			"reply_sent, reply_reason, forwarded_to_ai, latency_ms, ingest_source "+
			"FROM alert_events "+
			"WHERE monitor_id = @monitor_id AND alert_id = @alert_id",
		clickhouse.Named("monitor_id", monitorID),
		clickhouse.Named("alert_id", alertID),
	)

	var a AlertRow
	if err := row.Scan(
		&a.RequestID, &a.MonitorID, &a.AlertID, &a.EventID, &a.Timestamp,
		&a.Source, &a.EventType, &a.ContentPreview, &a.Blocked, &a.BlockReason,
		&a.Matched, &a.Severity, &a.Title, &a.RuleIDs, &a.RuleLabels,
		&a.ReplySent, &a.ReplyReason, &a.ForwardedToAI, &a.LatencyMs, &a.IngestSource,
	); err != nil {
		// ClickHouse doesn't return sql.ErrNoRows, so check for empty result
		return nil, fmt.Errorf("GetAlert: %w", err)
	}
	if a.RequestID == "" {
		return nil, nil
	}
	return &a, nil
}

// SummaryStats holds aggregate counts.
type SummaryStats struct {
	TotalEvents int `json:"total_events"`
	Matched     int `json:"matched"`
	Blocked     int `json:"blocked"`
	RepliesSent int `json:"replies_sent"`
}

// SeverityCount holds a severity and its count.
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// RuleCount holds a rule label and its fire count.
type RuleCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats      `json:"summary"`
	AlertsOverTime     []TimeSeriesBucket `json:"alerts_over_time"`
	SeverityBreakdown  []SeverityCount   `json:"severity_breakdown"`
	TopRules           []RuleCount       `json:"top_rules"`
	LatencyPercentiles LatencyStats      `json:"latency_percentiles"`
}

// GetAnalytics returns aggregated analytics for a monitor over the given
// number of days.
func (r *Reader) GetAnalytics(ctx context.Context, monitorID string, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	baseArgs := []any{
		clickhouse.Named("monitor_id", monitorID),
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{}

	// Summary counts
	var totalEvents, matched, blocked, replies uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total_events, "+
			"countIf(matched = 1) as matched, "+
			"countIf(blocked = 1) as blocked, "+
			"countIf(reply_sent = 1) as replies "+
			"FROM alert_events "+
			"WHERE monitor_id = @monitor_id AND timestamp >= @range_start",
		baseArgs...,
	).Scan(&totalEvents, &matched, &blocked, &replies)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalEvents: int(totalEvents),
		Matched:     int(matched),
		Blocked:     int(blocked),
		RepliesSent: int(replies),
	}

	// Alerts over time (hourly)
	aotRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM alert_events "+
			"WHERE monitor_id = @monitor_id AND matched = 1 "+
			"AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics alerts_over_time: %w", err)
	}
	defer func() { _ = aotRows.Close() }()
	for aotRows.Next() {
		var hour time.Time
		var count uint64
		if err := aotRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics alerts_over_time scan: %w", err)
		}
		result.AlertsOverTime = append(result.AlertsOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	// Severity breakdown
	sevRows, err := r.conn.Query(ctx,
		"SELECT severity, count() as count "+
			"FROM alert_events "+
			"WHERE monitor_id = @monitor_id AND matched = 1 AND severity != '' "+
			"AND timestamp >= @range_start "+
			"GROUP BY severity ORDER BY count DESC",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics severity_breakdown: %w", err)
	}
	defer func() { _ = sevRows.Close() }()
	for sevRows.Next() {
		var sev string
		var count uint64
		if err := sevRows.Scan(&sev, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics severity_breakdown scan: %w", err)
		}
		result.SeverityBreakdown = append(result.SeverityBreakdown, SeverityCount{
			Severity: sev, Count: int(count),
		})
	}

	// Top firing rules
	ruleRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(rule_labels) as label, count() as count "+
			"FROM alert_events "+
			"WHERE monitor_id = @monitor_id AND matched = 1 "+
			"AND timestamp >= @range_start "+
			"GROUP BY label ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_rules: %w", err)
	}
	defer func() { _ = ruleRows.Close() }()
	for ruleRows.Next() {
		var label string
		var count uint64
		if err := ruleRows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_rules scan: %w", err)
		}
		result.TopRules = append(result.TopRules, RuleCount{
			Label: label, Count: int(count),
		})
	}

	// Latency percentiles (last 24h)
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) as p50, "+
			"quantile(0.95)(latency_ms) as p95, "+
			"quantile(0.99)(latency_ms) as p99 "+
			"FROM alert_events "+
			"WHERE monitor_id = @monitor_id AND timestamp >= @day_start",
		clickhouse.Named("monitor_id", monitorID),
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	// Ensure slices are non-nil for JSON serialization
	if result.AlertsOverTime == nil {
		result.AlertsOverTime = []TimeSeriesBucket{}
	}
	if result.SeverityBreakdown == nil {
		result.SeverityBreakdown = []SeverityCount{}
	}
	if result.TopRules == nil {
		result.TopRules = []RuleCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
