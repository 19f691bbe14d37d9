package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vigil-hq/vigil/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	monitorID := q.Get("monitor_id")
	if monitorID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "monitor_id query parameter is required"})
		return
	}

	params := chread.ListAlertsParams{
		MonitorID: monitorID,
		Page:      queryInt(q, "page", 1),
		PageSize:  queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("severity"); v != "" {
		params.Severity = &v
	}
	if v := q.Get("matched"); v != "" {
		b := v == "true" || v == "1"
		params.Matched = &b
	}
	if v := q.Get("blocked"); v != "" {
		b := v == "true" || v == "1"
		params.Blocked = &b
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	alerts, total, err := d.Reader.ListAlerts(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list alerts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list alerts"})
		return
	}

	resp := AlertListResp{
		Alerts:   make([]AlertEventResp, 0, len(alerts)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, a := range alerts {
		resp.Alerts = append(resp.Alerts, alertRowToResp(a))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	alertID := r.PathValue("alert_id")
	monitorID := r.URL.Query().Get("monitor_id")
	if monitorID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "monitor_id query parameter is required"})
		return
	}

	row, err := d.Reader.GetAlert(r.Context(), monitorID, alertID)
	if err != nil {
		d.Logger.Error("failed to get alert", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get alert"})
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Alert not found."})
		return
	}

	writeJSON(w, http.StatusOK, alertRowToResp(*row))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	monitorID := q.Get("monitor_id")
	if monitorID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "monitor_id query parameter is required"})
		return
	}

	days := queryInt(q, "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), monitorID, days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func alertRowToResp(a chread.AlertRow) AlertEventResp {
	return AlertEventResp{
		RequestID:      a.RequestID,
		MonitorID:      a.MonitorID,
		AlertID:        optStr(a.AlertID),
		EventID:        a.EventID,
		Source:         a.Source,
		EventType:      a.EventType,
		ContentPreview: a.ContentPreview,
		Blocked:        a.Blocked == 1,
		BlockReason:    optStr(a.BlockReason),
		Matched:        a.Matched == 1,
		Severity:       optStr(a.Severity),
		Title:          optStr(a.Title),
		RuleIDs:        a.RuleIDs,
		RuleLabels:     a.RuleLabels,
		ReplySent:      a.ReplySent == 1,
		ReplyReason:    optStr(a.ReplyReason),
		ForwardedToAI:  a.ForwardedToAI == 1,
		LatencyMs:      a.LatencyMs,
		IngestSource:   a.IngestSource,
		Timestamp:      a.Timestamp,
	}
}

// optStr maps an empty string to a JSON null.
func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// queryInt parses an integer query parameter with a default.
func queryInt(q map[string][]string, key string, def int) int {
	vals := q[key]
	if len(vals) == 0 || vals[0] == "" {
		return def
	}
	if n, err := strconv.Atoi(vals[0]); err == nil {
		return n
	}
	return def
}
