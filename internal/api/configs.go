package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/vigil-hq/vigil/internal/config"
	"go.uber.org/zap"
)

// maxConfigBytes caps config documents; rule sets are small.
const maxConfigBytes = 1 << 20

// handleGetConfig implements GET /api/vigil/monitors/{monitor_id}/config.
func (d *Dependencies) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("monitor_id")
	monitor, err := d.Store.GetMonitor(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get monitor", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get monitor"})
		return
	}
	if monitor == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Monitor not found."})
		return
	}
	writeJSON(w, http.StatusOK, monitor.Config)
}

// handleReplaceConfig implements PUT /api/vigil/monitors/{monitor_id}/config.
// The config validator runs before persistence: hard errors block the save
// with a 422; warnings are returned alongside the saved config.
func (d *Dependencies) handleReplaceConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("monitor_id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read body"})
		return
	}
	defer func() { _ = r.Body.Close() }()

	var cfg config.MonitorConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	res := config.Validate(&cfg)
	if !res.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, validationResp(res))
		return
	}

	monitor, err := d.Store.UpdateConfig(r.Context(), id, body)
	if err != nil {
		d.Logger.Error("failed to update config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update config"})
		return
	}
	if monitor == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Monitor not found."})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Config     json.RawMessage `json:"config"`
		Validation ValidationResp  `json:"validation"`
	}{Config: monitor.Config, Validation: validationResp(res)})
}

// handleValidateConfig implements POST /api/vigil/monitors/config/validate:
// a dry-run of the validator with no persistence, for editor feedback.
func (d *Dependencies) handleValidateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.MonitorConfig
	if err := readJSON(r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	writeJSON(w, http.StatusOK, validationResp(config.Validate(&cfg)))
}

// handleGeneratedConfig implements POST /api/vigil/monitors/{monitor_id}/config/generated.
// It is the acceptance gate for rule sets proposed by the one-time
// rule-generation collaborator: JSON-Schema first, then the structural
// validator over the merged config. The engine never calls the model API.
func (d *Dependencies) handleGeneratedConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("monitor_id")

	monitor, err := d.Store.GetMonitor(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get monitor", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get monitor"})
		return
	}
	if monitor == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Monitor not found."})
		return
	}

	current, err := decodeMonitorConfig(monitor.Config)
	if err != nil {
		d.Logger.Error("stored config does not decode", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Stored config is invalid"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read body"})
		return
	}
	defer func() { _ = r.Body.Close() }()

	merged, res := config.ValidateGenerated(body, current)
	if merged == nil {
		writeJSON(w, http.StatusUnprocessableEntity, validationResp(res))
		return
	}

	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		d.Logger.Error("failed to marshal merged config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to store config"})
		return
	}

	updated, err := d.Store.UpdateConfig(r.Context(), id, mergedJSON)
	if err != nil {
		d.Logger.Error("failed to update config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update config"})
		return
	}
	if updated == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Monitor not found."})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Config     json.RawMessage `json:"config"`
		Validation ValidationResp  `json:"validation"`
	}{Config: updated.Config, Validation: validationResp(res)})
}

func validationResp(res config.Result) ValidationResp {
	errs := res.Errors
	if errs == nil {
		errs = []config.Issue{}
	}
	warns := res.Warnings
	if warns == nil {
		warns = []config.Issue{}
	}
	return ValidationResp{Valid: res.Valid, Errors: errs, Warnings: warns}
}
