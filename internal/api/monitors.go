package api

import (
	"database/sql"
	"net/http"

	"github.com/vigil-hq/vigil/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req CreateMonitorReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	monitor, plainKey, err := d.Store.CreateMonitor(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create monitor", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create monitor"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateMonitorResp{
		ID:           monitor.ID,
		Name:         monitor.Name,
		APIKey:       plainKey,
		APIKeyPrefix: monitor.APIKeyPrefix,
		Enabled:      monitor.Enabled,
		CreatedAt:    monitor.CreatedAt,
	})
}

func (d *Dependencies) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := d.Store.ListMonitors(r.Context())
	if err != nil {
		d.Logger.Error("failed to list monitors", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list monitors"})
		return
	}

	resp := make([]MonitorResp, 0, len(monitors))
	for _, m := range monitors {
		resp = append(resp, monitorToResp(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, monitorToResp(monitor))
}

func (d *Dependencies) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("monitor_id")

	var req UpdateMonitorReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	// Validate name if provided
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	monitor, err := d.Store.UpdateMonitor(r.Context(), id, store.UpdateMonitorParams{
		Name:    req.Name,
		Enabled: req.Enabled,
	})
	if err != nil {
		d.Logger.Error("failed to update monitor", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update monitor"})
		return
	}
	if monitor == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Monitor not found."})
		return
	}
	writeJSON(w, http.StatusOK, monitorToResp(monitor))
}

func (d *Dependencies) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("monitor_id")
	err := d.Store.DeleteMonitor(r.Context(), id)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Monitor not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete monitor", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete monitor"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("monitor_id")
	monitor, plainKey, err := d.Store.RotateAPIKey(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate API key"})
		return
	}
	writeJSON(w, http.StatusOK, RotateKeyResp{
		APIKey:       plainKey,
		APIKeyPrefix: monitor.APIKeyPrefix,
	})
}

func monitorToResp(m *store.Monitor) MonitorResp {
	return MonitorResp{
		ID:           m.ID,
		Name:         m.Name,
		APIKeyPrefix: m.APIKeyPrefix,
		Enabled:      m.Enabled,
		Config:       m.Config,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
