package api

import (
	"net/http"
	"time"

	"github.com/vigil-hq/vigil/internal/chread"
	"github.com/vigil-hq/vigil/internal/engine"
	"github.com/vigil-hq/vigil/internal/pipeline"
	"github.com/vigil-hq/vigil/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store     *store.Store
	Engine    *engine.Engine
	Processor *pipeline.Processor
	Reader    *chread.Reader // nil if ClickHouse unavailable
	Logger    *zap.Logger
	CacheTTL  time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Event evaluation + dry-run (auth required via Bearer vgl_ token)
	mux.HandleFunc("POST /v1/events", deps.authMiddleware(deps.handleEvent))
	mux.HandleFunc("POST /v1/test-rules", deps.authMiddleware(deps.handleTestRules))

	// Monitor CRUD (dashboard-facing, no token auth)
	mux.HandleFunc("POST /api/vigil/monitors", deps.handleCreateMonitor)
	mux.HandleFunc("GET /api/vigil/monitors", deps.handleListMonitors)
	mux.HandleFunc("GET /api/vigil/monitors/{monitor_id}", deps.handleGetMonitor)
	mux.HandleFunc("PATCH /api/vigil/monitors/{monitor_id}", deps.handleUpdateMonitor)
	mux.HandleFunc("DELETE /api/vigil/monitors/{monitor_id}", deps.handleDeleteMonitor)
	mux.HandleFunc("POST /api/vigil/monitors/{monitor_id}/rotate-key", deps.handleRotateKey)

	// Config management (no auth)
	mux.HandleFunc("GET /api/vigil/monitors/{monitor_id}/config", deps.handleGetConfig)
	mux.HandleFunc("PUT /api/vigil/monitors/{monitor_id}/config", deps.handleReplaceConfig)
	mux.HandleFunc("POST /api/vigil/monitors/{monitor_id}/config/generated", deps.handleGeneratedConfig)
	mux.HandleFunc("POST /api/vigil/monitors/config/validate", deps.handleValidateConfig)

	// Alert history & analytics (no auth)
	mux.HandleFunc("GET /api/vigil/alerts", deps.handleListAlerts)
	mux.HandleFunc("GET /api/vigil/alerts/{alert_id}", deps.handleGetAlert)
	mux.HandleFunc("GET /api/vigil/analytics", deps.handleGetAnalytics)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
