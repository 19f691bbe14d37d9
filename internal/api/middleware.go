package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vigil-hq/vigil/internal/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey int

const monitorCtxKey contextKey = iota

// authMonitor holds the authenticated monitor context for a request.
type authMonitor struct {
	ID      string
	Enabled bool
	Config  *config.MonitorConfig
}

// monitorFromContext extracts the authenticated monitor from the request context.
func monitorFromContext(ctx context.Context) *authMonitor {
	v, _ := ctx.Value(monitorCtxKey).(*authMonitor)
	return v
}

// --- Auth cache (stale-while-revalidate) ---

type cacheEntry struct {
	monitor    *authMonitor
	expiresAt  time.Time
	refreshing atomic.Bool
}

type authCache struct {
	store sync.Map // map[string]*cacheEntry (keyed by full API key)
	ttl   time.Duration
}

func newAuthCache(ttl time.Duration) *authCache {
	return &authCache{ttl: ttl}
}

func (c *authCache) get(key string) (mon *authMonitor, hit bool, needsRefresh bool) {
	v, ok := c.store.Load(key)
	if !ok {
		return nil, false, false
	}
	entry := v.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return entry.monitor, true, false // fresh
	}
	// Stale: return value but signal refresh needed (only one goroutine refreshes)
	needsRefresh = entry.refreshing.CompareAndSwap(false, true)
	return entry.monitor, true, needsRefresh
}

func (c *authCache) set(key string, mon *authMonitor) {
	c.store.Store(key, &cacheEntry{
		monitor:   mon,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// --- Auth middleware ---

// authMiddleware returns an http.HandlerFunc that validates Bearer vgl_
// tokens and injects the authenticated monitor into the request context.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	cache := newAuthCache(d.CacheTTL)

	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
			return
		}
		if len(token) < 8 || !strings.HasPrefix(token, "vgl_") {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key format"})
			return
		}

		// Cache lookup
		mon, hit, needsRefresh := cache.get(token)
		if hit && needsRefresh {
			// Stale hit: serve stale immediately, refresh in background
			go d.refreshAuth(cache, token)
		}
		if hit && mon != nil {
			ctx := context.WithValue(r.Context(), monitorCtxKey, mon)
			next(w, r.WithContext(ctx))
			return
		}

		// Cache miss, synchronous lookup
		mon, err := d.authenticateToken(r.Context(), token)
		if err != nil {
			d.Logger.Warn("auth failed", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key"})
			return
		}

		cache.set(token, mon)
		ctx := context.WithValue(r.Context(), monitorCtxKey, mon)
		next(w, r.WithContext(ctx))
	}
}

// authenticateToken validates an API key against Postgres and returns the
// monitor context.
func (d *Dependencies) authenticateToken(ctx context.Context, token string) (*authMonitor, error) {
	prefix := token[:8]
	m, err := d.Store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("monitor not found for prefix")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.APIKeyHash), []byte(token)); err != nil {
		return nil, err
	}

	cfg, err := decodeMonitorConfig(m.Config)
	if err != nil {
		return nil, fmt.Errorf("monitor config invalid: %w", err)
	}

	return &authMonitor{
		ID:      m.ID,
		Enabled: m.Enabled,
		Config:  cfg,
	}, nil
}

// refreshAuth refreshes the cache entry in the background.
func (d *Dependencies) refreshAuth(cache *authCache, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mon, err := d.authenticateToken(ctx, token)
	if err != nil {
		d.Logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	cache.set(token, mon)
}

// decodeMonitorConfig converts the stored config JSONB into a typed
// MonitorConfig. An empty document yields an empty config, not an error.
func decodeMonitorConfig(raw json.RawMessage) (*config.MonitorConfig, error) {
	cfg := &config.MonitorConfig{}
	if len(raw) == 0 || string(raw) == "{}" || string(raw) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a JSON request body into the given pointer.
func readJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- CORS ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
