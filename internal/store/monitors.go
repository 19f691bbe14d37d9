package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Monitor represents a row in the monitors table. Config is the full
// monitor configuration (rules, templates, auto-reply, ingestion) stored
// as JSONB; the API layer decodes it.
type Monitor struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	Enabled      bool
	Config       json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpdateMonitorParams holds optional fields for partial monitor updates.
type UpdateMonitorParams struct {
	Name    *string
	Enabled *bool
}

// GenerateAPIKey creates a new vgl_ API key with its bcrypt hash and
// prefix. Returns (fullKey, hash, prefix, error). The fullKey is shown to
// the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "vgl_" + hex.EncodeToString(raw)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	prefix := fullKey[:8]
	return fullKey, string(hashBytes), prefix, nil
}

// CreateMonitor inserts a new monitor with an empty configuration.
// Returns the monitor and the plaintext API key (shown once).
func (s *Store) CreateMonitor(ctx context.Context, name string) (*Monitor, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateMonitor: %w", err)
	}

	var m Monitor
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO monitors (name, api_key_hash, api_key_prefix, config)
		VALUES ($1, $2, $3, '{}'::jsonb)
		RETURNING id, name, api_key_hash, api_key_prefix, enabled, config, created_at, updated_at`,
		name, keyHash, keyPrefix,
	).Scan(&m.ID, &m.Name, &m.APIKeyHash, &m.APIKeyPrefix, &m.Enabled, &m.Config,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateMonitor: %w", err)
	}

	return &m, fullKey, nil
}

// ListMonitors returns all monitors ordered by created_at DESC.
func (s *Store) ListMonitors(ctx context.Context) ([]*Monitor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, enabled, config, created_at, updated_at
		FROM monitors ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListMonitors: %w", err)
	}
	defer rows.Close()

	var monitors []*Monitor
	for rows.Next() {
		var m Monitor
		if err := rows.Scan(&m.ID, &m.Name, &m.APIKeyHash, &m.APIKeyPrefix,
			&m.Enabled, &m.Config, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListMonitors: %w", err)
		}
		monitors = append(monitors, &m)
	}
	return monitors, rows.Err()
}

// GetMonitor returns a monitor by ID, or nil if not found.
func (s *Store) GetMonitor(ctx context.Context, id string) (*Monitor, error) {
	var m Monitor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, enabled, config, created_at, updated_at
		FROM monitors WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.APIKeyHash, &m.APIKeyPrefix,
		&m.Enabled, &m.Config, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetMonitor: %w", err)
	}
	return &m, nil
}

// UpdateMonitor applies a partial update. Only non-nil fields are changed.
func (s *Store) UpdateMonitor(ctx context.Context, id string, params UpdateMonitorParams) (*Monitor, error) {
	var m Monitor
	err := s.db.QueryRowContext(ctx, `
		UPDATE monitors SET
			name       = COALESCE($2, name),
			enabled    = COALESCE($3, enabled),
			updated_at = now()
		WHERE id = $1
		RETURNING id, name, api_key_hash, api_key_prefix, enabled, config, created_at, updated_at`,
		id, params.Name, params.Enabled,
	).Scan(&m.ID, &m.Name, &m.APIKeyHash, &m.APIKeyPrefix,
		&m.Enabled, &m.Config, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateMonitor: %w", err)
	}
	return &m, nil
}

// UpdateConfig replaces a monitor's configuration JSONB. The caller runs
// the config validator first; the store does not re-validate.
func (s *Store) UpdateConfig(ctx context.Context, id string, cfg json.RawMessage) (*Monitor, error) {
	var m Monitor
	err := s.db.QueryRowContext(ctx, `
		UPDATE monitors SET config = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, name, api_key_hash, api_key_prefix, enabled, config, created_at, updated_at`,
		id, cfg,
	).Scan(&m.ID, &m.Name, &m.APIKeyHash, &m.APIKeyPrefix,
		&m.Enabled, &m.Config, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateConfig: %w", err)
	}
	return &m, nil
}

// DeleteMonitor deletes a monitor by ID. The reply-limit record cascades.
func (s *Store) DeleteMonitor(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteMonitor: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RotateAPIKey generates a new API key for a monitor.
// Returns the updated monitor and the plaintext key (shown once).
func (s *Store) RotateAPIKey(ctx context.Context, id string) (*Monitor, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	var m Monitor
	err = s.db.QueryRowContext(ctx, `
		UPDATE monitors SET
			api_key_hash   = $2,
			api_key_prefix = $3,
			updated_at     = now()
		WHERE id = $1
		RETURNING id, name, api_key_hash, api_key_prefix, enabled, config, created_at, updated_at`,
		id, keyHash, keyPrefix,
	).Scan(&m.ID, &m.Name, &m.APIKeyHash, &m.APIKeyPrefix,
		&m.Enabled, &m.Config, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("RotateAPIKey: monitor not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	return &m, fullKey, nil
}

// LookupByPrefix finds a monitor by API key prefix (first 8 chars).
// Used by auth to narrow candidates before bcrypt verify.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*Monitor, error) {
	var m Monitor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, enabled, config, created_at, updated_at
		FROM monitors WHERE api_key_prefix = $1`, prefix,
	).Scan(&m.ID, &m.Name, &m.APIKeyHash, &m.APIKeyPrefix,
		&m.Enabled, &m.Config, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &m, nil
}
