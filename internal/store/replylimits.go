package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// GetReplyRecord loads a monitor's rate-limit record and its version.
// A monitor with no record yet returns (nil, 0, nil); version 0 is the
// expected version for the first save.
func (s *Store) GetReplyRecord(ctx context.Context, monitorID string) (json.RawMessage, int64, error) {
	var record json.RawMessage
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT record, version FROM reply_limits WHERE monitor_id = $1`, monitorID,
	).Scan(&record, &version)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("GetReplyRecord: %w", err)
	}
	return record, version, nil
}

// SaveReplyRecord persists an updated rate-limit record with
// compare-and-swap semantics: the write succeeds only when the stored
// version still equals expectedVersion. Returns false on a version
// conflict, in which case the caller reloads, re-checks the rate limit,
// and retries. This is the per-recipient serialization the engine's
// read-check-then-write race requires; the engine itself holds no lock.
func (s *Store) SaveReplyRecord(ctx context.Context, monitorID string, record json.RawMessage, expectedVersion int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reply_limits (monitor_id, record, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (monitor_id) DO UPDATE
		SET record = EXCLUDED.record, version = reply_limits.version + 1, updated_at = now()
		WHERE reply_limits.version = $3`,
		monitorID, record, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("SaveReplyRecord: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SaveReplyRecord: %w", err)
	}
	return n > 0, nil
}
