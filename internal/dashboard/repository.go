package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ConfigRepository persists one dashboard snapshot per user.
type ConfigRepository interface {
	// Load returns the saved snapshot, or ErrConfigNotFound if the user
	// has never saved one.
	Load(ctx context.Context, userID string) (*Snapshot, error)

	// Save replaces the user's snapshot.
	Save(ctx context.Context, userID string, snap *Snapshot) error
}

// SQLiteConfigRepository stores snapshots as JSON documents in the
// dashboard_config table, one row per user.
type SQLiteConfigRepository struct {
	db *sql.DB
}

// NewConfigRepository creates a new SQLite-backed config repository.
func NewConfigRepository(db *sql.DB) *SQLiteConfigRepository {
	return &SQLiteConfigRepository{db: db}
}

// Load retrieves and decodes the user's snapshot.
func (r *SQLiteConfigRepository) Load(ctx context.Context, userID string) (*Snapshot, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		"SELECT config_data FROM dashboard_config WHERE user_id = ?", userID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("loading dashboard config: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decoding dashboard config: %w", err)
	}
	return &snap, nil
}

// Save upserts the user's snapshot as a JSON document.
func (r *SQLiteConfigRepository) Save(ctx context.Context, userID string, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding dashboard config: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO dashboard_config (user_id, config_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     config_data = excluded.config_data,
		     updated_at = excluded.updated_at`,
		userID, string(raw), now, now,
	)
	if err != nil {
		return fmt.Errorf("saving dashboard config: %w", err)
	}
	return nil
}
