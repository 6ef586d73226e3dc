package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserSetting is a per-user preference. Unlike admin settings these are
// untyped key/value strings owned by one account.
type UserSetting struct {
	UserID    string    `json:"-"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSettingsRepository defines the interface for per-user preference
// persistence.
type UserSettingsRepository interface {
	// List retrieves all settings for a user ordered by key.
	List(ctx context.Context, userID string) ([]UserSetting, error)

	// Get retrieves one setting. Returns ErrSettingNotFound if absent.
	Get(ctx context.Context, userID, key string) (*UserSetting, error)

	// Set inserts or updates a setting value.
	Set(ctx context.Context, userID, key, value string) error

	// Delete removes a setting. Deleting an absent key is not an error.
	Delete(ctx context.Context, userID, key string) error
}

// SQLiteUserSettingsRepository implements UserSettingsRepository using SQLite.
type SQLiteUserSettingsRepository struct {
	db *sql.DB
}

// NewUserSettingsRepository creates a new SQLite-backed user settings
// repository.
func NewUserSettingsRepository(db *sql.DB) *SQLiteUserSettingsRepository {
	return &SQLiteUserSettingsRepository{db: db}
}

// List retrieves all settings for a user ordered by key.
func (r *SQLiteUserSettingsRepository) List(ctx context.Context, userID string) ([]UserSetting, error) {
	if userID == "" {
		return nil, ErrInvalidKey
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, setting_key, setting_value, created_at, updated_at
		FROM user_settings
		WHERE user_id = ?
		ORDER BY setting_key`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user settings: %w", err)
	}
	defer rows.Close()

	var list []UserSetting
	for rows.Next() {
		s, err := scanUserSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user setting: %w", err)
		}
		list = append(list, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user settings: %w", err)
	}

	if list == nil {
		list = []UserSetting{}
	}
	return list, nil
}

// Get retrieves one setting for a user.
func (r *SQLiteUserSettingsRepository) Get(ctx context.Context, userID, key string) (*UserSetting, error) {
	if userID == "" || key == "" {
		return nil, ErrInvalidKey
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, setting_key, setting_value, created_at, updated_at
		FROM user_settings
		WHERE user_id = ? AND setting_key = ?`, userID, key)
	s, err := scanUserSetting(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("querying user setting: %w", err)
	}
	return s, nil
}

// Set inserts or updates a setting value.
func (r *SQLiteUserSettingsRepository) Set(ctx context.Context, userID, key, value string) error {
	if userID == "" || key == "" {
		return ErrInvalidKey
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, setting_key, setting_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, setting_key) DO UPDATE SET
			setting_value = excluded.setting_value,
			updated_at = excluded.updated_at`,
		userID, key, value, now, now,
	)
	if err != nil {
		return fmt.Errorf("setting user setting: %w", err)
	}
	return nil
}

// Delete removes a setting.
func (r *SQLiteUserSettingsRepository) Delete(ctx context.Context, userID, key string) error {
	if userID == "" || key == "" {
		return ErrInvalidKey
	}

	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM user_settings WHERE user_id = ? AND setting_key = ?",
		userID, key,
	); err != nil {
		return fmt.Errorf("deleting user setting: %w", err)
	}
	return nil
}

// scanUserSetting scans a user settings row.
func scanUserSetting(row rowScanner) (*UserSetting, error) {
	var s UserSetting
	var value sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&s.UserID, &s.Key, &value, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	s.Value = value.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &s, nil
}
