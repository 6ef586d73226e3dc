package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for settings persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Get retrieves a setting by key.
	// Returns ErrSettingNotFound if the key does not exist.
	Get(ctx context.Context, key string) (*Setting, error)

	// List retrieves all settings ordered by key.
	List(ctx context.Context) ([]Setting, error)

	// Upsert inserts or updates a setting. The updatedBy field records
	// which admin made the change.
	Upsert(ctx context.Context, setting *Setting) error

	// SeedDefaults inserts any default settings that are missing.
	// Existing values are never overwritten.
	SeedDefaults(ctx context.Context) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get retrieves a setting by key.
func (r *SQLiteRepository) Get(ctx context.Context, key string) (*Setting, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	query := `
		SELECT setting_key, setting_value, setting_type, description, updated_by, created_at, updated_at
		FROM admin_settings
		WHERE setting_key = ?`

	row := r.db.QueryRowContext(ctx, query, key)
	setting, err := scanSetting(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("querying setting by key: %w", err)
	}
	return setting, nil
}

// List retrieves all settings ordered by key.
func (r *SQLiteRepository) List(ctx context.Context) ([]Setting, error) {
	query := `
		SELECT setting_key, setting_value, setting_type, description, updated_by, created_at, updated_at
		FROM admin_settings
		ORDER BY setting_key`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		settings = append(settings, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return settings, nil
}

// Upsert inserts or updates a setting.
func (r *SQLiteRepository) Upsert(ctx context.Context, setting *Setting) error {
	if setting == nil || setting.Key == "" {
		return ErrInvalidKey
	}

	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO admin_settings (setting_key, setting_value, setting_type, description, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(setting_key) DO UPDATE SET
			setting_value = excluded.setting_value,
			setting_type = excluded.setting_type,
			description = COALESCE(NULLIF(excluded.description, ''), admin_settings.description),
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		setting.Key,
		setting.Value,
		string(setting.Type),
		setting.Description,
		nullableString(setting.UpdatedBy),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upserting setting: %w", err)
	}
	return nil
}

// SeedDefaults inserts any default settings that are missing.
func (r *SQLiteRepository) SeedDefaults(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO admin_settings (setting_key, setting_value, setting_type, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(setting_key) DO NOTHING`

	for _, s := range Defaults() {
		if _, err := r.db.ExecContext(ctx, query,
			s.Key, s.Value, string(s.Type), s.Description, now, now,
		); err != nil {
			return fmt.Errorf("seeding setting %s: %w", s.Key, err)
		}
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning logic.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSetting scans a settings row into a Setting struct.
func scanSetting(row rowScanner) (*Setting, error) {
	var s Setting
	var settingType string
	var description, updatedBy sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&s.Key, &s.Value, &settingType, &description, &updatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Type = SettingType(settingType)
	s.Description = description.String
	s.UpdatedBy = updatedBy.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &s, nil
}

// nullableString converts an empty string to a SQL NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
