package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BrokerProfile is a named MQTT broker configuration. At most one profile
// is active at a time; the active profile is what the admin API reports
// as the current broker. Connection lifecycle stays config-file driven,
// profiles are bookkeeping for the admin UI.
type BrokerProfile struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"-"` // never serialised
	UseSSL    bool      `json:"use_ssl"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BrokerRepository defines the interface for broker profile persistence.
type BrokerRepository interface {
	// List retrieves all profiles ordered by name.
	List(ctx context.Context) ([]BrokerProfile, error)

	// GetActive returns the active profile, or ErrBrokerNotFound if no
	// profile is marked active.
	GetActive(ctx context.Context) (*BrokerProfile, error)

	// Create inserts a new profile and sets its generated ID.
	Create(ctx context.Context, profile *BrokerProfile) error

	// SetActive marks one profile active and deactivates the rest.
	SetActive(ctx context.Context, id int64) error

	// Delete removes a profile. The active profile cannot be deleted.
	Delete(ctx context.Context, id int64) error
}

// SQLiteBrokerRepository implements BrokerRepository using SQLite.
type SQLiteBrokerRepository struct {
	db *sql.DB
}

// NewBrokerRepository creates a new SQLite-backed broker repository.
func NewBrokerRepository(db *sql.DB) *SQLiteBrokerRepository {
	return &SQLiteBrokerRepository{db: db}
}

const brokerColumns = "id, name, host, port, username, password, use_ssl, is_active, created_at, updated_at"

// List retrieves all profiles ordered by name.
func (r *SQLiteBrokerRepository) List(ctx context.Context) ([]BrokerProfile, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+brokerColumns+" FROM mqtt_config ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying broker profiles: %w", err)
	}
	defer rows.Close()

	var profiles []BrokerProfile
	for rows.Next() {
		p, err := scanBroker(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning broker profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating broker profiles: %w", err)
	}

	if profiles == nil {
		profiles = []BrokerProfile{}
	}
	return profiles, nil
}

// GetActive returns the active profile.
func (r *SQLiteBrokerRepository) GetActive(ctx context.Context) (*BrokerProfile, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+brokerColumns+" FROM mqtt_config WHERE is_active = 1 LIMIT 1")
	p, err := scanBroker(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBrokerNotFound
		}
		return nil, fmt.Errorf("querying active broker: %w", err)
	}
	return p, nil
}

// Create inserts a new profile.
func (r *SQLiteBrokerRepository) Create(ctx context.Context, profile *BrokerProfile) error {
	if profile.Name == "" || profile.Host == "" {
		return ErrInvalidBroker
	}
	if profile.Port == 0 {
		profile.Port = 1883
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO mqtt_config (name, host, port, username, password, use_ssl, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.Name, profile.Host, profile.Port,
		nullableString(profile.Username), nullableString(profile.Password),
		boolToInt(profile.UseSSL), boolToInt(profile.IsActive), now, now,
	)
	if err != nil {
		return fmt.Errorf("creating broker profile: %w", err)
	}

	profile.ID, _ = result.LastInsertId() //nolint:errcheck // always succeeds on SQLite
	return nil
}

// SetActive marks one profile active and deactivates the rest in a
// single transaction.
func (r *SQLiteBrokerRepository) SetActive(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting activation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx,
		"UPDATE mqtt_config SET is_active = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("activating broker profile: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrBrokerNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE mqtt_config SET is_active = 0 WHERE id != ?", id); err != nil {
		return fmt.Errorf("deactivating other profiles: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing activation: %w", err)
	}
	return nil
}

// Delete removes a profile.
func (r *SQLiteBrokerRepository) Delete(ctx context.Context, id int64) error {
	var active int
	err := r.db.QueryRowContext(ctx,
		"SELECT is_active FROM mqtt_config WHERE id = ?", id).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBrokerNotFound
		}
		return fmt.Errorf("checking broker profile: %w", err)
	}
	if active == 1 {
		return ErrBrokerActive
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM mqtt_config WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting broker profile: %w", err)
	}
	return nil
}

// scanBroker scans a broker row from any scanner (Row or Rows).
func scanBroker(row rowScanner) (*BrokerProfile, error) {
	var p BrokerProfile
	var username, password sql.NullString
	var useSSL, isActive int
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &p.Host, &p.Port,
		&username, &password, &useSSL, &isActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.Username = username.String
	p.Password = password.String
	p.UseSSL = useSSL == 1
	p.IsActive = isActive == 1
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &p, nil
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
