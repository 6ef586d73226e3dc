package settings

import "time"

// SettingType identifies how a setting's stored string should be interpreted.
type SettingType string

// Valid setting types.
const (
	TypeString  SettingType = "string"
	TypeNumber  SettingType = "number"
	TypeBoolean SettingType = "boolean"
	TypeJSON    SettingType = "json"
)

// Well-known setting keys.
const (
	// KeySensorTimeout is the global sensor timeout in seconds. A device
	// that has not published within this window is marked offline.
	KeySensorTimeout = "global_sensor_timeout"

	// KeyAllowRegistration controls whether new user accounts can be
	// created through the public registration endpoint.
	KeyAllowRegistration = "allow_registration"
)

// Sensor timeout bounds in seconds. Values outside this range are clamped.
const (
	MinSensorTimeoutSeconds     = 1
	MaxSensorTimeoutSeconds     = 3600
	DefaultSensorTimeoutSeconds = 60
)

// Setting is a single global admin setting.
type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Description string      `json:"description,omitempty"`
	UpdatedBy   string      `json:"updated_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Defaults returns the settings seeded on first run.
func Defaults() []Setting {
	return []Setting{
		{
			Key:         KeySensorTimeout,
			Value:       "60",
			Type:        TypeNumber,
			Description: "Seconds without a message before a sensor is marked offline",
		},
		{
			Key:         KeyAllowRegistration,
			Value:       "false",
			Type:        TypeBoolean,
			Description: "Allow new accounts via the registration endpoint",
		},
	}
}
