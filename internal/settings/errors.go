package settings

import "errors"

// Domain errors for the settings package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, settings.ErrSettingNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSettingNotFound is returned when a setting key does not exist.
	ErrSettingNotFound = errors.New("settings: not found")

	// ErrInvalidKey is returned when a setting key is empty.
	ErrInvalidKey = errors.New("settings: invalid key")

	// ErrBrokerNotFound is returned when a broker profile does not exist.
	ErrBrokerNotFound = errors.New("settings: broker profile not found")

	// ErrInvalidBroker is returned when a broker profile is missing
	// required fields.
	ErrInvalidBroker = errors.New("settings: invalid broker profile")

	// ErrBrokerActive is returned when deleting the active broker profile.
	ErrBrokerActive = errors.New("settings: cannot delete active broker profile")
)
