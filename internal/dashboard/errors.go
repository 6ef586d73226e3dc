package dashboard

import "errors"

// Sentinel errors for dashboard operations.
// Use errors.Is to check for these conditions.
var (
	// ErrDeviceNotFound indicates the requested device does not exist.
	ErrDeviceNotFound = errors.New("dashboard: device not found")

	// ErrInvalidDevice indicates a device spec is missing required fields.
	ErrInvalidDevice = errors.New("dashboard: invalid device")

	// ErrConfigNotFound indicates no saved dashboard exists for the user.
	ErrConfigNotFound = errors.New("dashboard: config not found")

	// ErrSaveFailed indicates the snapshot could not be persisted.
	// In-memory state is retained; the caller should warn the user that
	// the change may not survive a reload.
	ErrSaveFailed = errors.New("dashboard: save failed")
)
