package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// emailPattern is a permissive shape check; real validation happens when
// mail is actually sent.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsValidEmail checks if an email address has a plausible format.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a household member with their own dashboard. Users manage
	// their own devices and layout but cannot touch global settings.
	RoleUser Role = "user"

	// RoleAdmin has full system control: global settings, user accounts,
	// broker profiles. Bypasses nothing dashboard-wise: admins still own
	// only their own device list.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid user roles.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole returns true if the role is a valid role for a user account.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an authenticated account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUsernameExists     = errors.New("auth: username already exists")
	ErrEmailExists        = errors.New("auth: email already exists")
	ErrTokenExpired       = errors.New("auth: token has expired")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrForbidden          = errors.New("auth: insufficient permissions")
	ErrSelfModification   = errors.New("auth: cannot modify own account in this way")
)
