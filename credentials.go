package secrets

import (
	"fmt"
	"regexp"
	"strings"
)

// Credentials represents a username/password pair for registration or login
type Credentials struct {
	Username string
	Password string
}

// Normalize trims surrounding whitespace from the username. Passwords are
// taken as typed.
func (c *Credentials) Normalize() *Credentials {
	c.Username = strings.TrimSpace(c.Username)
	return c
}

// MaxUsernameLength bounds usernames in bytes, whatever the policy. Stores
// index by username, so it must fit a database column and a filename.
const MaxUsernameLength = 128

// RegistrationPolicy defines what a registration must provide.
// The zero value only requires a non-empty username and password.
type RegistrationPolicy struct {
	// MinPasswordLength is not enforced when zero
	MinPasswordLength int

	// UsernamePattern, if set, must match the whole username
	UsernamePattern *regexp.Regexp
}

// DefaultRegistrationPolicy accepts any non-empty username and password
func DefaultRegistrationPolicy() RegistrationPolicy {
	return RegistrationPolicy{}
}

// PolicyStrict is a preset for deployments that want handle-like usernames
// and non-trivial passwords.
var PolicyStrict = RegistrationPolicy{
	MinPasswordLength: 8,
	UsernamePattern:   regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`),
}

// Validate checks creds against the policy. The returned error unwraps to
// ErrInvalidInput.
func (p RegistrationPolicy) Validate(creds *Credentials) *AuthError {
	if creds.Username == "" {
		return invalidInput(ErrCodeMissingField, "Username is required", "username")
	}
	if len(creds.Username) > MaxUsernameLength {
		return invalidInput(ErrCodeInvalidUsername, "Username is too long", "username")
	}
	if creds.Password == "" {
		return invalidInput(ErrCodeMissingField, "Password is required", "password")
	}
	if p.UsernamePattern != nil && !p.UsernamePattern.MatchString(creds.Username) {
		return invalidInput(ErrCodeInvalidUsername, "Username has an invalid format", "username")
	}
	if p.MinPasswordLength > 0 && len(creds.Password) < p.MinPasswordLength {
		return invalidInput(ErrCodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", p.MinPasswordLength), "password")
	}
	return nil
}

func invalidInput(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field, Err: ErrInvalidInput}
}
