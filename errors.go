package secrets

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput is returned when registration data is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateIdentity is returned when a username already has a local credential.
	ErrDuplicateIdentity = errors.New("identity already exists")

	// ErrAuthFailure is the single failure returned by credential verification.
	// It never says whether the username existed.
	ErrAuthFailure = errors.New("invalid credentials")

	// ErrUnauthenticated is returned when a session token is missing, unknown or expired.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrFederationFailed is returned when a federated handshake was denied
	// or produced no usable profile id.
	ErrFederationFailed = errors.New("federated login failed")

	// ErrNotFound is returned by stores when no identity matches.
	ErrNotFound = errors.New("identity not found")

	// ErrConflict is returned by stores when a find-or-create lost a write race
	// and the winning record is not yet visible. Callers may retry.
	ErrConflict = errors.New("identity write conflict")
)

// Error codes used in JSON error bodies
const (
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeUsernameTaken   = "username_taken"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeUnauthenticated = "unauthenticated"
	ErrCodeServerError     = "server_error"
)

// AuthError is a user facing error with a machine readable code and the form
// field it relates to.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`

	// Err is the sentinel this error reports, used by errors.Is.
	Err error `json:"-"`
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// asAuthError maps any error from the core onto the user facing shape and the
// HTTP status it should be answered with. Unknown errors become a generic
// server error so nothing internal leaks to the client.
func asAuthError(err error) (*AuthError, int) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, statusFor(authErr.Err)
	}
	switch {
	case errors.Is(err, ErrDuplicateIdentity):
		return &AuthError{Code: ErrCodeUsernameTaken, Message: "Username is already taken", Field: "username", Err: err}, http.StatusConflict
	case errors.Is(err, ErrAuthFailure):
		return &AuthError{Code: ErrCodeInvalidCreds, Message: "Invalid credentials", Field: "password", Err: err}, http.StatusUnauthorized
	case errors.Is(err, ErrUnauthenticated):
		return &AuthError{Code: ErrCodeUnauthenticated, Message: "Login required", Err: err}, http.StatusUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return &AuthError{Code: ErrCodeMissingField, Message: "Invalid input", Err: err}, http.StatusBadRequest
	}
	return &AuthError{Code: ErrCodeServerError, Message: "Internal server error", Err: err}, http.StatusInternalServerError
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateIdentity):
		return http.StatusConflict
	case errors.Is(err, ErrAuthFailure), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
