package secrets

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistrationPolicyValidate(t *testing.T) {
	tests := []struct {
		name      string
		policy    RegistrationPolicy
		creds     Credentials
		wantCode  string
		wantField string
	}{
		{"Valid", DefaultRegistrationPolicy(), Credentials{"alice", "p@ss1"}, "", ""},
		{"EmptyUsername", DefaultRegistrationPolicy(), Credentials{"", "p@ss1"}, ErrCodeMissingField, "username"},
		{"WhitespaceUsername", DefaultRegistrationPolicy(), Credentials{"   ", "p@ss1"}, ErrCodeMissingField, "username"},
		{"EmptyPassword", DefaultRegistrationPolicy(), Credentials{"alice", ""}, ErrCodeMissingField, "password"},
		{"LongestUsername", DefaultRegistrationPolicy(), Credentials{strings.Repeat("a", MaxUsernameLength), "p@ss1"}, "", ""},
		{"UsernameTooLong", DefaultRegistrationPolicy(), Credentials{strings.Repeat("a", MaxUsernameLength+1), "p@ss1"}, ErrCodeInvalidUsername, "username"},
		{"StrictValid", PolicyStrict, Credentials{"alice_01", "longenough"}, "", ""},
		{"StrictBadUsername", PolicyStrict, Credentials{"a b", "longenough"}, ErrCodeInvalidUsername, "username"},
		{"StrictShortUsername", PolicyStrict, Credentials{"al", "longenough"}, ErrCodeInvalidUsername, "username"},
		{"StrictShortPassword", PolicyStrict, Credentials{"alice", "short"}, ErrCodeWeakPassword, "password"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			creds := tc.creds
			err := tc.policy.Validate(creds.Normalize())
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("Expected valid, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected %s error", tc.wantCode)
			}
			if err.Code != tc.wantCode {
				t.Errorf("Expected code %s, got %s", tc.wantCode, err.Code)
			}
			if err.Field != tc.wantField {
				t.Errorf("Expected field %s, got %s", tc.wantField, err.Field)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Error("Expected error to unwrap to ErrInvalidInput")
			}
		})
	}
}

func TestCredentialsNormalize(t *testing.T) {
	creds := (&Credentials{Username: "  alice ", Password: " secret "}).Normalize()
	if creds.Username != "alice" {
		t.Errorf("Expected username to be trimmed, got %q", creds.Username)
	}
	if creds.Password != " secret " {
		t.Errorf("Expected password to be kept as typed, got %q", creds.Password)
	}
}

func TestAsAuthError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"Duplicate", ErrDuplicateIdentity, 409, ErrCodeUsernameTaken},
		{"AuthFailure", ErrAuthFailure, 401, ErrCodeInvalidCreds},
		{"Unauthenticated", ErrUnauthenticated, 401, ErrCodeUnauthenticated},
		{"Invalid", invalidInput(ErrCodeWeakPassword, "too short", "password"), 400, ErrCodeWeakPassword},
		{"StoreFailure", errors.New("dial tcp 10.0.0.1:5432: connection refused"), 500, ErrCodeServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			authErr, status := asAuthError(tc.err)
			if status != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, status)
			}
			if authErr.Code != tc.wantCode {
				t.Errorf("Expected code %s, got %s", tc.wantCode, authErr.Code)
			}
			if strings.Contains(authErr.Message, "10.0.0.1") {
				t.Errorf("Internal error details leaked: %q", authErr.Message)
			}
		})
	}
}
