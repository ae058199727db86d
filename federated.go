package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FederatedResolver maps a profile id issued by a trusted identity provider
// onto a local identity, creating one on first sight.
//
// Only the stable profile id is trusted. Emails and display names returned by
// the provider are never used to find or merge with an existing identity.
type FederatedResolver struct {
	Store IdentityStore

	// How often a find-or-create that lost a write race is retried. Defaults to 3.
	MaxAttempts int

	Logger *slog.Logger
}

func NewFederatedResolver(store IdentityStore) *FederatedResolver {
	return &FederatedResolver{Store: store}
}

func (f *FederatedResolver) maxAttempts() int {
	if f.MaxAttempts <= 0 {
		return 3
	}
	return f.MaxAttempts
}

func (f *FederatedResolver) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Resolve returns the identity linked to profileID at provider.
func (f *FederatedResolver) Resolve(ctx context.Context, provider, profileID string) (*Identity, error) {
	profileID = strings.TrimSpace(profileID)
	if provider == "" || profileID == "" {
		loginAttemptsTotal.WithLabelValues("federated", "failure").Inc()
		return nil, ErrFederationFailed
	}
	key := FederatedKey(provider, profileID)

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts(); attempt++ {
		identity, created, err := f.Store.FindOrCreateByFederatedID(ctx, key)
		if err == nil {
			if created {
				f.logger().Info("created federated identity", "provider", provider, "identity", identity)
			}
			loginAttemptsTotal.WithLabelValues("federated", "success").Inc()
			return identity, nil
		}
		if !errors.Is(err, ErrConflict) {
			loginAttemptsTotal.WithLabelValues("federated", "error").Inc()
			return nil, fmt.Errorf("failed to resolve federated identity: %w", err)
		}
		f.logger().Debug("federated find-or-create conflict, retrying", "provider", provider, "attempt", attempt)
		lastErr = err
	}
	loginAttemptsTotal.WithLabelValues("federated", "error").Inc()
	return nil, fmt.Errorf("failed to resolve federated identity after %d attempts: %w", f.maxAttempts(), lastErr)
}
