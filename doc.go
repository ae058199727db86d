// Package secrets is a small identity and access layer for a web application.
//
// Visitors register with a username and password or sign in through a
// federated OAuth provider, and can then submit a "secret" while their session
// is valid. Anyone can list the submitted secrets.
//
// # Architecture
//
// IdentityStore: the durable record of identities. An Identity holds a local
// credential (username + bcrypt hash), a provider qualified federated id, or
// both, plus the optional secret.
//
// Authenticator: registers local credentials and verifies passwords. Every
// verification failure is the same ErrAuthFailure, so callers cannot learn
// whether a username exists.
//
// FederatedResolver: turns a provider profile id into an identity with
// find-or-create semantics. The oauth2 package runs the authorization code
// handshake in front of it.
//
// SessionManager: binds opaque tokens to identity ids on top of any scs.Store.
//
// AccessGate: allows or denies protected operations based on the session.
//
// # Basic Usage
//
//	store := fs.NewIdentityStore("/var/lib/secrets")
//	sessions := secrets.NewSessionManager(memstore.New())
//	service := secrets.NewService(store, sessions)
//
//	app := secrets.NewWebApp(service)
//	http.ListenAndServe(":3000", app.Router())
//
// # Store Implementations
//
// Identity stores: stores/memory (single process), stores/fs (JSON files),
// stores/gorm (any GORM database) and stores/gae (Cloud Datastore).
// Session stores: scs memstore, stores/fs, stores/redis and stores/gorm.
//
// The client package is a Go client for the HTTP routes.
//
// # Security
//
// Passwords are hashed with bcrypt. Session tokens are 32 random bytes and a
// new token is minted on every login. Error responses never contain hashes or
// provider tokens.
package secrets
