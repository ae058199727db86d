//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of the
// identity store. It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - Identity: the identity record, keyed by its id
//   - Username: keyed by username, points at the identity holding it
//   - FederatedID: keyed by provider qualified id, points at the linked identity
//
// The Username and FederatedID entities are written in the same transaction
// as the identity, which is what keeps both unique.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	identityStore := gae.NewIdentityStore(client, "")  // default namespace
package gae
