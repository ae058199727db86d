//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the identity store and
// of an scs session store. It supports any database that GORM supports
// (PostgreSQL, MySQL, SQLite, etc.).
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - identities: one row per identity, with unique indexes on username and
//     federated_id (both nullable, so absent values never collide)
//   - sessions: session token, encoded session data and expiry
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	identityStore := gormstore.NewIdentityStore(db)
//	sessionStore := gormstore.NewSessionStore(db)
package gorm
