// Package localstore provides durable client-side key/value storage.
//
// Each front-end writes into its own namespace so that the chat client and the
// admin dashboard never see each other's keys, the same way two browser apps on
// different origins get separate localStorage.
package localstore

import "context"

// Namespaces used by the two front-ends.
const (
	NamespaceChat  = "chat"
	NamespaceAdmin = "admin"
)

// Store is a string key/value store scoped to one namespace.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
