// Package store defines the persistence contract for per-user medication
// documents and the backends that implement it.
//
// A backend stores exactly one opaque document per user id. Writes replace
// the whole document atomically; there is no partial update.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists for the key.
var ErrNotFound = errors.New("store: document not found")

// Backend is a durable key-value substrate keyed by user id.
type Backend interface {
	// Get returns the document stored for userID or ErrNotFound.
	Get(ctx context.Context, userID string) ([]byte, error)
	// Put replaces the document for userID. It must not return before the
	// document is durable.
	Put(ctx context.Context, userID string, doc []byte) error
	// List returns every user id that has a stored document.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Name reports a short backend identifier for logs.
func Name(b Backend) string {
	if n, ok := b.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}
