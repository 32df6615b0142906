package authguard

import (
	"context"
	"time"
)

// Store defines the interface for session storage backends.
// A Store is responsible for persisting and retrieving encoded sessions
// by the opaque id carried in the session cookie. Implementations may store
// sessions in memory, databases, caches, or any other durable storage system.
type Store interface {
	// Get retrieves the data associated with the given id.
	// It returns the raw data, a boolean indicating whether the record
	// was found and not expired, and an error if the lookup failed.
	Get(ctx context.Context, id string) (data []byte, found bool, err error)

	// Set stores the data for the given id until the specified expiration
	// time. If a record with the same id already exists, it is overwritten.
	Set(ctx context.Context, id string, data []byte, expiresAt time.Time) error

	// Delete removes the record associated with the given id.
	// It should not return an error if the record does not exist.
	Delete(ctx context.Context, id string) error
}

// SessionStore is the read/write view of the current session handed to the
// guard. Clear turns the session into the absent session.
type SessionStore interface {
	Get(ctx context.Context) (*Session, error)
	Set(ctx context.Context, sess *Session) error
	Clear(ctx context.Context) error
}
