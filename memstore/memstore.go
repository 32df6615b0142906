// Package memstore provides an in-memory session storage implementation.
//
// Memstore keeps encoded sessions keyed by the id carried in the session
// cookie. Each record has an expiration time, and the store supports
// periodic cleanup of expired sessions.
//
// This package is suitable for single-process deployments or testing
// scenarios. It is not persistent and does not share state across
// processes.
package memstore

import (
	"context"
	"sync"
	"time"
)

// Memstore is an in-memory storage for encoded sessions.
// It is safe for concurrent use by multiple goroutines.
type Memstore struct {
	sessions sync.Map
}

// record is stored by pointer so expired entries can be removed with
// CompareAndDelete without racing a concurrent Set.
type record struct {
	expiresAt time.Time
	data      []byte
}

// New creates and returns a new Memstore instance.
func New() *Memstore {
	return &Memstore{}
}

// Get retrieves the data stored under id. Expired records are deleted and
// reported as not found.
func (m *Memstore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	r, ok := m.sessions.Load(id)
	if !ok {
		return nil, false, nil
	}

	rec := r.(*record)
	if time.Now().After(rec.expiresAt) {
		m.sessions.CompareAndDelete(id, r)
		return nil, false, nil
	}

	return rec.data, true, nil
}

// Set stores data under id until expiresAt, overwriting any previous
// record.
func (m *Memstore) Set(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	m.sessions.Store(id, &record{expiresAt: expiresAt, data: data})
	return nil
}

// Delete removes the record stored under id. Unknown ids are a no-op.
func (m *Memstore) Delete(ctx context.Context, id string) error {
	m.sessions.Delete(id)
	return nil
}

// Count returns the number of records held, expired ones included.
func (m *Memstore) Count() int {
	var n int
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// PeriodicCleanUp runs a loop that periodically deletes expired sessions.
// The cleanup runs every interval until stop is closed or receives a value.
//
// Example usage:
//
//	stop := make(chan struct{})
//	go store.PeriodicCleanUp(time.Minute, stop)
//	...
//	close(stop) // stop the cleanup
func (m *Memstore) PeriodicCleanUp(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.deleteExpired()
		case <-stop:
			return
		}
	}
}

func (m *Memstore) deleteExpired() {
	now := time.Now()
	m.sessions.Range(func(key, value any) bool {
		if now.After(value.(*record).expiresAt) {
			m.sessions.CompareAndDelete(key, value)
		}
		return true
	})
}
