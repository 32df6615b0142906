// Package pgstore provides a PostgreSQL session storage implementation
// on top of pgx.
//
// PGStore keeps encoded sessions in the authguard_sessions table. Each
// record has an expiration time, and the store supports periodic cleanup
// of expired sessions.
package pgstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is a PostgreSQL backed storage for encoded sessions.
type PGStore struct {
	db DB
}

// New creates and returns a new PGStore instance.
// If the sessions table doesn't exist it is created.
func New(ctx context.Context, db DB) (*PGStore, error) {
	if err := createTable(ctx, db); err != nil {
		return nil, err
	}
	return &PGStore{db: db}, nil
}

// Get retrieves the data stored under id. Returns the data, a boolean
// indicating whether the id was found and not expired, and an error.
func (s *PGStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		"SELECT data FROM authguard_sessions WHERE id = $1 AND expires_at > now()",
		id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, oops.Code("pgstore_get").With("session_id", id).Wrap(err)
	}
	return data, true, nil
}

// Set upserts data under id with its expiration time.
func (s *PGStore) Set(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO authguard_sessions (id, data, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
		id, data, expiresAt,
	)
	return oops.Code("pgstore_set").With("session_id", id).Wrap(err)
}

// Delete removes the data stored under id.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, "DELETE FROM authguard_sessions WHERE id = $1", id)
	return oops.Code("pgstore_delete").With("session_id", id).Wrap(err)
}

// PeriodicCleanUp runs a loop that periodically deletes expired sessions.
// The cleanup runs every interval until stop is closed or receives a value.
func (s *PGStore) PeriodicCleanUp(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deleteExpired(context.Background())
		case <-stop:
			return
		}
	}
}

func (s *PGStore) deleteExpired(ctx context.Context) {
	_, err := s.db.Exec(ctx, "DELETE FROM authguard_sessions WHERE expires_at <= now()")
	if err != nil {
		slog.ErrorContext(ctx, "deleting expired sessions failed", "store", "postgres", "error", err)
	}
}

func createTable(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS authguard_sessions (
		id TEXT PRIMARY KEY,
		data BYTEA NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return oops.Code("pgstore_migrate").Wrapf(err, "failed to create table")
	}

	_, err = db.Exec(ctx, `CREATE INDEX IF NOT EXISTS authguard_sessions_expires_at_idx ON authguard_sessions (expires_at)`)
	if err != nil {
		return oops.Code("pgstore_migrate").Wrapf(err, "failed to create index")
	}
	return nil
}
