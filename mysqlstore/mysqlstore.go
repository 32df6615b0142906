// Package mysqlstore provides a MySQL/MariaDB session storage
// implementation on top of database/sql.
//
// MySQLStore keeps encoded sessions in the authguard_sessions table. Each
// record has an expiration time, and the store supports periodic cleanup
// of expired sessions. Callers register the driver themselves, usually
// with a blank import of github.com/go-sql-driver/mysql.
package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MySQLStore is a MySQL backed storage for encoded sessions.
type MySQLStore struct {
	db *sql.DB
}

// New creates and returns a new MySQLStore instance.
// If the sessions table doesn't exist it is created.
func New(ctx context.Context, db *sql.DB) (*MySQLStore, error) {
	err := createTable(ctx, db)
	return &MySQLStore{db: db}, err
}

// Get retrieves the data stored under id. Returns the data, a boolean
// indicating whether the id was found and not expired, and an error.
func (s *MySQLStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	stmt := "SELECT data FROM authguard_sessions WHERE id = ? AND UTC_TIMESTAMP(6) < expires_at"
	row := s.db.QueryRowContext(ctx, stmt, id)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set upserts data under id with its expiration time.
func (s *MySQLStore) Set(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	stmt := "INSERT INTO authguard_sessions(id, data, expires_at) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data), expires_at = VALUES(expires_at)"
	_, err := s.db.ExecContext(ctx, stmt, id, data, expiresAt.UTC())
	return err
}

// Delete removes the data stored under id.
func (s *MySQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM authguard_sessions WHERE id = ?", id)
	return err
}

// PeriodicCleanUp runs a loop that periodically deletes expired sessions.
// The cleanup runs every interval until stop is closed or receives a value.
func (s *MySQLStore) PeriodicCleanUp(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-stop:
			return
		}
	}
}

func (s *MySQLStore) deleteExpired() {
	_, err := s.db.Exec("DELETE FROM authguard_sessions WHERE UTC_TIMESTAMP(6) > expires_at")
	if err != nil {
		slog.Error("deleting expired sessions failed", "store", "mysql", "error", err)
	}
}

func createTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS authguard_sessions (
			id CHAR(36) COLLATE utf8mb4_bin PRIMARY KEY,
			data BLOB NOT NULL,
			expires_at TIMESTAMP(6) NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS authguard_sessions_expires_at_idx ON authguard_sessions (expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}
