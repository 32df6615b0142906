// Package gormstore provides a gorm session storage implementation.
//
// GORMStore keeps encoded sessions in the authguard_sessions table of any
// database gorm supports. Each record has an expiration time, and the store
// supports periodic cleanup of expired sessions.
package gormstore

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMStore is a gorm backed storage for encoded sessions.
type GORMStore struct {
	db *gorm.DB
}

type session struct {
	ID        string `gorm:"primaryKey;type:char(36)"`
	Data      []byte
	ExpiresAt time.Time `gorm:"index"`
}

func (session) TableName() string {
	return "authguard_sessions"
}

// New creates and returns a new GORMStore instance.
// If the sessions table doesn't exist it is created.
func New(db *gorm.DB) (*GORMStore, error) {
	s := &GORMStore{db: db}
	return s, db.AutoMigrate(&session{})
}

// Get retrieves the data stored under id. Returns the data, a boolean
// indicating whether the id was found and not expired, and an error.
func (s *GORMStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	sess := &session{}
	tx := s.db.WithContext(ctx).
		Where("id = ? AND expires_at >= ?", id, time.Now()).
		Limit(1).
		Find(sess)
	if tx.Error != nil || tx.RowsAffected == 0 {
		return nil, false, tx.Error
	}

	return sess.Data, true, nil
}

// Set upserts data under id with its expiration time.
func (s *GORMStore) Set(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	sess := &session{ID: id, Data: data, ExpiresAt: expiresAt}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "expires_at"}),
		}).
		Create(sess).Error
}

// Delete removes the data stored under id.
func (s *GORMStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&session{}, "id = ?", id).Error
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
func (s *GORMStore) PeriodicCleanUp(interval time.Duration, stop <-chan struct{}) {
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

func (s *GORMStore) deleteExpired() {
	tx := s.db.Delete(&session{}, "expires_at < ?", time.Now())
	if tx.Error != nil {
		slog.Error("deleting expired sessions failed", "store", "gorm", "error", tx.Error)
	}
}
