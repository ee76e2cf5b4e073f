// Package store keeps the history of video events in SQLite.
package store

import (
	"context"
	"encoding/json"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"videoevents/segment"
)

var ErrUnknownEvent = errors.New("unknown video event")

// VideoEvent is one row of the video_events table.
type VideoEvent struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	Reference    string `gorm:"uniqueIndex;not null" json:"reference"`
	Label        string `json:"label"`
	StartMs      int64  `gorm:"index" json:"start_ms"`
	LastUpdateMs int64  `json:"last_update_ms"`
	Updates      int    `json:"updates"`
	Payload      string `json:"payload"`
}

// Store records video events and implements report.Reporter.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at dsn. Use ":memory:" for a
// throwaway database.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening event store %q", dsn)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite doesn't like concurrent writers, and each :memory: connection is its own db
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&VideoEvent{}); err != nil {
		return nil, errors.Wrap(err, "migrating event store")
	}
	return &Store{db: db}, nil
}

func (s *Store) StartVideoEvent(ctx context.Context, ev segment.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return errors.Wrap(err, "encoding payload")
	}
	row := VideoEvent{
		Reference:    ev.Reference,
		Label:        ev.Label,
		StartMs:      ev.Start,
		LastUpdateMs: ev.LastUpdate,
		Payload:      string(payload),
	}
	return errors.Wrapf(s.db.WithContext(ctx).Create(&row).Error, "recording %s", ev.Reference)
}

func (s *Store) UpdateVideoEvent(ctx context.Context, ev segment.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return errors.Wrap(err, "encoding payload")
	}
	res := s.db.WithContext(ctx).Model(&VideoEvent{}).
		Where("reference = ?", ev.Reference).
		Updates(map[string]interface{}{
			"last_update_ms": ev.LastUpdate,
			"payload":        string(payload),
			"updates":        gorm.Expr("updates + ?", 1),
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "updating %s", ev.Reference)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrUnknownEvent, "updating %s", ev.Reference)
	}
	return nil
}

// Get returns the event recorded under reference.
func (s *Store) Get(ctx context.Context, reference string) (VideoEvent, error) {
	var row VideoEvent
	err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, errors.Wrapf(ErrUnknownEvent, "%s", reference)
	}
	return row, err
}

// List returns up to limit events, most recent first. limit <= 0 means 100.
func (s *Store) List(ctx context.Context, limit int) ([]VideoEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []VideoEvent
	err := s.db.WithContext(ctx).Order("start_ms desc").Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
