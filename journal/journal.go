// Package journal keeps a sqlite record of data sessions: dial results,
// hangups, status checks and clock synchronizations.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"i4.energy/across/celldial/modem"
)

// Entry is one journaled session event.
type Entry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Kind        string    `gorm:"index;size:16" json:"kind"`
	Time        time.Time `gorm:"column:occurred_at;index" json:"time"`
	APN         string    `gorm:"size:64" json:"apn,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	OK          bool      `json:"ok"`
	Address     string    `gorm:"size:64" json:"address,omitempty"`
	NetworkTime time.Time `json:"network_time,omitzero"`
	Error       string    `json:"error,omitempty"`
}

// Store writes journal entries. It implements modem.Observer.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open opens or creates the journal database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	log.Info("Journal opened", "path", path)
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Add stores an entry.
func (s *Store) Add(ctx context.Context, e *Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to save journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first, optionally filtered by
// kind.
func (s *Store) Recent(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := s.db.WithContext(ctx).Model(&Entry{})
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var entries []Entry
	if err := query.Order("occurred_at DESC").Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	return entries, nil
}

// Observe journals session level events. Per command and mode events are
// left to metrics.
func (s *Store) Observe(e modem.Event) {
	switch e.Kind {
	case modem.EventDialResult, modem.EventHangup, modem.EventPPPStatus, modem.EventTimeSync:
	default:
		return
	}

	entry := &Entry{
		Kind:        string(e.Kind),
		Time:        e.Time,
		APN:         e.APN,
		Attempt:     e.Attempt,
		OK:          e.OK,
		Address:     e.Address,
		NetworkTime: e.Network,
		Error:       e.Error,
	}
	if err := s.Add(context.Background(), entry); err != nil {
		s.log.Error("Failed to journal event", "kind", e.Kind, "error", err)
	}
}
