// Package storage persists the two things that must survive a restart: the
// dismissal ledger and the history of fired alerts.
package storage

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evwatch/evwatch/types"
)

// DismissalRecord marks an event id hidden, by user action or auto timeout.
// Occurrence-scoped: reconciliation deletes it once the id leaves the feed.
type DismissalRecord struct {
	EventID   string `gorm:"primaryKey"`
	Source    string // "manual" or "auto"
	CreatedAt time.Time
}

// AlertRecord is one fired alert surface, kept for later review.
type AlertRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EventID   string `gorm:"index"`
	Market    string
	Selection string
	Line      string
	Reference string
	Offered   string
	EVPercent string
	FiredAt   time.Time
	CreatedAt time.Time
}

// Store wraps the database. The in-memory dismissal set is authoritative for
// the session: a failed write degrades durability, never behavior.
type Store struct {
	db      *gorm.DB
	enabled bool

	mu        sync.Mutex
	dismissed map[string]struct{}
}

// Open connects to postgres when databaseURL is set, otherwise to a local
// sqlite file, and loads the persisted dismissal set.
func Open(databaseURL, sqlitePath string) (*Store, error) {
	s := &Store{dismissed: make(map[string]struct{})}

	var dialector gorm.Dialector
	if databaseURL != "" {
		dialector = postgres.Open(databaseURL)
	} else {
		if dir := filepath.Dir(sqlitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Warn().Err(err).Msg("Could not create database directory, running without persistence")
				return s, nil
			}
		}
		dialector = sqlite.Open(sqlitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Database unavailable, dismissals will not survive restart")
		return s, nil
	}
	if err := db.AutoMigrate(&DismissalRecord{}, &AlertRecord{}); err != nil {
		log.Warn().Err(err).Msg("Database migration failed, running without persistence")
		return s, nil
	}

	s.db = db
	s.enabled = true

	var records []DismissalRecord
	if err := db.Find(&records).Error; err != nil {
		log.Warn().Err(err).Msg("Could not load dismissal ledger")
	}
	for _, r := range records {
		s.dismissed[r.EventID] = struct{}{}
	}

	log.Info().Int("dismissed", len(s.dismissed)).Msg("💾 Ledger loaded")
	return s, nil
}

// IsDismissed reports whether the event id is hidden.
func (s *Store) IsDismissed(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dismissed[eventID]
	return ok
}

// Dismiss adds an id to the ledger. Idempotent; the in-memory set takes
// effect immediately, the database write is best-effort.
func (s *Store) Dismiss(eventID, source string) {
	s.mu.Lock()
	if _, ok := s.dismissed[eventID]; ok {
		s.mu.Unlock()
		return
	}
	s.dismissed[eventID] = struct{}{}
	s.mu.Unlock()

	if !s.enabled {
		return
	}
	rec := DismissalRecord{EventID: eventID, Source: source, CreatedAt: time.Now()}
	if err := s.db.Save(&rec).Error; err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to persist dismissal")
	}
}

// Reconcile drops dismissed ids the server no longer reports, so a later
// fresh alert for the same fixture id can display again. Runs once per poll,
// before filtering.
func (s *Store) Reconcile(active map[string]struct{}) {
	s.mu.Lock()
	var stale []string
	for id := range s.dismissed {
		if _, ok := active[id]; !ok {
			stale = append(stale, id)
			delete(s.dismissed, id)
		}
	}
	s.mu.Unlock()

	if len(stale) == 0 || !s.enabled {
		return
	}
	if err := s.db.Delete(&DismissalRecord{}, "event_id IN ?", stale).Error; err != nil {
		log.Warn().Err(err).Msg("Failed to expire dismissal records")
	}
}

// LogAlert records a fired alert surface.
func (s *Store) LogAlert(p types.AlertPayload) {
	if !s.enabled {
		return
	}
	rec := AlertRecord{
		EventID:   p.EventID,
		Market:    p.Key.Market,
		Selection: p.Key.Selection,
		Line:      p.Key.Line,
		Reference: p.Reference,
		Offered:   p.Offered,
		EVPercent: p.EVPercent,
		FiredAt:   p.FiredAt,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		log.Warn().Err(err).Str("event_id", p.EventID).Msg("Failed to log alert")
	}
}

// RecentAlerts returns the last n fired alerts, newest first.
func (s *Store) RecentAlerts(n int) ([]AlertRecord, error) {
	if !s.enabled {
		return nil, nil
	}
	var records []AlertRecord
	err := s.db.Order("fired_at DESC").Limit(n).Find(&records).Error
	return records, err
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if !s.enabled {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
