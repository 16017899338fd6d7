// Package store implements the local play-history store on SQLite.
//
// The store is the source of truth on each device. Reads fail soft: a
// missing or undecodable row never surfaces an error to the caller, matching
// the rule that local data problems must not take the app down. Every
// successful mutation signals the registered [Notifier] so the sync engine
// can schedule a best-effort push.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"vinylog/internal/models"
	"vinylog/internal/shared"
)

const (
	statsKey    = "cartridge_stats"
	lastSyncKey = "last_sync"
)

// DefaultSyncThreshold is how stale the last sync may be before NeedsSync
// reports true.
const DefaultSyncThreshold = 5 * time.Minute

// Notifier receives a signal after every successful local mutation.
//
// Implementations must not block; the store treats the call as
// fire-and-forget and a sync failure is never fatal to the local write.
type Notifier interface {
	DataChanged()
}

// NopNotifier is the default Notifier; it ignores all signals.
type NopNotifier struct{}

func (NopNotifier) DataChanged() {}

// Store persists play history and cartridge stats.
type Store struct {
	db       *sql.DB
	logger   *log.Logger
	notifier Notifier
}

// New creates a Store over an open database.
//
// The logger defaults to a stderr logger; the notifier defaults to
// [NopNotifier] and is usually replaced via [Store.SetNotifier] once the
// sync engine exists.
func New(db *sql.DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Store{db: db, logger: logger, notifier: NopNotifier{}}
}

// SetNotifier registers the sync trigger invoked after each mutation.
func (s *Store) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	s.notifier = n
}

// LoadPlayHistory returns the persisted play history, newest first.
//
// Returns an empty slice when nothing is stored; rows that fail to scan are
// skipped and logged rather than failing the whole read.
func (s *Store) LoadPlayHistory() []models.Play {
	rows, err := s.db.Query(`
		SELECT id, title, artist, year, cover_url, discogs_url, date_listened
		FROM plays
		ORDER BY position ASC
	`)
	if err != nil {
		s.logger.Errorf("failed to load play history: %v", err)
		return []models.Play{}
	}
	defer rows.Close()

	history := []models.Play{}
	for rows.Next() {
		var play models.Play
		if err := rows.Scan(&play.ID, &play.Title, &play.Artist, &play.Year, &play.CoverURL, &play.DiscogsURL, &play.DateListened); err != nil {
			s.logger.Errorf("skipping unreadable play row: %v", err)
			continue
		}
		history = append(history, play)
	}

	if err := rows.Err(); err != nil {
		s.logger.Errorf("play history iteration error: %v", err)
	}

	return history
}

// SavePlayHistory replaces the persisted history wholesale.
//
// Total replacement inside one transaction; there is no partial update.
func (s *Store) SavePlayHistory(history []models.Play) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM plays`); err != nil {
		return fmt.Errorf("%w: clear plays: %v", shared.ErrStorage, err)
	}

	for i, play := range history {
		if err := play.Validate(); err != nil {
			return fmt.Errorf("%w: play %d: %v", shared.ErrStorage, i, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO plays (id, position, title, artist, year, cover_url, discogs_url, date_listened)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, play.ID, i, play.Title, play.Artist, play.Year, play.CoverURL, play.DiscogsURL, play.DateListened); err != nil {
			return fmt.Errorf("%w: insert play %s: %v", shared.ErrStorage, play.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", shared.ErrStorage, err)
	}

	return nil
}

// AddPlay assigns a fresh id to the given play data, prepends it to the
// history, increments the aggregate count and signals the sync engine.
func (s *Store) AddPlay(data models.Play) (models.Play, error) {
	play := data
	play.ID = shared.NewPlayID()

	if err := play.Validate(); err != nil {
		return models.Play{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return models.Play{}, fmt.Errorf("%w: begin: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	// Prepend: new plays take a position before the current minimum.
	if _, err := tx.Exec(`
		INSERT INTO plays (id, position, title, artist, year, cover_url, discogs_url, date_listened)
		VALUES (?, (SELECT COALESCE(MIN(position), 1) - 1 FROM plays), ?, ?, ?, ?, ?, ?)
	`, play.ID, play.Title, play.Artist, play.Year, play.CoverURL, play.DiscogsURL, play.DateListened); err != nil {
		return models.Play{}, fmt.Errorf("%w: insert play: %v", shared.ErrStorage, err)
	}

	stats := s.loadStatsTx(tx)
	stats.TotalPlays++
	if err := s.saveStatsTx(tx, stats); err != nil {
		return models.Play{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Play{}, fmt.Errorf("%w: commit: %v", shared.ErrStorage, err)
	}

	s.notifier.DataChanged()
	return play, nil
}

// DeletePlay removes the play with the given id if present.
//
// Decrements TotalPlays floored at zero. An unknown id is a silent no-op
// and does not trigger a sync.
func (s *Store) DeletePlay(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM plays WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete play: %v", shared.ErrStorage, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", shared.ErrStorage, err)
	}
	if affected == 0 {
		return nil
	}

	stats := s.loadStatsTx(tx)
	if stats.TotalPlays > 0 {
		stats.TotalPlays--
	}
	if err := s.saveStatsTx(tx, stats); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", shared.ErrStorage, err)
	}

	s.notifier.DataChanged()
	return nil
}

// ClearAllData resets the history to empty and the stats to zero.
func (s *Store) ClearAllData() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM plays`); err != nil {
		return fmt.Errorf("%w: clear plays: %v", shared.ErrStorage, err)
	}
	if err := s.saveStatsTx(tx, models.CartridgeStats{}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", shared.ErrStorage, err)
	}

	s.notifier.DataChanged()
	return nil
}

// Stats returns the persisted cartridge stats, zero-valued when absent.
func (s *Store) Stats() models.CartridgeStats {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM app_state WHERE key = ?`, statsKey).Scan(&raw)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Errorf("failed to load cartridge stats: %v", err)
		}
		return models.CartridgeStats{}
	}

	var stats models.CartridgeStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		s.logger.Errorf("failed to decode cartridge stats: %v", err)
		return models.CartridgeStats{}
	}
	return stats
}

// SaveStats overwrites the persisted cartridge stats.
func (s *Store) SaveStats(stats models.CartridgeStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("%w: encode stats: %v", shared.ErrStorage, err)
	}
	if _, err := s.db.Exec(`
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, statsKey, string(raw)); err != nil {
		return fmt.Errorf("%w: save stats: %v", shared.ErrStorage, err)
	}
	return nil
}

// LastSync returns the timestamp of the last successful sync, zero when never synced.
func (s *Store) LastSync() time.Time {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM app_state WHERE key = ?`, lastSyncKey).Scan(&raw)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Errorf("failed to load last sync: %v", err)
		}
		return time.Time{}
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Errorf("failed to parse last sync timestamp: %v", err)
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SetLastSync records when a sync last completed.
func (s *Store) SetLastSync(t time.Time) error {
	if _, err := s.db.Exec(`
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, lastSyncKey, strconv.FormatInt(t.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("%w: save last sync: %v", shared.ErrStorage, err)
	}
	return nil
}

// NeedsSync reports whether the last sync is older than the threshold.
func (s *Store) NeedsSync(threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultSyncThreshold
	}
	return time.Since(s.LastSync()) > threshold
}

func (s *Store) loadStatsTx(tx *sql.Tx) models.CartridgeStats {
	var raw string
	err := tx.QueryRow(`SELECT value FROM app_state WHERE key = ?`, statsKey).Scan(&raw)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Errorf("failed to load cartridge stats: %v", err)
		}
		return models.CartridgeStats{}
	}

	var stats models.CartridgeStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		s.logger.Errorf("failed to decode cartridge stats: %v", err)
		return models.CartridgeStats{}
	}
	return stats
}

func (s *Store) saveStatsTx(tx *sql.Tx, stats models.CartridgeStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("%w: encode stats: %v", shared.ErrStorage, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, statsKey, string(raw)); err != nil {
		return fmt.Errorf("%w: save stats: %v", shared.ErrStorage, err)
	}
	return nil
}
