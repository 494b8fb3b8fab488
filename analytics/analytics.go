// Package analytics persists best-effort usage counters and the round
// archive. Every write here is fire-and-forget: failures are logged and
// swallowed so they never block a room operation.
package analytics

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pointdeck/pointdeck/models"
)

// Counter names
const (
	CounterRoomsCreated    = "rooms_created"
	CounterParticipants    = "participants_joined"
	CounterVotesCast       = "votes_cast"
	CounterRoundsCompleted = "rounds_completed"
	CounterRoomsClosed     = "rooms_closed"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	slog.Info("analytics database ready", "path", dbPath)
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS round_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_code TEXT NOT NULL,
		ticket TEXT NOT NULL DEFAULT '',
		votes TEXT NOT NULL,
		average REAL,
		outcome TEXT NOT NULL DEFAULT '',
		completed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_round_archive_room_code ON round_archive(room_code);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Increment adds one to a named counter.
func (s *Store) Increment(name string) error {
	_, err := s.db.Exec(`
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`,
		name,
	)
	return err
}

// Bump increments a counter in the background. Safe on a nil store.
func (s *Store) Bump(name string) {
	if s == nil {
		return
	}
	go func() {
		if err := s.Increment(name); err != nil {
			slog.Warn("counter increment failed", "counter", name, "error", err)
		}
	}()
}

// Counters returns all counter values.
func (s *Store) Counters() (map[string]int64, error) {
	rows, err := s.db.Query("SELECT name, value FROM counters")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counters := make(map[string]int64)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		counters[name] = value
	}
	return counters, rows.Err()
}

// ArchiveRound stores a completed round for later inspection.
func (s *Store) ArchiveRound(roomCode string, rec models.RoundRecord) error {
	votes, err := json.Marshal(rec.Votes)
	if err != nil {
		return err
	}

	var avg interface{}
	if rec.Average != nil {
		avg = *rec.Average
	}

	_, err = s.db.Exec(`
		INSERT INTO round_archive (room_code, ticket, votes, average, outcome, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		roomCode, rec.Ticket, string(votes), avg, rec.Outcome, rec.CompletedAt,
	)
	return err
}

// ArchiveRoundAsync archives a round in the background. Safe on a nil store.
func (s *Store) ArchiveRoundAsync(roomCode string, rec models.RoundRecord) {
	if s == nil {
		return
	}
	go func() {
		if err := s.ArchiveRound(roomCode, rec); err != nil {
			slog.Warn("round archive failed", "room", roomCode, "error", err)
		}
	}()
}

// RoomRounds returns the archived rounds for one room, oldest first.
func (s *Store) RoomRounds(roomCode string) ([]models.RoundRecord, error) {
	rows, err := s.db.Query(`
		SELECT ticket, votes, average, outcome, completed_at
		FROM round_archive WHERE room_code = ? ORDER BY id ASC`,
		roomCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.RoundRecord
	for rows.Next() {
		var rec models.RoundRecord
		var votes string
		var avg sql.NullFloat64
		if err := rows.Scan(&rec.Ticket, &votes, &avg, &rec.Outcome, &rec.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(votes), &rec.Votes); err != nil {
			return nil, err
		}
		if avg.Valid {
			rec.Average = &avg.Float64
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
