package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSlotTaken is returned when a reservation write loses the overlap
// re-check inside its transaction. The caller recovers by re-fetching
// availability, never by substituting another slot.
var ErrSlotTaken = errors.New("slot taken")

// ErrVersionConflict is returned when an optimistic state update raced a
// concurrent writer.
var ErrVersionConflict = errors.New("version conflict")

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps sql.DB for the reservation engine.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations. Transactions take
// the write lock up front (_txlock=immediate) so two reservation writes
// queue on the busy timeout instead of deadlocking on lock upgrade.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS venues (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            owner_id INTEGER NOT NULL,
            name TEXT UNIQUE NOT NULL,
            price_per_hour INTEGER NOT NULL,
            slot_granularity INTEGER NOT NULL DEFAULT 30,
            advance_kind TEXT,
            advance_value REAL,
            allows_advance BOOLEAN NOT NULL DEFAULT 0,
            allows_pay_at_venue BOOLEAN NOT NULL DEFAULT 0,
            commission_kind TEXT,
            commission_value REAL,
            payout_frequency TEXT NOT NULL DEFAULT 'weekly',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS venue_hours (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            venue_id INTEGER NOT NULL,
            day_of_week INTEGER NOT NULL,
            is_open BOOLEAN NOT NULL DEFAULT 1,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            UNIQUE (venue_id, day_of_week),
            FOREIGN KEY (venue_id) REFERENCES venues(id)
        )`,

		`CREATE TABLE IF NOT EXISTS pricing_bands (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            venue_id INTEGER NOT NULL,
            day_of_week INTEGER NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            price_per_hour INTEGER NOT NULL,
            FOREIGN KEY (venue_id) REFERENCES venues(id)
        )`,

		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            venue_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            date DATETIME NOT NULL,
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            duration INTEGER NOT NULL,
            total_amount INTEGER NOT NULL,
            amount_committed INTEGER NOT NULL DEFAULT 0,
            payment_state TEXT NOT NULL DEFAULT 'unpaid',
            mode TEXT,
            match_id INTEGER,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1,
            FOREIGN KEY (venue_id) REFERENCES venues(id)
        )`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reservation_id INTEGER NOT NULL,
            venue_id INTEGER NOT NULL,
            gross INTEGER NOT NULL,
            commission_kind TEXT NOT NULL,
            commission_value REAL NOT NULL,
            platform_fee INTEGER NOT NULL,
            venue_amount INTEGER NOT NULL,
            remainder BOOLEAN NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'paid',
            realized_at DATETIME NOT NULL,
            FOREIGN KEY (reservation_id) REFERENCES reservations(id),
            FOREIGN KEY (venue_id) REFERENCES venues(id)
        )`,

		`CREATE TABLE IF NOT EXISTS payout_batches (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            venue_id INTEGER NOT NULL,
            period_start DATETIME NOT NULL,
            period_end DATETIME NOT NULL,
            gross INTEGER NOT NULL,
            fees INTEGER NOT NULL,
            net INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            settled_at DATETIME,
            external_ref TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (venue_id) REFERENCES venues(id)
        )`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_reservations_interval ON reservations(venue_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_state ON reservations(payment_state)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_venue_time ON ledger_entries(venue_id, realized_at)`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_venue ON payout_batches(venue_id, status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
