package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"pos-offer-engine/internal/models"
)

var (
	// ErrNotFound is returned for unknown offer or invoice references.
	ErrNotFound = errors.New("database: not found")
	// ErrSlotsExhausted is returned when a hit-counter offer has no free slot.
	ErrSlotsExhausted = errors.New("database: offer slots exhausted")
	// ErrSlotTaken is returned when the customer already holds a slot.
	ErrSlotTaken = errors.New("database: customer already holds a slot")
	// ErrDuplicateRank is returned when a winner rank is already assigned.
	ErrDuplicateRank = errors.New("database: rank already assigned")
)

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers; a single connection avoids busy errors
	// on the slot counter updates.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS offers (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			offer_type TEXT NOT NULL,
			festival_sub_type TEXT NOT NULL DEFAULT '',
			regular_sub_type TEXT NOT NULL DEFAULT '',
			festival_name TEXT NOT NULL DEFAULT '',
			customer_limit INTEGER NOT NULL DEFAULT 0,
			minimum_amount TEXT NOT NULL DEFAULT '0',
			visit_count INTEGER NOT NULL DEFAULT 0,
			target_amount TEXT NOT NULL DEFAULT '0',
			prize_name TEXT NOT NULL DEFAULT '',
			prize_image_url TEXT NOT NULL DEFAULT '',
			prizes TEXT NOT NULL DEFAULT '[]',
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			status TEXT NOT NULL,
			slots_used INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			invoice_number TEXT NOT NULL UNIQUE,
			customer_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL DEFAULT '',
			total_payable TEXT NOT NULL,
			payment_method TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
			invoice_id TEXT NOT NULL REFERENCES invoices(id),
			product_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL,
			unit_price TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_qualifications (
			invoice_id TEXT NOT NULL REFERENCES invoices(id),
			offer_id TEXT NOT NULL,
			offer_name TEXT NOT NULL,
			offer_type TEXT NOT NULL,
			festival_sub_type TEXT NOT NULL DEFAULT '',
			regular_sub_type TEXT NOT NULL DEFAULT '',
			qualified INTEGER NOT NULL,
			prize_name TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			progress_to_qualify TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS offer_slots (
			offer_id TEXT NOT NULL REFERENCES offers(id),
			customer_id TEXT NOT NULL,
			invoice_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(offer_id, customer_id),
			UNIQUE(offer_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS winners (
			offer_id TEXT NOT NULL REFERENCES offers(id),
			rank TEXT NOT NULL,
			invoice_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			mobile_number TEXT NOT NULL DEFAULT '',
			announced_at TEXT NOT NULL,
			UNIQUE(offer_id, rank)
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_sequence (
			year INTEGER PRIMARY KEY,
			counter INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_product ON offers(product_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_window ON offers(start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_customer ON invoices(customer_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_created ON invoices(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_items_product ON invoice_items(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_invoice ON invoice_items(invoice_id)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_invoice ON offer_slots(invoice_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// fmtTime renders a timestamp the way the schema stores it. UTC keeps
// lexicographic and chronological order aligned.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// serializePrizes converts ranked prizes to a JSON column value.
func serializePrizes(prizes []models.Prize) string {
	if len(prizes) == 0 {
		return "[]"
	}
	data, err := json.Marshal(prizes)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func deserializePrizes(serialized string) []models.Prize {
	if serialized == "" || serialized == "[]" {
		return nil
	}
	var prizes []models.Prize
	if err := json.Unmarshal([]byte(serialized), &prizes); err != nil {
		return nil
	}
	return prizes
}
