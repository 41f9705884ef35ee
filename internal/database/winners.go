package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"pos-offer-engine/internal/models"
)

// ClaimSlot atomically reserves a hit-counter position for a customer.
// The counter update and the slot row commit together, so two concurrent
// sales near the limit can never both take the last slot. A cancelled
// invoice leaves a gap in the taken positions; the claim fills the lowest
// gap first, so freed positions are reusable. Returns the 1-based
// position, ErrSlotsExhausted when the offer is full, or ErrSlotTaken
// when the customer already holds a position.
func (db *DB) ClaimSlot(ctx context.Context, offerID, customerID, invoiceID string, limit int) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE offers SET slots_used = slots_used + 1, updated_at = ?
		WHERE id = ? AND slots_used < ?`,
		fmtTime(time.Now()), offerID, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to advance slot counter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to advance slot counter: %w", err)
	}
	if affected == 0 {
		return 0, ErrSlotsExhausted
	}

	position, err := lowestFreePosition(ctx, tx, offerID)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO offer_slots (offer_id, customer_id, invoice_id, position, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		offerID, customerID, invoiceID, position, fmtTime(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrSlotTaken
		}
		return 0, fmt.Errorf("failed to insert slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit slot claim: %w", err)
	}

	return position, nil
}

// lowestFreePosition scans the taken positions inside the claim
// transaction and returns the smallest untaken one. The counter guard in
// ClaimSlot already bounds the result by the offer limit.
func lowestFreePosition(ctx context.Context, tx *sql.Tx, offerID string) (int, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT position FROM offer_slots WHERE offer_id = ? ORDER BY position ASC`,
		offerID)
	if err != nil {
		return 0, fmt.Errorf("failed to query slot positions: %w", err)
	}
	defer rows.Close()

	position := 1
	for rows.Next() {
		var taken int
		if err := rows.Scan(&taken); err != nil {
			return 0, fmt.Errorf("failed to scan slot position: %w", err)
		}
		if taken != position {
			break
		}
		position++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating slot positions: %w", err)
	}
	return position, nil
}

// ReleaseSlotsForInvoice frees every hit-counter slot held by an invoice,
// outside any other transaction. The invoice-cancellation path uses
// releaseSlots directly so the status flip and the release commit
// together.
func (db *DB) ReleaseSlotsForInvoice(ctx context.Context, invoiceID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := releaseSlots(ctx, tx, invoiceID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slot release: %w", err)
	}

	return nil
}

// releaseSlots deletes the invoice's slot rows and gives the counters
// back within the caller's transaction.
func releaseSlots(ctx context.Context, tx *sql.Tx, invoiceID string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT offer_id FROM offer_slots WHERE invoice_id = ?`, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to query slots: %w", err)
	}

	var offerIDs []string
	for rows.Next() {
		var offerID string
		if err := rows.Scan(&offerID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan slot: %w", err)
		}
		offerIDs = append(offerIDs, offerID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating slots: %w", err)
	}
	rows.Close()

	if len(offerIDs) == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM offer_slots WHERE invoice_id = ?`, invoiceID); err != nil {
		return fmt.Errorf("failed to delete slots: %w", err)
	}

	for _, offerID := range offerIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE offers SET slots_used = slots_used - 1, updated_at = ?
			WHERE id = ? AND slots_used > 0`,
			fmtTime(time.Now()), offerID); err != nil {
			return fmt.Errorf("failed to decrement slot counter: %w", err)
		}
	}

	return nil
}

// InsertWinner appends a winner record. The UNIQUE(offer_id, rank)
// constraint serializes concurrent admin assignments to the same rank.
func (db *DB) InsertWinner(ctx context.Context, w models.Winner) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO winners (offer_id, rank, invoice_id, customer_name, mobile_number, announced_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.OfferID, string(w.Rank), w.InvoiceID, w.CustomerName, w.MobileNumber,
		fmtTime(w.AnnouncedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRank
		}
		return fmt.Errorf("failed to insert winner: %w", err)
	}
	return nil
}

// ListWinners returns an offer's winners in rank order.
func (db *DB) ListWinners(ctx context.Context, offerID string) ([]models.Winner, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT offer_id, rank, invoice_id, customer_name, mobile_number, announced_at
		FROM winners WHERE offer_id = ?
		ORDER BY CASE rank WHEN 'first' THEN 1 WHEN 'second' THEN 2 ELSE 3 END`,
		offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query winners: %w", err)
	}
	defer rows.Close()

	var winners []models.Winner
	for rows.Next() {
		var w models.Winner
		var rank, announcedStr string
		if err := rows.Scan(&w.OfferID, &rank, &w.InvoiceID, &w.CustomerName,
			&w.MobileNumber, &announcedStr); err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		w.Rank = models.PrizeRank(rank)
		if w.AnnouncedAt, err = parseTime(announcedStr); err != nil {
			return nil, fmt.Errorf("failed to parse announced_at: %w", err)
		}
		winners = append(winners, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating winners: %w", err)
	}
	return winners, nil
}

// HasWinnerForInvoice reports whether any announced winner references the
// invoice. Such invoices cannot be cancelled.
func (db *DB) HasWinnerForInvoice(ctx context.Context, invoiceID string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM winners WHERE invoice_id = ?`, invoiceID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check winners: %w", err)
	}
	return count > 0, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
