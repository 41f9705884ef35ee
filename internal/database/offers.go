package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pos-offer-engine/internal/models"
)

const offerColumns = `id, product_id, offer_type, festival_sub_type, regular_sub_type,
	festival_name, customer_limit, minimum_amount, visit_count, target_amount,
	prize_name, prize_image_url, prizes, start_date, end_date, status, slots_used,
	created_at, updated_at`

// InsertOffer stores a new offer definition.
func (db *DB) InsertOffer(ctx context.Context, offer models.Offer) error {
	query := `INSERT INTO offers (` + offerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		offer.ID,
		offer.ProductID,
		string(offer.OfferType),
		string(offer.FestivalSubType),
		string(offer.RegularSubType),
		offer.FestivalName,
		offer.CustomerLimit,
		offer.MinimumAmount.String(),
		offer.VisitCount,
		offer.TargetAmount.String(),
		offer.PrizeName,
		offer.PrizeImageURL,
		serializePrizes(offer.Prizes),
		fmtTime(offer.StartDate),
		fmtTime(offer.EndDate),
		string(offer.Status),
		offer.SlotsUsed,
		fmtTime(offer.CreatedAt),
		fmtTime(offer.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert offer: %w", err)
	}

	return nil
}

// GetOffer returns one offer by id.
func (db *DB) GetOffer(ctx context.Context, id string) (models.Offer, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE id = ?`, id)

	offer, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Offer{}, ErrNotFound
	}
	if err != nil {
		return models.Offer{}, fmt.Errorf("failed to get offer: %w", err)
	}
	return offer, nil
}

// ListOffers returns all offers, newest first.
func (db *DB) ListOffers(ctx context.Context) ([]models.Offer, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+offerColumns+` FROM offers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	return collectOffers(rows)
}

// FindActiveOffers returns active offers whose inclusive window contains
// asOf and whose product is one of productIDs.
func (db *DB) FindActiveOffers(ctx context.Context, productIDs []string, asOf time.Time) ([]models.Offer, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(productIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := `SELECT ` + offerColumns + ` FROM offers
		WHERE status = ?
		AND start_date <= ?
		AND end_date >= ?
		AND product_id IN (` + placeholders + `)`

	args := []interface{}{string(models.OfferActive), fmtTime(asOf), fmtTime(asOf)}
	for _, id := range productIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active offers: %w", err)
	}
	defer rows.Close()

	return collectOffers(rows)
}

// ActiveOffers returns every active offer running at asOf, regardless of
// product. Used by the POS progress feed.
func (db *DB) ActiveOffers(ctx context.Context, asOf time.Time) ([]models.Offer, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+offerColumns+` FROM offers
		WHERE status = ? AND start_date <= ? AND end_date >= ?`,
		string(models.OfferActive), fmtTime(asOf), fmtTime(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to query active offers: %w", err)
	}
	defer rows.Close()

	return collectOffers(rows)
}

// UpdateOfferStatus moves an offer to a new lifecycle state.
func (db *DB) UpdateOfferStatus(ctx context.Context, id string, status models.OfferStatus) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE offers SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update offer status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update offer status: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOffer(row rowScanner) (models.Offer, error) {
	var offer models.Offer
	var offerType, festSub, regSub string
	var minAmountStr, targetAmountStr string
	var prizesJSON string
	var startStr, endStr, status string
	var createdStr, updatedStr string

	err := row.Scan(
		&offer.ID,
		&offer.ProductID,
		&offerType,
		&festSub,
		&regSub,
		&offer.FestivalName,
		&offer.CustomerLimit,
		&minAmountStr,
		&offer.VisitCount,
		&targetAmountStr,
		&offer.PrizeName,
		&offer.PrizeImageURL,
		&prizesJSON,
		&startStr,
		&endStr,
		&status,
		&offer.SlotsUsed,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return models.Offer{}, err
	}

	offer.OfferType = models.OfferType(offerType)
	offer.FestivalSubType = models.FestivalSubType(festSub)
	offer.RegularSubType = models.RegularSubType(regSub)
	offer.Status = models.OfferStatus(status)
	offer.Prizes = deserializePrizes(prizesJSON)

	if offer.MinimumAmount, err = parseAmount(minAmountStr); err != nil {
		return models.Offer{}, fmt.Errorf("failed to parse minimum_amount: %w", err)
	}
	if offer.TargetAmount, err = parseAmount(targetAmountStr); err != nil {
		return models.Offer{}, fmt.Errorf("failed to parse target_amount: %w", err)
	}
	if offer.StartDate, err = parseTime(startStr); err != nil {
		return models.Offer{}, fmt.Errorf("failed to parse start_date: %w", err)
	}
	if offer.EndDate, err = parseTime(endStr); err != nil {
		return models.Offer{}, fmt.Errorf("failed to parse end_date: %w", err)
	}
	if offer.CreatedAt, err = parseTime(createdStr); err != nil {
		return models.Offer{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if offer.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return models.Offer{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return offer, nil
}

func collectOffers(rows *sql.Rows) ([]models.Offer, error) {
	var offers []models.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}
	return offers, nil
}
