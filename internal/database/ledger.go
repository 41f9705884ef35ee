package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pos-offer-engine/internal/models"
)

// InsertInvoice persists an invoice, its line items and its qualification
// records in one transaction. Qualification rows are written once here and
// never updated afterwards.
func (db *DB) InsertInvoice(ctx context.Context, inv models.Invoice) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO invoices (id, invoice_number, customer_id, customer_name,
			customer_phone, total_payable, payment_method, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.InvoiceNumber,
		inv.CustomerID,
		inv.CustomerName,
		inv.CustomerPhone,
		inv.TotalPayable.String(),
		inv.PaymentMethod,
		string(inv.Status),
		fmtTime(inv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	for _, item := range inv.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO invoice_items (invoice_id, product_id, name, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
			inv.ID, item.ProductID, item.Name, item.Quantity, item.UnitPrice.String())
		if err != nil {
			return fmt.Errorf("failed to insert invoice item: %w", err)
		}
	}

	for _, q := range inv.Qualifications {
		qualified := 0
		if q.Qualified {
			qualified = 1
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO invoice_qualifications (invoice_id, offer_id, offer_name,
				offer_type, festival_sub_type, regular_sub_type, qualified,
				prize_name, position, progress_to_qualify)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, q.OfferID, q.OfferName, string(q.OfferType),
			string(q.FestivalSubType), string(q.RegularSubType), qualified,
			q.PrizeName, q.Position, q.ProgressToQualify)
		if err != nil {
			return fmt.Errorf("failed to insert qualification: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoice: %w", err)
	}

	return nil
}

// GetInvoice returns an invoice with its items and qualification records.
func (db *DB) GetInvoice(ctx context.Context, id string) (models.Invoice, error) {
	var inv models.Invoice
	var totalStr, status, createdStr string

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, invoice_number, customer_id, customer_name, customer_phone,
			total_payable, payment_method, status, created_at
		FROM invoices WHERE id = ?`, id).Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.CustomerID, &inv.CustomerName,
		&inv.CustomerPhone, &totalStr, &inv.PaymentMethod, &status, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Invoice{}, ErrNotFound
	}
	if err != nil {
		return models.Invoice{}, fmt.Errorf("failed to get invoice: %w", err)
	}

	inv.Status = models.InvoiceStatus(status)
	if inv.TotalPayable, err = parseAmount(totalStr); err != nil {
		return models.Invoice{}, fmt.Errorf("failed to parse total_payable: %w", err)
	}
	if inv.CreatedAt, err = parseTime(createdStr); err != nil {
		return models.Invoice{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	if inv.Items, err = db.invoiceItems(ctx, id); err != nil {
		return models.Invoice{}, err
	}
	if inv.Qualifications, err = db.invoiceQualifications(ctx, id); err != nil {
		return models.Invoice{}, err
	}

	return inv, nil
}

func (db *DB) invoiceItems(ctx context.Context, invoiceID string) ([]models.InvoiceItem, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT product_id, name, quantity, unit_price
		FROM invoice_items WHERE invoice_id = ?`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice items: %w", err)
	}
	defer rows.Close()

	var items []models.InvoiceItem
	for rows.Next() {
		var item models.InvoiceItem
		var priceStr string
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &priceStr); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		if item.UnitPrice, err = parseAmount(priceStr); err != nil {
			return nil, fmt.Errorf("failed to parse unit_price: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) invoiceQualifications(ctx context.Context, invoiceID string) ([]models.Qualification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT offer_id, offer_name, offer_type, festival_sub_type,
			regular_sub_type, qualified, prize_name, position, progress_to_qualify
		FROM invoice_qualifications WHERE invoice_id = ?`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query qualifications: %w", err)
	}
	defer rows.Close()

	var quals []models.Qualification
	for rows.Next() {
		var q models.Qualification
		var offerType, festSub, regSub string
		var qualified int
		if err := rows.Scan(&q.OfferID, &q.OfferName, &offerType, &festSub,
			&regSub, &qualified, &q.PrizeName, &q.Position, &q.ProgressToQualify); err != nil {
			return nil, fmt.Errorf("failed to scan qualification: %w", err)
		}
		q.OfferType = models.OfferType(offerType)
		q.FestivalSubType = models.FestivalSubType(festSub)
		q.RegularSubType = models.RegularSubType(regSub)
		q.Qualified = qualified == 1
		quals = append(quals, q)
	}
	return quals, rows.Err()
}

// CancelInvoice transitions an invoice from active to cancelled and
// releases its hit-counter slots. Both commit together so a cancelled
// invoice can never keep holding a position.
func (db *DB) CancelInvoice(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE invoices SET status = ? WHERE id = ? AND status = ?`,
		string(models.InvoiceCancelled), id, string(models.InvoiceActive))
	if err != nil {
		return fmt.Errorf("failed to cancel invoice: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to cancel invoice: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := releaseSlots(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	return nil
}

// NextInvoiceNumber produces the sequential number INV-RS-%06d-%02d-%d,
// resetting each calendar year. The sequence comes from a per-year
// counter row advanced in its own transaction, so concurrent sales never
// format the same number. A sale that fails after allocation leaves a
// gap in the sequence.
func (db *DB) NextInvoiceNumber(ctx context.Context, now time.Time) (string, error) {
	now = now.UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE invoice_sequence SET counter = counter + 1 WHERE year = ?`,
		now.Year())
	if err != nil {
		return "", fmt.Errorf("failed to advance invoice sequence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to advance invoice sequence: %w", err)
	}
	if affected == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO invoice_sequence (year, counter) VALUES (?, 1)`,
			now.Year()); err != nil {
			return "", fmt.Errorf("failed to start invoice sequence: %w", err)
		}
	}

	var counter int
	if err := tx.QueryRowContext(ctx,
		`SELECT counter FROM invoice_sequence WHERE year = ?`, now.Year()).Scan(&counter); err != nil {
		return "", fmt.Errorf("failed to read invoice sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit invoice sequence: %w", err)
	}

	return fmt.Sprintf("INV-RS-%06d-%02d-%d", counter, int(now.Month()), now.Year()), nil
}

// FirstPurchasers returns, per distinct customer, the first active invoice
// containing the product inside the inclusive window, ordered by that first
// purchase time. limit <= 0 means no limit.
//
// sqlite's bare-column MIN aggregate picks the remaining columns from the
// row holding the minimum created_at.
func (db *DB) FirstPurchasers(ctx context.Context, productID string, start, end time.Time, limit int) ([]models.EligibleInvoice, error) {
	query := `SELECT inv.id, inv.invoice_number, inv.customer_id, inv.customer_name,
			inv.customer_phone, inv.total_payable, MIN(inv.created_at) AS first_at
		FROM invoices inv
		JOIN invoice_items it ON it.invoice_id = inv.id
		WHERE it.product_id = ?
		AND inv.status = ?
		AND inv.created_at >= ?
		AND inv.created_at <= ?
		GROUP BY inv.customer_id
		ORDER BY first_at ASC`

	args := []interface{}{productID, string(models.InvoiceActive), fmtTime(start), fmtTime(end)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query first purchasers: %w", err)
	}
	defer rows.Close()

	return collectEligibleInvoices(rows)
}

// CountDistinctPurchasers counts distinct customers with an active purchase
// of the product in [start, before). The half-open upper bound gives the
// "strictly earlier" semantics used for snapshot position derivation.
func (db *DB) CountDistinctPurchasers(ctx context.Context, productID string, start, before time.Time) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT inv.customer_id)
		FROM invoices inv
		JOIN invoice_items it ON it.invoice_id = inv.id
		WHERE it.product_id = ?
		AND inv.status = ?
		AND inv.created_at >= ?
		AND inv.created_at < ?`,
		productID, string(models.InvoiceActive), fmtTime(start), fmtTime(before)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count purchasers: %w", err)
	}
	return count, nil
}

// HasPriorPurchase reports whether the customer has an active purchase of
// the product in [start, before).
func (db *DB) HasPriorPurchase(ctx context.Context, customerID, productID string, start, before time.Time) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*)
		FROM invoices inv
		JOIN invoice_items it ON it.invoice_id = inv.id
		WHERE inv.customer_id = ?
		AND it.product_id = ?
		AND inv.status = ?
		AND inv.created_at >= ?
		AND inv.created_at < ?`,
		customerID, productID, string(models.InvoiceActive),
		fmtTime(start), fmtTime(before)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check prior purchase: %w", err)
	}
	return count > 0, nil
}

// CountCustomerPurchases counts the customer's active invoices containing
// the product inside the inclusive window.
func (db *DB) CountCustomerPurchases(ctx context.Context, customerID, productID string, start, end time.Time) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT inv.id)
		FROM invoices inv
		JOIN invoice_items it ON it.invoice_id = inv.id
		WHERE inv.customer_id = ?
		AND it.product_id = ?
		AND inv.status = ?
		AND inv.created_at >= ?
		AND inv.created_at <= ?`,
		customerID, productID, string(models.InvoiceActive),
		fmtTime(start), fmtTime(end)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	return count, nil
}

// SumCustomerPurchases totals the customer's active invoice amounts for the
// product inside the inclusive window. Summed with decimals to keep money
// arithmetic exact.
func (db *DB) SumCustomerPurchases(ctx context.Context, customerID, productID string, start, end time.Time) (decimal.Decimal, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT inv.id, inv.total_payable
		FROM invoices inv
		JOIN invoice_items it ON it.invoice_id = inv.id
		WHERE inv.customer_id = ?
		AND it.product_id = ?
		AND inv.status = ?
		AND inv.created_at >= ?
		AND inv.created_at <= ?`,
		customerID, productID, string(models.InvoiceActive),
		fmtTime(start), fmtTime(end))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query purchase totals: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var id, amountStr string
		if err := rows.Scan(&id, &amountStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan purchase total: %w", err)
		}
		amount, err := parseAmount(amountStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse total_payable: %w", err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

// ProductPurchases returns every active invoice containing the product
// inside the inclusive window, ascending by creation time. The eligibility
// calculator aggregates these rows per customer.
func (db *DB) ProductPurchases(ctx context.Context, productID string, start, end time.Time) ([]models.EligibleInvoice, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT inv.id, inv.invoice_number, inv.customer_id,
			inv.customer_name, inv.customer_phone, inv.total_payable, inv.created_at
		FROM invoices inv
		JOIN invoice_items it ON it.invoice_id = inv.id
		WHERE it.product_id = ?
		AND inv.status = ?
		AND inv.created_at >= ?
		AND inv.created_at <= ?
		ORDER BY inv.created_at ASC`,
		productID, string(models.InvoiceActive), fmtTime(start), fmtTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query product purchases: %w", err)
	}
	defer rows.Close()

	return collectEligibleInvoices(rows)
}

func collectEligibleInvoices(rows *sql.Rows) ([]models.EligibleInvoice, error) {
	var invoices []models.EligibleInvoice
	for rows.Next() {
		var ei models.EligibleInvoice
		var totalStr, createdStr string
		if err := rows.Scan(&ei.InvoiceID, &ei.InvoiceNumber, &ei.CustomerID,
			&ei.CustomerName, &ei.CustomerPhone, &totalStr, &createdStr); err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		var err error
		if ei.TotalPayable, err = parseAmount(totalStr); err != nil {
			return nil, fmt.Errorf("failed to parse total_payable: %w", err)
		}
		if ei.CreatedAt, err = parseTime(createdStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		invoices = append(invoices, ei)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}
