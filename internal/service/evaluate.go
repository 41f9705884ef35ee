package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-offer-engine/internal/database"
	"pos-offer-engine/internal/models"
)

// slotResult is the outcome of a hit-counter position allocation attempt.
type slotResult struct {
	position int
	full     bool
	taken    bool
}

// slotAllocator decides a customer's hit-counter position for one offer.
// The sale path claims a real slot; the preview path derives the position
// from a ledger snapshot without mutating anything.
type slotAllocator func(ctx context.Context, offer models.Offer, customerID string, invoiceDate time.Time) (slotResult, error)

// Evaluate is the read-only qualification preview: given a prospective sale
// it returns one result per matching active offer. It never fails the
// caller; on any internal error it logs and returns an empty set.
func (s *Service) Evaluate(ctx context.Context, customerID string, items []models.InvoiceItem, totalAmount decimal.Decimal, invoiceDate time.Time) []models.Qualification {
	quals, err := s.evaluate(ctx, customerID, items, totalAmount, invoiceDate, s.snapshotAllocator())
	if err != nil {
		s.log.Warn("qualification preview failed",
			zap.String("customer_id", customerID),
			zap.Error(err))
		return nil
	}
	return quals
}

// evaluate resolves the active offers touching the purchased products and
// dispatches each to its variant rule. Threshold and window comparisons are
// inclusive on both ends.
func (s *Service) evaluate(ctx context.Context, customerID string, items []models.InvoiceItem, totalAmount decimal.Decimal, invoiceDate time.Time, alloc slotAllocator) ([]models.Qualification, error) {
	productIDs := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			productIDs = append(productIDs, item.ProductID)
		}
	}

	offers, err := s.store.FindActiveOffers(ctx, productIDs, invoiceDate)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active offers: %w", err)
	}

	var quals []models.Qualification
	for _, offer := range offers {
		if !seen[offer.ProductID] || !offer.WindowContains(invoiceDate) {
			continue
		}

		q, err := s.evaluateOffer(ctx, offer, customerID, totalAmount, invoiceDate, alloc)
		if err != nil {
			return nil, err
		}
		quals = append(quals, q)
	}

	return quals, nil
}

// evaluateOffer dispatches on the offer variant. The variant set is closed;
// an unknown combination is a configuration error.
func (s *Service) evaluateOffer(ctx context.Context, offer models.Offer, customerID string, totalAmount decimal.Decimal, invoiceDate time.Time, alloc slotAllocator) (models.Qualification, error) {
	q := models.Qualification{
		OfferID:         offer.ID,
		OfferName:       offer.DisplayName(),
		OfferType:       offer.OfferType,
		FestivalSubType: offer.FestivalSubType,
		RegularSubType:  offer.RegularSubType,
	}

	switch offer.Variant() {
	case models.VariantHitCounter:
		return s.evaluateHitCounter(ctx, q, offer, customerID, invoiceDate, alloc)

	case models.VariantAmountBased:
		q.PrizeName = offer.PrizeName
		q.Qualified = totalAmount.GreaterThanOrEqual(offer.MinimumAmount)
		if !q.Qualified {
			shortfall := offer.MinimumAmount.Sub(totalAmount)
			q.ProgressToQualify = fmt.Sprintf("Need ₹%s more", shortfall.StringFixed(2))
		}
		return q, nil

	case models.VariantVisitCount:
		prior, err := s.store.CountCustomerPurchases(ctx, customerID, offer.ProductID, offer.StartDate, invoiceDate)
		if err != nil {
			return q, fmt.Errorf("failed to count visits: %w", err)
		}
		visits := prior + 1 // the invoice being evaluated counts

		q.PrizeName = offer.PrizeName
		q.Qualified = visits >= offer.VisitCount
		if !q.Qualified {
			q.ProgressToQualify = fmt.Sprintf("%d/%d visits completed", visits, offer.VisitCount)
		}
		return q, nil

	case models.VariantPurchaseAmount:
		priorSpent, err := s.store.SumCustomerPurchases(ctx, customerID, offer.ProductID, offer.StartDate, invoiceDate)
		if err != nil {
			return q, fmt.Errorf("failed to sum purchases: %w", err)
		}
		totalSpent := priorSpent.Add(totalAmount) // includes the current invoice

		q.PrizeName = offer.PrizeName
		q.Qualified = totalSpent.GreaterThanOrEqual(offer.TargetAmount)
		if !q.Qualified {
			q.ProgressToQualify = fmt.Sprintf("₹%s/₹%s spent",
				totalSpent.StringFixed(2), offer.TargetAmount.String())
		}
		return q, nil
	}

	return q, fmt.Errorf("offer %s has unknown variant configuration", offer.ID)
}

// evaluateHitCounter applies the first-N-distinct-customers rule. A
// customer may only ever occupy one position per offer.
func (s *Service) evaluateHitCounter(ctx context.Context, q models.Qualification, offer models.Offer, customerID string, invoiceDate time.Time, alloc slotAllocator) (models.Qualification, error) {
	prior, err := s.store.HasPriorPurchase(ctx, customerID, offer.ProductID, offer.StartDate, invoiceDate)
	if err != nil {
		return q, fmt.Errorf("failed to check prior purchase: %w", err)
	}
	if prior {
		q.ProgressToQualify = "Already purchased this product in this offer period"
		return q, nil
	}

	res, err := alloc(ctx, offer, customerID, invoiceDate)
	if err != nil {
		return q, err
	}

	switch {
	case res.taken:
		q.ProgressToQualify = "Already purchased this product in this offer period"
	case res.full:
		q.ProgressToQualify = fmt.Sprintf("Offer full (%d customers reached)", offer.CustomerLimit)
	default:
		q.Qualified = true
		q.Position = res.position
		q.PrizeName = fmt.Sprintf("Position %d/%d", res.position, offer.CustomerLimit)
	}

	return q, nil
}

// snapshotAllocator derives the position from a point-in-time read of the
// ledger: the count of distinct customers whose first qualifying purchase
// happened strictly before the invoice date, capped at the limit, plus one.
// Read-only; concurrent previews may see the same position.
func (s *Service) snapshotAllocator() slotAllocator {
	return func(ctx context.Context, offer models.Offer, customerID string, invoiceDate time.Time) (slotResult, error) {
		count, err := s.store.CountDistinctPurchasers(ctx, offer.ProductID, offer.StartDate, invoiceDate)
		if err != nil {
			return slotResult{}, fmt.Errorf("failed to count purchasers: %w", err)
		}
		if count > offer.CustomerLimit {
			count = offer.CustomerLimit
		}

		position := count + 1
		if position > offer.CustomerLimit {
			return slotResult{full: true}, nil
		}
		return slotResult{position: position}, nil
	}
}

// claimingAllocator reserves a real slot through the storage layer's
// per-offer counter, so concurrent sales near the limit cannot both take
// the last position.
func (s *Service) claimingAllocator(invoiceID string) slotAllocator {
	return func(ctx context.Context, offer models.Offer, customerID string, invoiceDate time.Time) (slotResult, error) {
		position, err := s.store.ClaimSlot(ctx, offer.ID, customerID, invoiceID, offer.CustomerLimit)
		if errors.Is(err, database.ErrSlotsExhausted) {
			return slotResult{full: true}, nil
		}
		if errors.Is(err, database.ErrSlotTaken) {
			return slotResult{taken: true}, nil
		}
		if err != nil {
			return slotResult{}, fmt.Errorf("failed to claim slot: %w", err)
		}
		return slotResult{position: position}, nil
	}
}
