package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pos-offer-engine/internal/cache"
	"pos-offer-engine/internal/database"
	"pos-offer-engine/internal/features"
	"pos-offer-engine/internal/models"
)

// RecomputeEligibility re-derives the full eligible set for an offer from
// the ledger, shaped by variant: festival variants return invoices,
// regular variants return customers with their computed metric. The
// inclusion rules are the same as the per-sale evaluator's, so a recompute
// and the historical qualification records never disagree for the same
// ledger state. Idempotent for unchanged ledgers.
func (s *Service) RecomputeEligibility(ctx context.Context, offerID string) (models.EligibilitySet, error) {
	if s.cacheEnabled() {
		var cached models.EligibilitySet
		err := cache.GetJSON(ctx, s.cache, cache.EligibilityKey(offerID), &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			s.log.Warn("eligibility cache read failed",
				zap.String("offer_id", offerID),
				zap.Error(err))
		}
	}

	set, err := s.computeEligibility(ctx, offerID)
	if err != nil {
		return models.EligibilitySet{}, err
	}

	if s.cacheEnabled() {
		if err := cache.SetJSON(ctx, s.cache, cache.EligibilityKey(offerID), set, eligibilityTTL); err != nil {
			s.log.Warn("eligibility cache write failed",
				zap.String("offer_id", offerID),
				zap.Error(err))
		}
	}

	s.events.PublishEligibilityRecomputed(ctx, offerID, set.Count)
	return set, nil
}

// computeEligibility always reads the ledger directly. Winner assignment
// uses it to avoid deciding on a stale cached set.
func (s *Service) computeEligibility(ctx context.Context, offerID string) (models.EligibilitySet, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if errors.Is(err, database.ErrNotFound) {
		return models.EligibilitySet{}, ErrNotFound
	}
	if err != nil {
		return models.EligibilitySet{}, err
	}

	set := models.EligibilitySet{
		OfferID:     offer.ID,
		Variant:     offer.Variant(),
		WindowStart: offer.StartDate,
		WindowEnd:   offer.EndDate,
		ComputedAt:  s.now().UTC(),
	}

	switch offer.Variant() {
	case models.VariantHitCounter:
		invoices, err := s.store.FirstPurchasers(ctx, offer.ProductID, offer.StartDate, offer.EndDate, offer.CustomerLimit)
		if err != nil {
			return models.EligibilitySet{}, err
		}
		set.Invoices = invoices
		set.Count = len(invoices)

	case models.VariantAmountBased:
		purchases, err := s.store.ProductPurchases(ctx, offer.ProductID, offer.StartDate, offer.EndDate)
		if err != nil {
			return models.EligibilitySet{}, err
		}
		set.Invoices = amountQualifyingInvoices(purchases, offer)
		set.Count = len(set.Invoices)

	case models.VariantVisitCount, models.VariantPurchaseAmount:
		purchases, err := s.store.ProductPurchases(ctx, offer.ProductID, offer.StartDate, offer.EndDate)
		if err != nil {
			return models.EligibilitySet{}, err
		}
		set.Customers = aggregateCustomers(purchases, offer)
		set.Count = len(set.Customers)

	default:
		return models.EligibilitySet{}, fmt.Errorf("offer %s has unknown variant configuration", offer.ID)
	}

	return set, nil
}

// amountQualifyingInvoices keeps, per distinct customer, that customer's
// latest invoice meeting the minimum amount, ordered ascending by creation
// time.
func amountQualifyingInvoices(purchases []models.EligibleInvoice, offer models.Offer) []models.EligibleInvoice {
	latest := make(map[string]int)
	for i, p := range purchases {
		if p.TotalPayable.LessThan(offer.MinimumAmount) {
			continue
		}
		// purchases are ordered ascending, so the last hit wins.
		latest[p.CustomerID] = i
	}

	var result []models.EligibleInvoice
	for i, p := range purchases {
		if idx, ok := latest[p.CustomerID]; ok && idx == i {
			result = append(result, p)
		}
	}
	return result
}

// aggregateCustomers folds purchases into per-customer visit counts and
// spend totals, then keeps those meeting the offer's threshold. Ordering
// follows each customer's first qualifying purchase, which makes repeated
// recomputes over an unchanged ledger identical.
func aggregateCustomers(purchases []models.EligibleInvoice, offer models.Offer) []models.EligibleCustomer {
	type agg struct {
		customer models.EligibleCustomer
		order    int
	}

	byCustomer := make(map[string]*agg)
	var order []string
	for _, p := range purchases {
		a, ok := byCustomer[p.CustomerID]
		if !ok {
			a = &agg{
				customer: models.EligibleCustomer{
					CustomerID:   p.CustomerID,
					CustomerName: p.CustomerName,
					MobileNumber: p.CustomerPhone,
				},
				order: len(order),
			}
			byCustomer[p.CustomerID] = a
			order = append(order, p.CustomerID)
		}
		a.customer.VisitCount++
		a.customer.TotalAmount = a.customer.TotalAmount.Add(p.TotalPayable)
	}

	var result []models.EligibleCustomer
	for _, id := range order {
		c := byCustomer[id].customer
		switch offer.Variant() {
		case models.VariantVisitCount:
			if c.VisitCount >= offer.VisitCount {
				result = append(result, c)
			}
		case models.VariantPurchaseAmount:
			if c.TotalAmount.GreaterThanOrEqual(offer.TargetAmount) {
				result = append(result, c)
			}
		}
	}
	return result
}

// ActiveOfferProgress builds the live progress rows shown on the POS
// banner: current qualifying count, a small sample of eligible customers
// and the time remaining in each running offer's window.
func (s *Service) ActiveOfferProgress(ctx context.Context) ([]models.OfferProgress, error) {
	if s.features != nil && !s.features.IsEnabled(features.FeaturePOSProgress) {
		return []models.OfferProgress{}, nil
	}

	now := s.now().UTC()

	offers, err := s.store.ActiveOffers(ctx, now)
	if err != nil {
		return nil, err
	}

	progress := make([]models.OfferProgress, 0, len(offers))
	for _, offer := range offers {
		set, err := s.computeEligibility(ctx, offer.ID)
		if err != nil {
			return nil, err
		}

		row := models.OfferProgress{
			OfferID:      offer.ID,
			Variant:      offer.Variant(),
			FestivalName: offer.FestivalName,
			ProductID:    offer.ProductID,
			StartDate:    offer.StartDate,
			EndDate:      offer.EndDate,
			CurrentCount: set.Count,
			PrizeName:    offer.PrizeName,
			Prizes:       offer.Prizes,
		}

		switch offer.Variant() {
		case models.VariantHitCounter:
			row.TargetCount = offer.CustomerLimit
		case models.VariantVisitCount:
			row.TargetCount = offer.VisitCount
		}

		for _, inv := range set.Invoices {
			row.EligibleSample = append(row.EligibleSample, models.EligibleCustomer{
				CustomerID:   inv.CustomerID,
				CustomerName: inv.CustomerName,
				MobileNumber: inv.CustomerPhone,
			})
		}
		row.EligibleSample = append(row.EligibleSample, set.Customers...)
		if len(row.EligibleSample) > 5 {
			row.EligibleSample = row.EligibleSample[:5]
		}

		remaining := offer.EndDate.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		row.DaysRemaining = int(remaining / (24 * time.Hour))
		row.HoursRemaining = int(remaining % (24 * time.Hour) / time.Hour)
		row.MinutesRemaining = int(remaining % time.Hour / time.Minute)

		progress = append(progress, row)
	}

	return progress, nil
}
