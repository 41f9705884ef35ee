package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"pos-offer-engine/internal/cache"
	"pos-offer-engine/internal/database"
	"pos-offer-engine/internal/models"
	"pos-offer-engine/internal/validation"
)

// ListEligible returns the current eligible set for a hit-counter offer,
// freshly computed so the caller sees ledger truth rather than a cached
// snapshot.
func (s *Service) ListEligible(ctx context.Context, offerID string) (models.EligibilitySet, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if errors.Is(err, database.ErrNotFound) {
		return models.EligibilitySet{}, ErrNotFound
	}
	if err != nil {
		return models.EligibilitySet{}, err
	}
	if offer.Variant() != models.VariantHitCounter {
		return models.EligibilitySet{}, ErrNotHitCounter
	}
	return s.computeEligibility(ctx, offerID)
}

// AssignWinner binds one prize rank of a hit-counter offer to an invoice.
// The invoice must be in the offer's current eligible set; each rank is
// assignable once.
func (s *Service) AssignWinner(ctx context.Context, offerID string, req models.AssignWinnerRequest) (models.Winner, error) {
	if err := validation.ValidateRank(req.Rank); err != nil {
		return models.Winner{}, err
	}
	if err := validation.ValidateUUID(req.InvoiceID, "invoice_id"); err != nil {
		return models.Winner{}, err
	}

	offer, err := s.store.GetOffer(ctx, offerID)
	if errors.Is(err, database.ErrNotFound) {
		return models.Winner{}, ErrNotFound
	}
	if err != nil {
		return models.Winner{}, err
	}
	if offer.Variant() != models.VariantHitCounter {
		return models.Winner{}, ErrNotHitCounter
	}
	if offer.Status == models.OfferCompleted {
		return models.Winner{}, ErrOfferCompleted
	}

	set, err := s.computeEligibility(ctx, offerID)
	if err != nil {
		return models.Winner{}, err
	}
	entry, ok := findEligibleInvoice(set.Invoices, req.InvoiceID)
	if !ok {
		return models.Winner{}, ErrNotEligible
	}

	w := models.Winner{
		OfferID:      offerID,
		Rank:         req.Rank,
		InvoiceID:    entry.InvoiceID,
		CustomerName: entry.CustomerName,
		MobileNumber: entry.CustomerPhone,
		AnnouncedAt:  s.now().UTC(),
	}
	if err := s.store.InsertWinner(ctx, w); err != nil {
		if errors.Is(err, database.ErrDuplicateRank) {
			return models.Winner{}, ErrDuplicateRank
		}
		return models.Winner{}, err
	}

	if s.cacheEnabled() {
		_ = s.cache.Delete(ctx, cache.EligibilityKey(offerID))
	}
	s.events.PublishWinnerAssigned(ctx, w)
	return w, nil
}

// DrawWinners picks three distinct invoices at random from an amount-based
// offer's eligible set, assigns them first, second and third, and marks the
// offer completed. Fails without side effects when fewer than three
// invoices qualify.
func (s *Service) DrawWinners(ctx context.Context, offerID string) ([]models.Winner, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if offer.Variant() != models.VariantAmountBased {
		return nil, fmt.Errorf("offer %s: random draw applies to amount-based festival offers only", offerID)
	}
	if offer.Status == models.OfferCompleted {
		return nil, ErrOfferCompleted
	}

	set, err := s.computeEligibility(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if len(set.Invoices) < 3 {
		return nil, ErrNotEnoughEligible
	}

	picked := rand.Perm(len(set.Invoices))[:3]
	ranks := []models.PrizeRank{models.RankFirst, models.RankSecond, models.RankThird}

	winners := make([]models.Winner, 0, 3)
	for i, idx := range picked {
		entry := set.Invoices[idx]
		w := models.Winner{
			OfferID:      offerID,
			Rank:         ranks[i],
			InvoiceID:    entry.InvoiceID,
			CustomerName: entry.CustomerName,
			MobileNumber: entry.CustomerPhone,
			AnnouncedAt:  s.now().UTC(),
		}
		if err := s.store.InsertWinner(ctx, w); err != nil {
			if errors.Is(err, database.ErrDuplicateRank) {
				return nil, ErrDuplicateRank
			}
			return nil, err
		}
		winners = append(winners, w)
		s.events.PublishWinnerAssigned(ctx, w)
	}

	if err := s.store.UpdateOfferStatus(ctx, offerID, models.OfferCompleted); err != nil {
		return nil, err
	}
	if s.cacheEnabled() {
		_ = s.cache.Delete(ctx, cache.EligibilityKey(offerID))
	}
	return winners, nil
}

// CompleteOffer closes a hit-counter offer after at least one winner has
// been announced.
func (s *Service) CompleteOffer(ctx context.Context, offerID string) error {
	offer, err := s.store.GetOffer(ctx, offerID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if offer.Status == models.OfferCompleted {
		return nil
	}

	winners, err := s.store.ListWinners(ctx, offerID)
	if err != nil {
		return err
	}
	if len(winners) == 0 {
		return ErrNoWinners
	}
	return s.store.UpdateOfferStatus(ctx, offerID, models.OfferCompleted)
}

func findEligibleInvoice(invoices []models.EligibleInvoice, invoiceID string) (models.EligibleInvoice, bool) {
	for _, inv := range invoices {
		if inv.InvoiceID == invoiceID {
			return inv, true
		}
	}
	return models.EligibleInvoice{}, false
}
