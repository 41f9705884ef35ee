package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-offer-engine/internal/cache"
	"pos-offer-engine/internal/database"
	"pos-offer-engine/internal/events"
	"pos-offer-engine/internal/features"
	"pos-offer-engine/internal/models"
	"pos-offer-engine/internal/validation"
)

// eligibilityTTL bounds how stale a cached recompute may get before the
// next admin view re-derives it from the ledger.
const eligibilityTTL = 30 * time.Second

// OfferStore is the promotion-definition side of the storage layer.
type OfferStore interface {
	InsertOffer(ctx context.Context, offer models.Offer) error
	GetOffer(ctx context.Context, id string) (models.Offer, error)
	ListOffers(ctx context.Context) ([]models.Offer, error)
	FindActiveOffers(ctx context.Context, productIDs []string, asOf time.Time) ([]models.Offer, error)
	ActiveOffers(ctx context.Context, asOf time.Time) ([]models.Offer, error)
	UpdateOfferStatus(ctx context.Context, id string, status models.OfferStatus) error
}

// Ledger is the query surface over completed sales that all eligibility
// logic reads. Keeping it an interface lets the evaluator run against an
// in-memory fake in tests.
type Ledger interface {
	InsertInvoice(ctx context.Context, inv models.Invoice) error
	GetInvoice(ctx context.Context, id string) (models.Invoice, error)
	CancelInvoice(ctx context.Context, id string) error
	NextInvoiceNumber(ctx context.Context, now time.Time) (string, error)
	FirstPurchasers(ctx context.Context, productID string, start, end time.Time, limit int) ([]models.EligibleInvoice, error)
	CountDistinctPurchasers(ctx context.Context, productID string, start, before time.Time) (int, error)
	HasPriorPurchase(ctx context.Context, customerID, productID string, start, before time.Time) (bool, error)
	CountCustomerPurchases(ctx context.Context, customerID, productID string, start, end time.Time) (int, error)
	SumCustomerPurchases(ctx context.Context, customerID, productID string, start, end time.Time) (decimal.Decimal, error)
	ProductPurchases(ctx context.Context, productID string, start, end time.Time) ([]models.EligibleInvoice, error)
}

// SlotStore allocates and releases hit-counter positions atomically.
type SlotStore interface {
	ClaimSlot(ctx context.Context, offerID, customerID, invoiceID string, limit int) (int, error)
	ReleaseSlotsForInvoice(ctx context.Context, invoiceID string) error
}

// WinnerStore persists announced winners.
type WinnerStore interface {
	InsertWinner(ctx context.Context, w models.Winner) error
	ListWinners(ctx context.Context, offerID string) ([]models.Winner, error)
	HasWinnerForInvoice(ctx context.Context, invoiceID string) (bool, error)
}

// Store is the full storage surface the service needs. *database.DB
// implements it.
type Store interface {
	OfferStore
	Ledger
	SlotStore
	WinnerStore
}

// Service provides the offer qualification and eligibility engine.
type Service struct {
	store    Store
	cache    cache.Cache
	events   *events.Manager
	features *features.Manager
	log      *zap.Logger

	// now is swapped out in tests to control ledger timestamps.
	now func() time.Time
}

// NewService creates a new service instance.
func NewService(store Store, c cache.Cache, ev *events.Manager, ff *features.Manager, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if ev == nil {
		ev = events.NewManager(false)
	}
	return &Service{
		store:    store,
		cache:    c,
		events:   ev,
		features: ff,
		log:      log,
		now:      time.Now,
	}
}

// CreateOffer validates and stores a new offer of one of the four variants.
func (s *Service) CreateOffer(ctx context.Context, offer models.Offer) (models.Offer, error) {
	if err := validation.ValidateOffer(offer); err != nil {
		return models.Offer{}, err
	}

	now := s.now().UTC()
	offer.ID = uuid.New().String()
	offer.Status = models.OfferActive
	offer.SlotsUsed = 0
	offer.CreatedAt = now
	offer.UpdatedAt = now

	if err := s.store.InsertOffer(ctx, offer); err != nil {
		return models.Offer{}, fmt.Errorf("failed to create offer: %w", err)
	}

	s.events.PublishOfferCreated(ctx, offer)
	return offer, nil
}

// GetOffer returns one offer with its announced winners.
func (s *Service) GetOffer(ctx context.Context, id string) (models.Offer, []models.Winner, error) {
	offer, err := s.store.GetOffer(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return models.Offer{}, nil, ErrNotFound
	}
	if err != nil {
		return models.Offer{}, nil, err
	}

	winners, err := s.store.ListWinners(ctx, id)
	if err != nil {
		return models.Offer{}, nil, err
	}

	return offer, winners, nil
}

// ListOffers returns all offers, newest first.
func (s *Service) ListOffers(ctx context.Context) ([]models.Offer, error) {
	return s.store.ListOffers(ctx)
}

// DeactivateOffer moves an active offer to inactive. There is no
// reactivation.
func (s *Service) DeactivateOffer(ctx context.Context, id string) error {
	offer, err := s.store.GetOffer(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if offer.Status != models.OfferActive {
		return ErrOfferNotActive
	}

	return s.store.UpdateOfferStatus(ctx, id, models.OfferInactive)
}

// CreateInvoice finalizes a sale: it evaluates qualifications against every
// matching active offer (claiming hit-counter slots atomically) and
// persists the invoice with the qualification records attached. Evaluation
// failure never blocks the sale; it degrades to an empty qualification set.
func (s *Service) CreateInvoice(ctx context.Context, req models.CreateInvoiceRequest) (models.Invoice, error) {
	if err := validation.ValidateInvoiceRequest(req); err != nil {
		return models.Invoice{}, err
	}

	now := s.now().UTC()
	invoiceID := uuid.New().String()

	number, err := s.store.NextInvoiceNumber(ctx, now)
	if err != nil {
		return models.Invoice{}, fmt.Errorf("failed to generate invoice number: %w", err)
	}

	quals, err := s.evaluate(ctx, req.CustomerID, req.Items, req.TotalPayable, now,
		s.claimingAllocator(invoiceID))
	if err != nil {
		// Qualification is best-effort on the sale path.
		s.log.Warn("offer qualification failed, continuing sale without qualifications",
			zap.String("invoice_id", invoiceID),
			zap.Error(err))
		quals = nil
	}

	inv := models.Invoice{
		ID:             invoiceID,
		InvoiceNumber:  number,
		CustomerID:     req.CustomerID,
		CustomerName:   validation.SanitizeString(req.CustomerName),
		CustomerPhone:  validation.SanitizeString(req.CustomerPhone),
		Items:          req.Items,
		TotalPayable:   req.TotalPayable,
		PaymentMethod:  req.PaymentMethod,
		Status:         models.InvoiceActive,
		CreatedAt:      now,
		Qualifications: quals,
	}

	if err := s.store.InsertInvoice(ctx, inv); err != nil {
		// Free any slots claimed during evaluation so the failed sale
		// doesn't hold hit-counter positions.
		if relErr := s.store.ReleaseSlotsForInvoice(ctx, invoiceID); relErr != nil {
			s.log.Error("failed to release slots after insert failure",
				zap.String("invoice_id", invoiceID),
				zap.Error(relErr))
		}
		return models.Invoice{}, fmt.Errorf("failed to persist invoice: %w", err)
	}

	s.invalidateEligibility(ctx, quals)
	s.events.PublishInvoiceCreated(ctx, inv)

	return inv, nil
}

// GetInvoice returns one ledger entry with items and qualifications.
func (s *Service) GetInvoice(ctx context.Context, id string) (models.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return models.Invoice{}, ErrNotFound
	}
	return inv, err
}

// CancelInvoice moves an invoice to cancelled and releases its hit-counter
// slots. An invoice referenced by an announced winner cannot be cancelled;
// the winner record is durable history.
func (s *Service) CancelInvoice(ctx context.Context, id string) error {
	inv, err := s.store.GetInvoice(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if inv.Status == models.InvoiceCancelled {
		return nil
	}

	attached, err := s.store.HasWinnerForInvoice(ctx, id)
	if err != nil {
		return err
	}
	if attached {
		return ErrWinnerAttached
	}

	// The store releases the invoice's hit-counter slots in the same
	// transaction as the status flip.
	if err := s.store.CancelInvoice(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.invalidateEligibility(ctx, inv.Qualifications)
	s.events.PublishInvoiceCancelled(ctx, id)

	return nil
}

// invalidateEligibility drops cached recompute results for every offer the
// invoice was checked against.
func (s *Service) invalidateEligibility(ctx context.Context, quals []models.Qualification) {
	if s.cache == nil {
		return
	}
	for _, q := range quals {
		if err := s.cache.Delete(ctx, cache.EligibilityKey(q.OfferID)); err != nil {
			s.log.Warn("failed to invalidate eligibility cache",
				zap.String("offer_id", q.OfferID),
				zap.Error(err))
		}
	}
}

func (s *Service) cacheEnabled() bool {
	if s.cache == nil {
		return false
	}
	if s.features == nil {
		return true
	}
	return s.features.IsEnabled(features.FeatureCacheEnabled)
}
