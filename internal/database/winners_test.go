package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-offer-engine/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "slots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertHitCounterOffer(t *testing.T, db *DB, limit int) models.Offer {
	t.Helper()

	offer := models.Offer{
		ID:              uuid.New().String(),
		ProductID:       uuid.New().String(),
		OfferType:       models.OfferFestival,
		FestivalSubType: models.FestivalHitCounter,
		FestivalName:    "Diwali Dhamaka",
		CustomerLimit:   limit,
		Prizes: []models.Prize{
			{Rank: models.RankFirst, PrizeName: "Gold Coin"},
			{Rank: models.RankSecond, PrizeName: "Silver Coin"},
			{Rank: models.RankThird, PrizeName: "Gift Hamper"},
		},
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Status:    models.OfferActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.InsertOffer(context.Background(), offer))
	return offer
}

func TestClaimSlot_SequentialPositions(t *testing.T) {
	db := newTestDB(t)
	offer := insertHitCounterOffer(t, db, 3)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		pos, err := db.ClaimSlot(ctx, offer.ID, uuid.New().String(), uuid.New().String(), offer.CustomerLimit)
		require.NoError(t, err)
		assert.Equal(t, want, pos)
	}

	_, err := db.ClaimSlot(ctx, offer.ID, uuid.New().String(), uuid.New().String(), offer.CustomerLimit)
	assert.ErrorIs(t, err, ErrSlotsExhausted)
}

func TestClaimSlot_OneSlotPerCustomer(t *testing.T) {
	db := newTestDB(t)
	offer := insertHitCounterOffer(t, db, 5)
	ctx := context.Background()

	customerID := uuid.New().String()
	_, err := db.ClaimSlot(ctx, offer.ID, customerID, uuid.New().String(), offer.CustomerLimit)
	require.NoError(t, err)

	_, err = db.ClaimSlot(ctx, offer.ID, customerID, uuid.New().String(), offer.CustomerLimit)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestClaimSlot_NeverExceedsLimitUnderContention(t *testing.T) {
	db := newTestDB(t)
	offer := insertHitCounterOffer(t, db, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan int, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pos, err := db.ClaimSlot(ctx, offer.ID, uuid.New().String(), uuid.New().String(), offer.CustomerLimit)
			if err == nil {
				results <- pos
			}
		}()
	}
	wg.Wait()
	close(results)

	positions := make(map[int]bool)
	for pos := range results {
		assert.False(t, positions[pos], "position %d claimed twice", pos)
		positions[pos] = true
	}
	assert.Len(t, positions, 5)
}

func TestReleaseSlotsForInvoice(t *testing.T) {
	db := newTestDB(t)
	offer := insertHitCounterOffer(t, db, 1)
	ctx := context.Background()

	invoiceID := uuid.New().String()
	_, err := db.ClaimSlot(ctx, offer.ID, uuid.New().String(), invoiceID, offer.CustomerLimit)
	require.NoError(t, err)

	_, err = db.ClaimSlot(ctx, offer.ID, uuid.New().String(), uuid.New().String(), offer.CustomerLimit)
	require.ErrorIs(t, err, ErrSlotsExhausted)

	require.NoError(t, db.ReleaseSlotsForInvoice(ctx, invoiceID))

	pos, err := db.ClaimSlot(ctx, offer.ID, uuid.New().String(), uuid.New().String(), offer.CustomerLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestClaimSlot_ReclaimsFreedPosition(t *testing.T) {
	db := newTestDB(t)
	offer := insertHitCounterOffer(t, db, 3)
	ctx := context.Background()

	firstInvoice := uuid.New().String()
	_, err := db.ClaimSlot(ctx, offer.ID, uuid.New().String(), firstInvoice, offer.CustomerLimit)
	require.NoError(t, err)
	for want := 2; want <= 3; want++ {
		pos, err := db.ClaimSlot(ctx, offer.ID, uuid.New().String(), uuid.New().String(), offer.CustomerLimit)
		require.NoError(t, err)
		require.Equal(t, want, pos)
	}

	require.NoError(t, db.ReleaseSlotsForInvoice(ctx, firstInvoice))

	// Position 1 is free while 2 and 3 stay taken; the next claim must
	// fill the gap, not collide with a surviving holder.
	pos, err := db.ClaimSlot(ctx, offer.ID, uuid.New().String(), uuid.New().String(), offer.CustomerLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	_, err = db.ClaimSlot(ctx, offer.ID, uuid.New().String(), uuid.New().String(), offer.CustomerLimit)
	assert.ErrorIs(t, err, ErrSlotsExhausted)
}

func TestCancelInvoice_FreesSlotsWithStatusFlip(t *testing.T) {
	db := newTestDB(t)
	offer := insertHitCounterOffer(t, db, 1)
	ctx := context.Background()

	invoiceID := uuid.New().String()
	customerID := uuid.New().String()
	_, err := db.ClaimSlot(ctx, offer.ID, customerID, invoiceID, offer.CustomerLimit)
	require.NoError(t, err)

	require.NoError(t, db.InsertInvoice(ctx, models.Invoice{
		ID:            invoiceID,
		InvoiceNumber: "INV-RS-000001-01-2025",
		CustomerID:    customerID,
		CustomerName:  "Test Customer",
		Items: []models.InvoiceItem{
			{ProductID: offer.ProductID, Name: "Kaju Katli", Quantity: 1, UnitPrice: decimal.NewFromInt(500)},
		},
		TotalPayable:  decimal.NewFromInt(500),
		PaymentMethod: "cash",
		Status:        models.InvoiceActive,
		CreatedAt:     time.Now().UTC(),
	}))

	require.NoError(t, db.CancelInvoice(ctx, invoiceID))

	inv, err := db.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceCancelled, inv.Status)

	pos, err := db.ClaimSlot(ctx, offer.ID, uuid.New().String(), uuid.New().String(), offer.CustomerLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestInsertWinner_DuplicateRank(t *testing.T) {
	db := newTestDB(t)
	offer := insertHitCounterOffer(t, db, 3)
	ctx := context.Background()

	w := models.Winner{
		OfferID:      offer.ID,
		Rank:         models.RankFirst,
		InvoiceID:    uuid.New().String(),
		CustomerName: "Test Customer",
		MobileNumber: "9876543210",
		AnnouncedAt:  time.Now().UTC(),
	}
	require.NoError(t, db.InsertWinner(ctx, w))

	w.InvoiceID = uuid.New().String()
	assert.ErrorIs(t, db.InsertWinner(ctx, w), ErrDuplicateRank)
}
