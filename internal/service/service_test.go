package service

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
	"go.uber.org/zap"

	"pos-offer-engine/internal/cache"
	"pos-offer-engine/internal/database"
	"pos-offer-engine/internal/events"
	"pos-offer-engine/internal/features"
	"pos-offer-engine/internal/models"
)

var (
	windowStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	baseTime    = time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ff := features.NewManager()
	ff.Register(features.FeaturePOSProgress, true, "Serve the live offer progress feed")

	svc := NewService(db, cache.NewInMemoryCache(), events.NewManager(false), ff, zap.NewNop())
	svc.now = func() time.Time { return baseTime }
	return svc
}

func setClock(svc *Service, at time.Time) {
	svc.now = func() time.Time { return at }
}

func threePrizes() []models.Prize {
	return []models.Prize{
		{Rank: models.RankFirst, PrizeName: "Gold Coin"},
		{Rank: models.RankSecond, PrizeName: "Silver Coin"},
		{Rank: models.RankThird, PrizeName: "Gift Hamper"},
	}
}

func createHitCounterOffer(t *testing.T, svc *Service, productID string, limit int) models.Offer {
	t.Helper()
	offer, err := svc.CreateOffer(context.Background(), models.Offer{
		ProductID:       productID,
		OfferType:       models.OfferFestival,
		FestivalSubType: models.FestivalHitCounter,
		FestivalName:    "Diwali Dhamaka",
		CustomerLimit:   limit,
		Prizes:          threePrizes(),
		StartDate:       windowStart,
		EndDate:         windowEnd,
	})
	require.NoError(t, err)
	return offer
}

func createAmountBasedOffer(t *testing.T, svc *Service, productID string, minimum int64) models.Offer {
	t.Helper()
	offer, err := svc.CreateOffer(context.Background(), models.Offer{
		ProductID:       productID,
		OfferType:       models.OfferFestival,
		FestivalSubType: models.FestivalAmountBased,
		FestivalName:    "Holi Special",
		MinimumAmount:   decimal.NewFromInt(minimum),
		PrizeName:       "Lucky Draw Entry",
		StartDate:       windowStart,
		EndDate:         windowEnd,
	})
	require.NoError(t, err)
	return offer
}

func createVisitCountOffer(t *testing.T, svc *Service, productID string, visits int) models.Offer {
	t.Helper()
	offer, err := svc.CreateOffer(context.Background(), models.Offer{
		ProductID:      productID,
		OfferType:      models.OfferRegular,
		RegularSubType: models.RegularVisitCount,
		VisitCount:     visits,
		PrizeName:      "Free Sweet Box",
		StartDate:      windowStart,
		EndDate:        windowEnd,
	})
	require.NoError(t, err)
	return offer
}

func createPurchaseAmountOffer(t *testing.T, svc *Service, productID string, target int64) models.Offer {
	t.Helper()
	offer, err := svc.CreateOffer(context.Background(), models.Offer{
		ProductID:      productID,
		OfferType:      models.OfferRegular,
		RegularSubType: models.RegularPurchaseAmount,
		TargetAmount:   decimal.NewFromInt(target),
		PrizeName:      "Discount Voucher",
		StartDate:      windowStart,
		EndDate:        windowEnd,
	})
	require.NoError(t, err)
	return offer
}

func invoiceRequest(customerID, productID string, amount int64) models.CreateInvoiceRequest {
	return models.CreateInvoiceRequest{
		CustomerID:    customerID,
		CustomerName:  "Test Customer",
		CustomerPhone: "9876543210",
		Items: []models.InvoiceItem{
			{ProductID: productID, Name: "Kaju Katli", Quantity: 1, UnitPrice: decimal.NewFromInt(amount)},
		},
		TotalPayable:  decimal.NewFromInt(amount),
		PaymentMethod: "cash",
	}
}

func qualFor(t *testing.T, quals []models.Qualification, offerID string) models.Qualification {
	t.Helper()
	for _, q := range quals {
		if q.OfferID == offerID {
			return q
		}
	}
	t.Fatalf("no qualification for offer %s", offerID)
	return models.Qualification{}
}

func TestNewService_NilOptionalDependencies(t *testing.T) {
	db, err := database.NewDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// Cache, events, features and logger are all optional; every
	// publishing path must work without them.
	svc := NewService(db, nil, nil, nil, nil)
	svc.now = func() time.Time { return baseTime }

	productID := uuid.New().String()
	offer := createAmountBasedOffer(t, svc, productID, 1000)

	inv, err := svc.CreateInvoice(context.Background(), invoiceRequest(uuid.New().String(), productID, 1500))
	require.NoError(t, err)
	assert.True(t, qualFor(t, inv.Qualifications, offer.ID).Qualified)

	set, err := svc.RecomputeEligibility(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Count)

	require.NoError(t, svc.CancelInvoice(context.Background(), inv.ID))
}

func TestCreateOffer_RejectsUnknownVariant(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateOffer(context.Background(), models.Offer{
		ProductID: uuid.New().String(),
		OfferType: models.OfferFestival,
		StartDate: windowStart,
		EndDate:   windowEnd,
	})
	assert.Error(t, err)
}

func TestCreateOffer_RejectsIncompletePrizes(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateOffer(context.Background(), models.Offer{
		ProductID:       uuid.New().String(),
		OfferType:       models.OfferFestival,
		FestivalSubType: models.FestivalHitCounter,
		FestivalName:    "Diwali Dhamaka",
		CustomerLimit:   10,
		Prizes: []models.Prize{
			{Rank: models.RankFirst, PrizeName: "Gold Coin"},
		},
		StartDate: windowStart,
		EndDate:   windowEnd,
	})
	assert.Error(t, err)
}

func TestHitCounter_FirstCustomersTakePositions(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createHitCounterOffer(t, svc, productID, 2)
	ctx := context.Background()

	first, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	q := qualFor(t, first.Qualifications, offer.ID)
	assert.True(t, q.Qualified)
	assert.Equal(t, 1, q.Position)
	assert.Equal(t, "Position 1/2", q.PrizeName)

	setClock(svc, baseTime.Add(time.Minute))
	second, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	q = qualFor(t, second.Qualifications, offer.ID)
	assert.True(t, q.Qualified)
	assert.Equal(t, 2, q.Position)

	setClock(svc, baseTime.Add(2*time.Minute))
	third, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	q = qualFor(t, third.Qualifications, offer.ID)
	assert.False(t, q.Qualified)
	assert.Equal(t, "Offer full (2 customers reached)", q.ProgressToQualify)
}

func TestHitCounter_RepeatPurchaseNeverQualifies(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createHitCounterOffer(t, svc, productID, 5)
	ctx := context.Background()

	customerID := uuid.New().String()
	_, err := svc.CreateInvoice(ctx, invoiceRequest(customerID, productID, 500))
	require.NoError(t, err)

	setClock(svc, baseTime.Add(time.Hour))
	repeat, err := svc.CreateInvoice(ctx, invoiceRequest(customerID, productID, 500))
	require.NoError(t, err)

	q := qualFor(t, repeat.Qualifications, offer.ID)
	assert.False(t, q.Qualified)
	assert.Equal(t, "Already purchased this product in this offer period", q.ProgressToQualify)
}

func TestHitCounter_PreviewDoesNotClaimSlots(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createHitCounterOffer(t, svc, productID, 3)
	ctx := context.Background()

	items := []models.InvoiceItem{
		{ProductID: productID, Name: "Kaju Katli", Quantity: 1, UnitPrice: decimal.NewFromInt(500)},
	}

	// Two separate previews both see the next open position.
	for i := 0; i < 2; i++ {
		quals := svc.Evaluate(ctx, uuid.New().String(), items, decimal.NewFromInt(500), baseTime)
		q := qualFor(t, quals, offer.ID)
		assert.True(t, q.Qualified)
		assert.Equal(t, 1, q.Position)
	}

	// A real sale claims position 1, so the next preview sees position 2.
	_, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)

	setClock(svc, baseTime.Add(time.Minute))
	quals := svc.Evaluate(ctx, uuid.New().String(), items, decimal.NewFromInt(500), baseTime.Add(time.Minute))
	q := qualFor(t, quals, offer.ID)
	assert.True(t, q.Qualified)
	assert.Equal(t, 2, q.Position)
}

func TestAmountBased_ThresholdIsInclusive(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createAmountBasedOffer(t, svc, productID, 1000)
	ctx := context.Background()

	below, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 999))
	require.NoError(t, err)
	q := qualFor(t, below.Qualifications, offer.ID)
	assert.False(t, q.Qualified)
	assert.Equal(t, "Need ₹1.00 more", q.ProgressToQualify)

	setClock(svc, baseTime.Add(time.Minute))
	exact, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 1000))
	require.NoError(t, err)
	q = qualFor(t, exact.Qualifications, offer.ID)
	assert.True(t, q.Qualified)
	assert.Equal(t, "Lucky Draw Entry", q.PrizeName)
}

func TestVisitCount_CurrentInvoiceCounts(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createVisitCountOffer(t, svc, productID, 3)
	ctx := context.Background()
	customerID := uuid.New().String()

	first, err := svc.CreateInvoice(ctx, invoiceRequest(customerID, productID, 200))
	require.NoError(t, err)
	q := qualFor(t, first.Qualifications, offer.ID)
	assert.False(t, q.Qualified)
	assert.Equal(t, "1/3 visits completed", q.ProgressToQualify)

	setClock(svc, baseTime.Add(time.Hour))
	second, err := svc.CreateInvoice(ctx, invoiceRequest(customerID, productID, 200))
	require.NoError(t, err)
	q = qualFor(t, second.Qualifications, offer.ID)
	assert.False(t, q.Qualified)
	assert.Equal(t, "2/3 visits completed", q.ProgressToQualify)

	setClock(svc, baseTime.Add(2*time.Hour))
	third, err := svc.CreateInvoice(ctx, invoiceRequest(customerID, productID, 200))
	require.NoError(t, err)
	q = qualFor(t, third.Qualifications, offer.ID)
	assert.True(t, q.Qualified)
	assert.Equal(t, "Free Sweet Box", q.PrizeName)
}

func TestPurchaseAmount_AccumulatesAcrossVisits(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createPurchaseAmountOffer(t, svc, productID, 5000)
	ctx := context.Background()
	customerID := uuid.New().String()

	first, err := svc.CreateInvoice(ctx, invoiceRequest(customerID, productID, 4500))
	require.NoError(t, err)
	q := qualFor(t, first.Qualifications, offer.ID)
	assert.False(t, q.Qualified)
	assert.Equal(t, "₹4500.00/₹5000 spent", q.ProgressToQualify)

	setClock(svc, baseTime.Add(time.Hour))
	second, err := svc.CreateInvoice(ctx, invoiceRequest(customerID, productID, 600))
	require.NoError(t, err)
	q = qualFor(t, second.Qualifications, offer.ID)
	assert.True(t, q.Qualified)
	assert.Equal(t, "Discount Voucher", q.PrizeName)
}

func TestInvoiceNumberFormat(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	ctx := context.Background()

	first, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 100))
	require.NoError(t, err)
	assert.Equal(t, "INV-RS-000001-01-2025", first.InvoiceNumber)

	second, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 100))
	require.NoError(t, err)
	assert.Equal(t, "INV-RS-000002-01-2025", second.InvoiceNumber)
}

func TestCancelInvoice_FreesSlotAndDropsFromEligibility(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createHitCounterOffer(t, svc, productID, 1)
	ctx := context.Background()

	first, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	assert.True(t, qualFor(t, first.Qualifications, offer.ID).Qualified)

	setClock(svc, baseTime.Add(time.Minute))
	blocked, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	assert.False(t, qualFor(t, blocked.Qualifications, offer.ID).Qualified)

	require.NoError(t, svc.CancelInvoice(ctx, first.ID))

	set, err := svc.RecomputeEligibility(ctx, offer.ID)
	require.NoError(t, err)
	for _, inv := range set.Invoices {
		assert.NotEqual(t, first.ID, inv.InvoiceID)
	}

	// The freed slot is claimable by a later sale.
	setClock(svc, baseTime.Add(2*time.Minute))
	next, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	q := qualFor(t, next.Qualifications, offer.ID)
	assert.True(t, q.Qualified)
	assert.Equal(t, 1, q.Position)
}

func TestCancelInvoice_FreedSlotGoesToNextCustomer(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createHitCounterOffer(t, svc, productID, 2)
	ctx := context.Background()

	first, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	require.Equal(t, 1, qualFor(t, first.Qualifications, offer.ID).Position)

	setClock(svc, baseTime.Add(time.Minute))
	second, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	require.Equal(t, 2, qualFor(t, second.Qualifications, offer.ID).Position)

	// Cancelling the lowest position leaves a gap below a surviving
	// holder; the next customer must still qualify and take it.
	require.NoError(t, svc.CancelInvoice(ctx, first.ID))

	setClock(svc, baseTime.Add(2*time.Minute))
	third, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	q := qualFor(t, third.Qualifications, offer.ID)
	assert.True(t, q.Qualified)
	assert.Equal(t, 1, q.Position)
}

func TestCreateInvoice_ConcurrentSalesGetDistinctNumbers(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()

	var wg sync.WaitGroup
	numbers := make(chan string, 20)
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := svc.CreateInvoice(context.Background(), invoiceRequest(uuid.New().String(), productID, 500))
			if err != nil {
				errs <- err
				return
			}
			numbers <- inv.InvoiceNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Errorf("sale failed: %v", err)
	}
	seen := make(map[string]bool)
	for n := range numbers {
		assert.False(t, seen[n], "invoice number %s issued twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, 20)
}

func TestCancelInvoice_AlreadyCancelledIsNoop(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 100))
	require.NoError(t, err)

	require.NoError(t, svc.CancelInvoice(ctx, inv.ID))
	require.NoError(t, svc.CancelInvoice(ctx, inv.ID))

	got, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceCancelled, got.Status)
}

func TestRecomputeEligibility_HitCounterOrderAndLimit(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createHitCounterOffer(t, svc, productID, 2)
	ctx := context.Background()

	var invoices []models.Invoice
	for i := 0; i < 3; i++ {
		setClock(svc, baseTime.Add(time.Duration(i)*time.Minute))
		inv, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
		require.NoError(t, err)
		invoices = append(invoices, inv)
	}

	set, err := svc.RecomputeEligibility(ctx, offer.ID)
	require.NoError(t, err)
	require.Equal(t, 2, set.Count)
	assert.Equal(t, invoices[0].ID, set.Invoices[0].InvoiceID)
	assert.Equal(t, invoices[1].ID, set.Invoices[1].InvoiceID)
}

func TestRecomputeEligibility_Idempotent(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createPurchaseAmountOffer(t, svc, productID, 1000)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		setClock(svc, baseTime.Add(time.Duration(i)*time.Minute))
		_, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 1500))
		require.NoError(t, err)
	}

	setClock(svc, baseTime.Add(time.Hour))
	first, err := svc.RecomputeEligibility(ctx, offer.ID)
	require.NoError(t, err)
	second, err := svc.RecomputeEligibility(ctx, offer.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecomputeEligibility_PurchaseAmountAggregates(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createPurchaseAmountOffer(t, svc, productID, 5000)
	ctx := context.Background()

	reaches := uuid.New().String()
	falls := uuid.New().String()

	setClock(svc, baseTime)
	_, err := svc.CreateInvoice(ctx, invoiceRequest(reaches, productID, 3000))
	require.NoError(t, err)
	setClock(svc, baseTime.Add(time.Minute))
	_, err = svc.CreateInvoice(ctx, invoiceRequest(reaches, productID, 2500))
	require.NoError(t, err)
	setClock(svc, baseTime.Add(2*time.Minute))
	_, err = svc.CreateInvoice(ctx, invoiceRequest(falls, productID, 1000))
	require.NoError(t, err)

	set, err := svc.RecomputeEligibility(ctx, offer.ID)
	require.NoError(t, err)
	require.Equal(t, 1, set.Count)
	assert.Equal(t, reaches, set.Customers[0].CustomerID)
	assert.Equal(t, 2, set.Customers[0].VisitCount)
	assert.True(t, set.Customers[0].TotalAmount.Equal(decimal.NewFromInt(5500)))
}

func TestAssignWinner_Lifecycle(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createHitCounterOffer(t, svc, productID, 3)
	ctx := context.Background()

	first, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)
	setClock(svc, baseTime.Add(time.Minute))
	second, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)

	winner, err := svc.AssignWinner(ctx, offer.ID, models.AssignWinnerRequest{
		Rank:      models.RankFirst,
		InvoiceID: first.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RankFirst, winner.Rank)
	assert.Equal(t, first.ID, winner.InvoiceID)

	// Each rank is assignable exactly once.
	_, err = svc.AssignWinner(ctx, offer.ID, models.AssignWinnerRequest{
		Rank:      models.RankFirst,
		InvoiceID: second.ID,
	})
	assert.ErrorIs(t, err, ErrDuplicateRank)

	// An invoice outside the eligible set is rejected.
	_, err = svc.AssignWinner(ctx, offer.ID, models.AssignWinnerRequest{
		Rank:      models.RankSecond,
		InvoiceID: uuid.New().String(),
	})
	assert.ErrorIs(t, err, ErrNotEligible)

	// The winning invoice is pinned by the announcement.
	assert.ErrorIs(t, svc.CancelInvoice(ctx, first.ID), ErrWinnerAttached)

	require.NoError(t, svc.CompleteOffer(ctx, offer.ID))

	got, winners, err := svc.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferCompleted, got.Status)
	require.Len(t, winners, 1)

	_, err = svc.AssignWinner(ctx, offer.ID, models.AssignWinnerRequest{
		Rank:      models.RankSecond,
		InvoiceID: second.ID,
	})
	assert.ErrorIs(t, err, ErrOfferCompleted)
}

func TestCompleteOffer_RequiresWinner(t *testing.T) {
	svc := newTestService(t)
	offer := createHitCounterOffer(t, svc, uuid.New().String(), 3)

	assert.ErrorIs(t, svc.CompleteOffer(context.Background(), offer.ID), ErrNoWinners)
}

func TestDrawWinners_NeedsThreeEligible(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createAmountBasedOffer(t, svc, productID, 500)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		setClock(svc, baseTime.Add(time.Duration(i)*time.Minute))
		_, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 800))
		require.NoError(t, err)
	}

	_, err := svc.DrawWinners(ctx, offer.ID)
	assert.ErrorIs(t, err, ErrNotEnoughEligible)

	setClock(svc, baseTime.Add(10*time.Minute))
	_, err = svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 800))
	require.NoError(t, err)

	winners, err := svc.DrawWinners(ctx, offer.ID)
	require.NoError(t, err)
	require.Len(t, winners, 3)

	ranks := map[models.PrizeRank]bool{}
	invoiceIDs := map[string]bool{}
	for _, w := range winners {
		ranks[w.Rank] = true
		invoiceIDs[w.InvoiceID] = true
	}
	assert.Len(t, ranks, 3)
	assert.Len(t, invoiceIDs, 3)

	got, _, err := svc.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferCompleted, got.Status)
}

func TestDeactivateOffer_StopsQualification(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createAmountBasedOffer(t, svc, productID, 500)
	ctx := context.Background()

	require.NoError(t, svc.DeactivateOffer(ctx, offer.ID))
	assert.ErrorIs(t, svc.DeactivateOffer(ctx, offer.ID), ErrOfferNotActive)

	inv, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 800))
	require.NoError(t, err)
	assert.Empty(t, inv.Qualifications)
}

func TestEvaluate_OutsideWindowNoQualifications(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	createAmountBasedOffer(t, svc, productID, 500)

	after := windowEnd.Add(time.Hour)
	items := []models.InvoiceItem{
		{ProductID: productID, Name: "Kaju Katli", Quantity: 1, UnitPrice: decimal.NewFromInt(800)},
	}
	quals := svc.Evaluate(context.Background(), uuid.New().String(), items, decimal.NewFromInt(800), after)
	assert.Empty(t, quals)
}

func TestActiveOfferProgress(t *testing.T) {
	svc := newTestService(t)
	productID := uuid.New().String()
	offer := createHitCounterOffer(t, svc, productID, 10)
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, invoiceRequest(uuid.New().String(), productID, 500))
	require.NoError(t, err)

	progress, err := svc.ActiveOfferProgress(ctx)
	require.NoError(t, err)
	require.Len(t, progress, 1)

	row := progress[0]
	assert.Equal(t, offer.ID, row.OfferID)
	assert.Equal(t, 1, row.CurrentCount)
	assert.Equal(t, 10, row.TargetCount)
	require.Len(t, row.EligibleSample, 1)
	assert.True(t, row.DaysRemaining > 0)
}
