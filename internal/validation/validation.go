package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pos-offer-engine/internal/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateOffer checks the shared fields and then the variant-specific
// configuration. An offer whose type/subtype combination is not one of the
// four known variants is rejected.
func ValidateOffer(offer models.Offer) error {
	if err := ValidateUUID(offer.ProductID, "product_id"); err != nil {
		return err
	}

	if offer.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Message: "is required"}
	}
	if offer.EndDate.IsZero() {
		return &ValidationError{Field: "end_date", Message: "is required"}
	}
	if offer.EndDate.Before(offer.StartDate) {
		return &ValidationError{Field: "start_date", Message: "must not be after end_date"}
	}

	switch offer.Variant() {
	case models.VariantHitCounter:
		if offer.FestivalName == "" {
			return &ValidationError{Field: "festival_name", Message: "is required"}
		}
		if offer.CustomerLimit <= 0 {
			return &ValidationError{Field: "customer_limit", Message: "must be positive"}
		}
		if err := validatePrizes(offer.Prizes); err != nil {
			return err
		}
	case models.VariantAmountBased:
		if offer.FestivalName == "" {
			return &ValidationError{Field: "festival_name", Message: "is required"}
		}
		if offer.MinimumAmount.LessThanOrEqual(decimal.Zero) {
			return &ValidationError{Field: "minimum_amount", Message: "must be positive"}
		}
		if offer.PrizeName == "" {
			return &ValidationError{Field: "prize_name", Message: "is required"}
		}
	case models.VariantVisitCount:
		if offer.VisitCount <= 0 {
			return &ValidationError{Field: "visit_count", Message: "must be positive"}
		}
		if offer.PrizeName == "" {
			return &ValidationError{Field: "prize_name", Message: "is required"}
		}
	case models.VariantPurchaseAmount:
		if offer.TargetAmount.LessThanOrEqual(decimal.Zero) {
			return &ValidationError{Field: "target_amount", Message: "must be positive"}
		}
		if offer.PrizeName == "" {
			return &ValidationError{Field: "prize_name", Message: "is required"}
		}
	default:
		return &ValidationError{
			Field:   "offer_type",
			Message: "unknown offer type/subtype combination",
		}
	}

	return nil
}

// validatePrizes requires the full first/second/third set, matching the
// hit-counter creation form.
func validatePrizes(prizes []models.Prize) error {
	required := []models.PrizeRank{models.RankFirst, models.RankSecond, models.RankThird}
	seen := make(map[models.PrizeRank]bool)

	for i, p := range prizes {
		if p.Rank != models.RankFirst && p.Rank != models.RankSecond && p.Rank != models.RankThird {
			return &ValidationError{
				Field:   fmt.Sprintf("prizes[%d].rank", i),
				Message: "must be first, second or third",
			}
		}
		if p.PrizeName == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("prizes[%d].prize_name", i),
				Message: "is required",
			}
		}
		if seen[p.Rank] {
			return &ValidationError{
				Field:   "prizes",
				Message: fmt.Sprintf("duplicate rank: %s", p.Rank),
			}
		}
		seen[p.Rank] = true
	}

	for _, rank := range required {
		if !seen[rank] {
			return &ValidationError{
				Field:   "prizes",
				Message: fmt.Sprintf("%s prize details are incomplete", rank),
			}
		}
	}

	return nil
}

// ValidateInvoiceRequest checks a sale-finalize payload before it reaches
// the ledger.
func ValidateInvoiceRequest(req models.CreateInvoiceRequest) error {
	if err := ValidateUUID(req.CustomerID, "customer_id"); err != nil {
		return err
	}

	if req.CustomerName == "" {
		return &ValidationError{Field: "customer_name", Message: "is required"}
	}

	if len(req.Items) == 0 {
		return &ValidationError{Field: "items", Message: "at least one item is required"}
	}

	for i, item := range req.Items {
		if err := ValidateUUID(item.ProductID, fmt.Sprintf("items[%d].product_id", i)); err != nil {
			return err
		}
		if item.Quantity <= 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "must be positive",
			}
		}
		if item.UnitPrice.IsNegative() {
			return &ValidationError{
				Field:   fmt.Sprintf("items[%d].unit_price", i),
				Message: "must be non-negative",
			}
		}
	}

	if req.TotalPayable.IsNegative() {
		return &ValidationError{Field: "total_payable", Message: "must be non-negative"}
	}

	switch req.PaymentMethod {
	case "cash", "upi", "card":
	default:
		return &ValidationError{Field: "payment_method", Message: "must be cash, upi or card"}
	}

	return nil
}

// ValidateRank checks a winner rank value.
func ValidateRank(rank models.PrizeRank) error {
	switch rank {
	case models.RankFirst, models.RankSecond, models.RankThird:
		return nil
	}
	return &ValidationError{Field: "rank", Message: "must be first, second or third"}
}

// SanitizeString strips control characters and surrounding whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateUUID requires a non-empty, parseable UUID.
func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{Field: fieldName, Message: "is required"}
	}

	if _, err := uuid.Parse(SanitizeString(id)); err != nil {
		return &ValidationError{Field: fieldName, Message: "must be a valid UUID"}
	}

	return nil
}

// ValidateTimeString parses an RFC3339 timestamp.
func ValidateTimeString(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, &ValidationError{Field: "time", Message: "is required"}
	}

	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   "time",
			Message: "must be a valid RFC3339 timestamp",
		}
	}

	return t, nil
}
