package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferType is the top-level promotion family.
type OfferType string

const (
	OfferFestival OfferType = "festival"
	OfferRegular  OfferType = "regular"
)

// FestivalSubType narrows festival offers.
type FestivalSubType string

const (
	FestivalHitCounter  FestivalSubType = "hitCounter"
	FestivalAmountBased FestivalSubType = "amountBased"
)

// RegularSubType narrows regular offers.
type RegularSubType string

const (
	RegularVisitCount     RegularSubType = "visitCount"
	RegularPurchaseAmount RegularSubType = "purchaseAmount"
)

// OfferVariant is the combined discriminator used for exhaustive dispatch.
type OfferVariant string

const (
	VariantHitCounter     OfferVariant = "festival/hitCounter"
	VariantAmountBased    OfferVariant = "festival/amountBased"
	VariantVisitCount     OfferVariant = "regular/visitCount"
	VariantPurchaseAmount OfferVariant = "regular/purchaseAmount"
	VariantUnknown        OfferVariant = "unknown"
)

// OfferStatus is the offer lifecycle state.
type OfferStatus string

const (
	OfferActive    OfferStatus = "active"
	OfferInactive  OfferStatus = "inactive"
	OfferCompleted OfferStatus = "completed"
)

// InvoiceStatus is the ledger entry state. Only active invoices count
// toward eligibility.
type InvoiceStatus string

const (
	InvoiceActive    InvoiceStatus = "active"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// PrizeRank orders hit-counter prizes.
type PrizeRank string

const (
	RankFirst  PrizeRank = "first"
	RankSecond PrizeRank = "second"
	RankThird  PrizeRank = "third"
)

// Prize is one ranked prize of a hit-counter offer.
type Prize struct {
	Rank      PrizeRank `json:"rank"`
	PrizeName string    `json:"prize_name"`
	ImageURL  string    `json:"image_url"`
}

// Winner binds a rank of a hit-counter offer to a qualifying invoice.
// Once announced it is durable history.
type Winner struct {
	OfferID      string    `json:"offer_id"`
	Rank         PrizeRank `json:"rank"`
	InvoiceID    string    `json:"invoice_id"`
	CustomerName string    `json:"customer_name"`
	MobileNumber string    `json:"mobile_number"`
	AnnouncedAt  time.Time `json:"announced_at"`
}

// Offer represents one promotion. The four variants share this struct;
// Variant() tells which of the per-variant fields are meaningful.
type Offer struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OfferType OfferType `json:"offer_type"`

	FestivalSubType FestivalSubType `json:"festival_sub_type,omitempty"`
	RegularSubType  RegularSubType  `json:"regular_sub_type,omitempty"`

	// Festival fields
	FestivalName  string          `json:"festival_name,omitempty"`
	CustomerLimit int             `json:"customer_limit,omitempty"` // hitCounter
	MinimumAmount decimal.Decimal `json:"minimum_amount"`           // amountBased
	Prizes        []Prize         `json:"prizes,omitempty"`         // hitCounter

	// Regular fields
	VisitCount   int             `json:"visit_count,omitempty"` // visitCount
	TargetAmount decimal.Decimal `json:"target_amount"`         // purchaseAmount

	PrizeName     string `json:"prize_name,omitempty"`
	PrizeImageURL string `json:"prize_image_url,omitempty"`

	StartDate time.Time   `json:"start_date"` // window inclusive
	EndDate   time.Time   `json:"end_date"`   // window inclusive
	Status    OfferStatus `json:"status"`

	// SlotsUsed is the monotonic hit-counter slot counter, maintained by
	// the storage layer.
	SlotsUsed int `json:"slots_used,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Variant returns the combined type/subtype discriminator.
func (o *Offer) Variant() OfferVariant {
	switch {
	case o.OfferType == OfferFestival && o.FestivalSubType == FestivalHitCounter:
		return VariantHitCounter
	case o.OfferType == OfferFestival && o.FestivalSubType == FestivalAmountBased:
		return VariantAmountBased
	case o.OfferType == OfferRegular && o.RegularSubType == RegularVisitCount:
		return VariantVisitCount
	case o.OfferType == OfferRegular && o.RegularSubType == RegularPurchaseAmount:
		return VariantPurchaseAmount
	}
	return VariantUnknown
}

// DisplayName returns the label written into qualification records.
func (o *Offer) DisplayName() string {
	switch o.Variant() {
	case VariantHitCounter, VariantAmountBased:
		if o.FestivalName != "" {
			return o.FestivalName
		}
		return "Festival Offer"
	case VariantVisitCount:
		return "Regular Visit Reward"
	case VariantPurchaseAmount:
		return "Purchase Amount Reward"
	}
	return "Offer"
}

// WindowContains reports whether t falls inside the inclusive offer window.
func (o *Offer) WindowContains(t time.Time) bool {
	return !t.Before(o.StartDate) && !t.After(o.EndDate)
}

// InvoiceItem is one line of a sale.
type InvoiceItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Qualification is the per-offer result attached to an invoice at creation
// time. It is written once and never rewritten by later sales.
type Qualification struct {
	OfferID           string          `json:"offer_id"`
	OfferName         string          `json:"offer_name"`
	OfferType         OfferType       `json:"offer_type"`
	FestivalSubType   FestivalSubType `json:"festival_sub_type,omitempty"`
	RegularSubType    RegularSubType  `json:"regular_sub_type,omitempty"`
	Qualified         bool            `json:"qualified"`
	PrizeName         string          `json:"prize_name,omitempty"`
	Position          int             `json:"position,omitempty"`
	ProgressToQualify string          `json:"progress_to_qualify,omitempty"`
}

// Invoice is one ledger entry. Immutable after creation except for the
// status transition to cancelled.
type Invoice struct {
	ID             string          `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	CustomerID     string          `json:"customer_id"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	Items          []InvoiceItem   `json:"items"`
	TotalPayable   decimal.Decimal `json:"total_payable"`
	PaymentMethod  string          `json:"payment_method"`
	Status         InvoiceStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	Qualifications []Qualification `json:"qualifications,omitempty"`
}

// EligibleInvoice is an invoice-shaped eligibility entry (festival variants).
type EligibleInvoice struct {
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EligibleCustomer is a customer-shaped eligibility entry (regular variants).
type EligibleCustomer struct {
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	MobileNumber string          `json:"mobile_number"`
	VisitCount   int             `json:"visit_count,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// EligibilitySet is the variant-shaped output of an eligibility recompute.
// Festival variants fill Invoices, regular variants fill Customers.
type EligibilitySet struct {
	OfferID     string             `json:"offer_id"`
	Variant     OfferVariant       `json:"variant"`
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`
	Count       int                `json:"count"`
	Invoices    []EligibleInvoice  `json:"invoices,omitempty"`
	Customers   []EligibleCustomer `json:"customers,omitempty"`
	ComputedAt  time.Time          `json:"computed_at"`
}

// OfferProgress is the live per-offer progress row shown on the POS banner.
type OfferProgress struct {
	OfferID          string             `json:"offer_id"`
	Variant          OfferVariant       `json:"variant"`
	FestivalName     string             `json:"festival_name,omitempty"`
	ProductID        string             `json:"product_id"`
	StartDate        time.Time          `json:"start_date"`
	EndDate          time.Time          `json:"end_date"`
	CurrentCount     int                `json:"current_count"`
	TargetCount      int                `json:"target_count,omitempty"`
	EligibleSample   []EligibleCustomer `json:"eligible_sample,omitempty"`
	PrizeName        string             `json:"prize_name,omitempty"`
	Prizes           []Prize            `json:"prizes,omitempty"`
	DaysRemaining    int                `json:"days_remaining"`
	HoursRemaining   int                `json:"hours_remaining"`
	MinutesRemaining int                `json:"minutes_remaining"`
}

// CreateInvoiceRequest is the sale-finalize payload.
type CreateInvoiceRequest struct {
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Items         []InvoiceItem   `json:"items"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
	PaymentMethod string          `json:"payment_method"`
}

// EvaluateRequest asks for a read-only qualification preview.
type EvaluateRequest struct {
	CustomerID   string          `json:"customer_id"`
	Items        []InvoiceItem   `json:"items"`
	TotalPayable decimal.Decimal `json:"total_payable"`
	InvoiceDate  *time.Time      `json:"invoice_date,omitempty"`
}

// EvaluateResponse carries the preview results.
type EvaluateResponse struct {
	CustomerID     string          `json:"customer_id"`
	Qualifications []Qualification `json:"qualifications"`
	EvaluatedAt    time.Time       `json:"evaluated_at"`
}

// AssignWinnerRequest binds a rank to an invoice.
type AssignWinnerRequest struct {
	Rank      PrizeRank `json:"rank"`
	InvoiceID string    `json:"invoice_id"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
