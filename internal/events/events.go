package events

import (
	"context"
	"sync"
	"time"

	"pos-offer-engine/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventOfferCreated is emitted when an offer is created
	EventOfferCreated EventType = "offer.created"
	// EventInvoiceCreated is emitted when a sale is finalized
	EventInvoiceCreated EventType = "invoice.created"
	// EventInvoiceCancelled is emitted when an invoice is cancelled
	EventInvoiceCancelled EventType = "invoice.cancelled"
	// EventEligibilityRecomputed is emitted after a batch recompute
	EventEligibilityRecomputed EventType = "eligibility.recomputed"
	// EventWinnerAssigned is emitted when a rank is bound to an invoice
	EventWinnerAssigned EventType = "winner.assigned"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// OfferCreatedData contains data for offer created events.
type OfferCreatedData struct {
	Offer models.Offer
}

// InvoiceCreatedData contains data for invoice created events. Downstream
// consumers (receipt printing, notification dispatch) read the attached
// qualification records from here.
type InvoiceCreatedData struct {
	Invoice        models.Invoice
	Qualifications []models.Qualification
}

// InvoiceCancelledData contains data for invoice cancelled events.
type InvoiceCancelledData struct {
	InvoiceID string
}

// EligibilityRecomputedData contains data for recompute events.
type EligibilityRecomputedData struct {
	OfferID    string
	Count      int
	ComputedAt time.Time
}

// WinnerAssignedData contains data for winner assignment events.
type WinnerAssignedData struct {
	Winner models.Winner
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously so publishing never blocks the sale path.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				_ = err
			}
		}(handler)
	}
}

// PublishOfferCreated publishes an offer created event.
func (m *Manager) PublishOfferCreated(ctx context.Context, offer models.Offer) {
	m.Publish(ctx, EventOfferCreated, OfferCreatedData{Offer: offer})
}

// PublishInvoiceCreated publishes an invoice created event.
func (m *Manager) PublishInvoiceCreated(ctx context.Context, inv models.Invoice) {
	m.Publish(ctx, EventInvoiceCreated, InvoiceCreatedData{
		Invoice:        inv,
		Qualifications: inv.Qualifications,
	})
}

// PublishInvoiceCancelled publishes an invoice cancelled event.
func (m *Manager) PublishInvoiceCancelled(ctx context.Context, invoiceID string) {
	m.Publish(ctx, EventInvoiceCancelled, InvoiceCancelledData{InvoiceID: invoiceID})
}

// PublishEligibilityRecomputed publishes a recompute event.
func (m *Manager) PublishEligibilityRecomputed(ctx context.Context, offerID string, count int) {
	m.Publish(ctx, EventEligibilityRecomputed, EligibilityRecomputedData{
		OfferID:    offerID,
		Count:      count,
		ComputedAt: time.Now(),
	})
}

// PublishWinnerAssigned publishes a winner assignment event.
func (m *Manager) PublishWinnerAssigned(ctx context.Context, w models.Winner) {
	m.Publish(ctx, EventWinnerAssigned, WinnerAssignedData{Winner: w})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
