package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pos-offer-engine/internal/models"
	"pos-offer-engine/internal/service"
	"pos-offer-engine/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 10 << 20, // 10MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// CreateOffer handles POST /offers
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.Offer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.ProductID = validation.SanitizeString(req.ProductID)
	req.FestivalName = validation.SanitizeString(req.FestivalName)
	req.PrizeName = validation.SanitizeString(req.PrizeName)
	for i := range req.Prizes {
		req.Prizes[i].PrizeName = validation.SanitizeString(req.Prizes[i].PrizeName)
		req.Prizes[i].ImageURL = validation.SanitizeString(req.Prizes[i].ImageURL)
	}

	offer, err := h.service.CreateOffer(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, offer)
}

// ListOffers handles GET /offers
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.ListOffers(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, offers)
}

// GetOffer handles GET /offers/{offer_id}
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	offerID := validation.SanitizeString(chi.URLParam(r, "offer_id"))
	if offerID == "" {
		h.respondError(w, http.StatusBadRequest, "offer_id is required")
		return
	}

	offer, winners, err := h.service.GetOffer(r.Context(), offerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, struct {
		models.Offer
		Winners []models.Winner `json:"winners,omitempty"`
	}{Offer: offer, Winners: winners})
}

// DeactivateOffer handles POST /offers/{offer_id}/deactivate
func (h *Handler) DeactivateOffer(w http.ResponseWriter, r *http.Request) {
	offerID := validation.SanitizeString(chi.URLParam(r, "offer_id"))
	if offerID == "" {
		h.respondError(w, http.StatusBadRequest, "offer_id is required")
		return
	}

	if err := h.service.DeactivateOffer(r.Context(), offerID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "inactive"})
}

// GetEligible handles GET /offers/{offer_id}/eligible
func (h *Handler) GetEligible(w http.ResponseWriter, r *http.Request) {
	offerID := validation.SanitizeString(chi.URLParam(r, "offer_id"))
	if offerID == "" {
		h.respondError(w, http.StatusBadRequest, "offer_id is required")
		return
	}

	set, err := h.service.RecomputeEligibility(r.Context(), offerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, set)
}

// AssignWinner handles POST /offers/{offer_id}/winners
func (h *Handler) AssignWinner(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	offerID := validation.SanitizeString(chi.URLParam(r, "offer_id"))
	if offerID == "" {
		h.respondError(w, http.StatusBadRequest, "offer_id is required")
		return
	}

	var req models.AssignWinnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}
	req.InvoiceID = validation.SanitizeString(req.InvoiceID)

	winner, err := h.service.AssignWinner(r.Context(), offerID, req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, winner)
}

// DrawWinners handles POST /offers/{offer_id}/winners/draw
func (h *Handler) DrawWinners(w http.ResponseWriter, r *http.Request) {
	offerID := validation.SanitizeString(chi.URLParam(r, "offer_id"))
	if offerID == "" {
		h.respondError(w, http.StatusBadRequest, "offer_id is required")
		return
	}

	winners, err := h.service.DrawWinners(r.Context(), offerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, winners)
}

// CompleteOffer handles POST /offers/{offer_id}/complete
func (h *Handler) CompleteOffer(w http.ResponseWriter, r *http.Request) {
	offerID := validation.SanitizeString(chi.URLParam(r, "offer_id"))
	if offerID == "" {
		h.respondError(w, http.StatusBadRequest, "offer_id is required")
		return
	}

	if err := h.service.CompleteOffer(r.Context(), offerID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// OfferProgress handles GET /offers/progress
func (h *Handler) OfferProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.ActiveOfferProgress(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, progress)
}

// CreateInvoice handles POST /invoices
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.CustomerID = validation.SanitizeString(req.CustomerID)
	req.CustomerName = validation.SanitizeString(req.CustomerName)
	req.CustomerPhone = validation.SanitizeString(req.CustomerPhone)
	for i := range req.Items {
		req.Items[i].ProductID = validation.SanitizeString(req.Items[i].ProductID)
		req.Items[i].Name = validation.SanitizeString(req.Items[i].Name)
	}

	inv, err := h.service.CreateInvoice(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, inv)
}

// GetInvoice handles GET /invoices/{invoice_id}
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID := validation.SanitizeString(chi.URLParam(r, "invoice_id"))
	if invoiceID == "" {
		h.respondError(w, http.StatusBadRequest, "invoice_id is required")
		return
	}

	inv, err := h.service.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, inv)
}

// CancelInvoice handles POST /invoices/{invoice_id}/cancel
func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID := validation.SanitizeString(chi.URLParam(r, "invoice_id"))
	if invoiceID == "" {
		h.respondError(w, http.StatusBadRequest, "invoice_id is required")
		return
	}

	if err := h.service.CancelInvoice(r.Context(), invoiceID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// PreviewQualifications handles POST /qualifications/preview
func (h *Handler) PreviewQualifications(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.CustomerID = validation.SanitizeString(req.CustomerID)
	if req.CustomerID == "" {
		h.respondError(w, http.StatusBadRequest, "customer_id is required")
		return
	}
	if len(req.Items) == 0 {
		h.respondError(w, http.StatusBadRequest, "items are required")
		return
	}

	invoiceDate := time.Now().UTC()
	if req.InvoiceDate != nil {
		invoiceDate = req.InvoiceDate.UTC()
	}

	quals := h.service.Evaluate(r.Context(), req.CustomerID, req.Items, req.TotalPayable, invoiceDate)

	h.respondJSON(w, http.StatusOK, models.EvaluateResponse{
		CustomerID:     req.CustomerID,
		Qualifications: quals,
		EvaluatedAt:    invoiceDate,
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondServiceError maps service errors to HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var vErr *validation.ValidationError
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateRank),
		errors.Is(err, service.ErrWinnerAttached),
		errors.Is(err, service.ErrOfferCompleted),
		errors.Is(err, service.ErrOfferNotActive):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotEligible),
		errors.Is(err, service.ErrNotHitCounter),
		errors.Is(err, service.ErrNoWinners),
		errors.Is(err, service.ErrNotEnoughEligible):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &vErr):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
