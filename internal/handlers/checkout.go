package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/platform/auth"
	"github.com/refaxia/storefront-api/internal/platform/httpx"
	"github.com/refaxia/storefront-api/internal/services"
)

const (
	maxCheckoutBodySize = 32 * 1024
	maxTaxDocumentSize  = 10 << 20
)

// CheckoutHandlers exposes checkout submission, invoice collection, and order lookup.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	invoices    services.InvoiceService
	middlewares []func(http.Handler) http.Handler
}

// CheckoutOption customises the checkout handler group.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutMiddleware appends middleware applied after authentication, so
// request-scoped identity is available to it. Used for idempotency replay
// protection on submission.
func WithCheckoutMiddleware(mw ...func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		for _, m := range mw {
			if m != nil {
				h.middlewares = append(h.middlewares, m)
			}
		}
	}
}

// NewCheckoutHandlers constructs the checkout endpoints.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, invoices services.InvoiceService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		invoices: invoices,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints onto the provided router. Extra
// middleware registers after authentication so it sees the verified identity.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuthenticated())
	}
	r.Use(h.middlewares...)
	r.Post("/session", h.createSession)
	r.Post("/invoice", h.collectInvoice)
	r.Get("/orders/{orderID}", h.getOrder)
}

type destinationRequest struct {
	Kind      string `json:"kind"`
	AddressID string `json:"address_id"`
	BranchID  string `json:"branch_id"`
}

type invoiceRequest struct {
	Required        bool   `json:"required"`
	RFC             string `json:"rfc"`
	TaxDocumentPath string `json:"tax_document_path"`
}

type createSessionRequest struct {
	Destination  destinationRequest `json:"destination"`
	ContactPhone string             `json:"contact_phone"`
	Invoice      invoiceRequest     `json:"invoice"`
	Email        string             `json:"email"`
}

type createSessionResponse struct {
	OrderID     string `json:"order_id"`
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.identity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}

	session, err := h.checkout.CreateSession(ctx, services.CheckoutCommand{
		UserID: uid,
		Destination: domain.Destination{
			Kind:      domain.DestinationKind(strings.TrimSpace(req.Destination.Kind)),
			AddressID: strings.TrimSpace(req.Destination.AddressID),
			BranchID:  strings.TrimSpace(req.Destination.BranchID),
		},
		ContactPhone: req.ContactPhone,
		Invoice: domain.InvoiceRequest{
			Required:        req.Invoice.Required,
			RFC:             req.Invoice.RFC,
			TaxDocumentPath: req.Invoice.TaxDocumentPath,
		},
		CustomerEmail: req.Email,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, createSessionResponse{
		OrderID:     session.OrderID,
		CheckoutURL: session.CheckoutURL,
		SessionID:   session.SessionID,
		ExpiresAt:   formatTime(session.ExpiresAt),
	})
}

type collectInvoiceResponse struct {
	Required        bool   `json:"required"`
	RFC             string `json:"rfc"`
	TaxDocumentPath string `json:"tax_document_path"`
}

// collectInvoice accepts a multipart form with an "rfc" field and a
// "document" file, stores the document, and returns the invoice data to echo
// back on session creation.
func (h *CheckoutHandlers) collectInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.identity(ctx, w)
	if !ok {
		return
	}
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := r.ParseMultipartForm(maxTaxDocumentSize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid multipart payload: %v", err), http.StatusBadRequest))
		return
	}
	rfc := r.FormValue("rfc")

	file, header, err := r.FormFile("document")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "a tax document file is required", http.StatusBadRequest))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	invoice, err := h.invoices.Collect(ctx, uid, rfc, header.Filename, contentType, file)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, collectInvoiceResponse{
		Required:        invoice.Required,
		RFC:             invoice.RFC,
		TaxDocumentPath: invoice.TaxDocumentPath,
	})
}

type orderLinePayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type orderPayload struct {
	ID           string             `json:"id"`
	Status       string             `json:"status"`
	Lines        []orderLinePayload `json:"lines"`
	Subtotal     int64              `json:"subtotal"`
	ShippingCost int64              `json:"shipping_cost"`
	Total        int64              `json:"total"`
	Currency     string             `json:"currency"`
	CheckoutURL  string             `json:"checkout_url,omitempty"`
	CreatedAt    string             `json:"created_at,omitempty"`
}

func (h *CheckoutHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.identity(ctx, w)
	if !ok {
		return
	}

	order, err := h.checkout.GetOrder(ctx, uid, chi.URLParam(r, "orderID"))
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	payload := orderPayload{
		ID:           order.ID,
		Status:       string(order.Status),
		Lines:        make([]orderLinePayload, 0, len(order.Lines)),
		Subtotal:     order.Subtotal,
		ShippingCost: order.ShippingCost,
		Total:        order.Total,
		Currency:     order.Currency,
		CheckoutURL:  order.CheckoutURL,
		CreatedAt:    formatTime(order.CreatedAt),
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload(line))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CheckoutHandlers) identity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrDestinationRequired):
		httpx.WriteError(ctx, w, httpx.NewError("destination_required", "choose a delivery address or pickup branch", http.StatusConflict))
	case errors.Is(err, services.ErrPhoneRequired):
		httpx.WriteError(ctx, w, httpx.NewError("phone_required", "a 10-digit contact phone is required for pickup", http.StatusConflict))
	case errors.Is(err, services.ErrInvoiceIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_incomplete", "invoice requires a valid RFC and tax document", http.StatusConflict))
	case errors.Is(err, services.ErrCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items", http.StatusConflict))
	case errors.Is(err, services.ErrStockChanged):
		httpx.WriteError(ctx, w, httpx.NewError("stock_changed", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping quote is unavailable for the selected address", http.StatusConflict))
	case errors.Is(err, services.ErrSessionCreationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("session_creation_failed", err.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrInvalidTaxID):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_tax_id", "RFC format is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrUploadFailed):
		httpx.WriteError(ctx, w, httpx.NewError("upload_failed", "tax document upload failed", http.StatusBadGateway))
	case errors.Is(err, services.ErrInvoiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnavailable), errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout operation failed", http.StatusInternalServerError))
	}
}
