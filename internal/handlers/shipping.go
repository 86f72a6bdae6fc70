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

const maxQuoteBodySize = 16 * 1024

// ShippingHandlers exposes the shipping quote endpoint.
type ShippingHandlers struct {
	authn    *auth.Authenticator
	shipping services.ShippingService
	carts    services.CartService
}

// NewShippingHandlers constructs the shipping endpoints.
func NewShippingHandlers(authn *auth.Authenticator, shipping services.ShippingService, carts services.CartService) *ShippingHandlers {
	return &ShippingHandlers{
		authn:    authn,
		shipping: shipping,
		carts:    carts,
	}
}

// Routes wires the /shipping endpoints onto the provided router.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuthenticated())
	}
	r.Post("/quote", h.quote)
}

type quoteRequest struct {
	Destination destinationRequest `json:"destination"`
}

type quotePayload struct {
	Cost             int64  `json:"cost"`
	OriginalCost     int64  `json:"original_cost"`
	FreeShipping     bool   `json:"free_shipping"`
	EstimatedArrival string `json:"estimated_arrival,omitempty"`
}

// quote prices the current cart against a destination. Quotes are derived
// values; the client must re-request after any destination or cart change.
func (h *ShippingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.identity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxQuoteBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req quoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.GetCart(ctx, uid)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	quote, err := h.shipping.Quote(ctx, uid, domain.Destination{
		Kind:      domain.DestinationKind(strings.TrimSpace(req.Destination.Kind)),
		AddressID: strings.TrimSpace(req.Destination.AddressID),
		BranchID:  strings.TrimSpace(req.Destination.BranchID),
	}, cart.Lines)
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, quotePayload{
		Cost:             quote.Cost,
		OriginalCost:     quote.OriginalCost,
		FreeShipping:     quote.IsFreeShipping,
		EstimatedArrival: formatTimePtr(quote.EstimatedArrival),
	})
}

func (h *ShippingHandlers) identity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.shipping == nil || h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func writeShippingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrShippingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping quote is unavailable for the selected address", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "shipping operation failed", http.StatusInternalServerError))
	}
}
