package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/refaxia/storefront-api/internal/platform/httpx"
	"github.com/refaxia/storefront-api/internal/services"
)

const (
	defaultCancelledRoute = "/checkout/cancelled"
	defaultOrderRoute     = "/orders"
)

// PaymentReturnHandlers exposes the unauthenticated return and beacon
// endpoints the browser is funnelled into after the hosted payment page.
type PaymentReturnHandlers struct {
	navigation     services.NavigationService
	cancelledRoute string
	orderRoute     string
}

// PaymentReturnOption customises the return handlers.
type PaymentReturnOption func(*PaymentReturnHandlers)

// WithCancelledRoute overrides the landing route for cancelled checkouts.
func WithCancelledRoute(route string) PaymentReturnOption {
	return func(h *PaymentReturnHandlers) {
		if route = strings.TrimSpace(route); route != "" {
			h.cancelledRoute = route
		}
	}
}

// WithOrderRoute overrides the order status route prefix.
func WithOrderRoute(route string) PaymentReturnOption {
	return func(h *PaymentReturnHandlers) {
		if route = strings.TrimSpace(route); route != "" {
			h.orderRoute = route
		}
	}
}

// NewPaymentReturnHandlers constructs the return-navigation endpoints.
func NewPaymentReturnHandlers(navigation services.NavigationService, opts ...PaymentReturnOption) *PaymentReturnHandlers {
	h := &PaymentReturnHandlers{
		navigation:     navigation,
		cancelledRoute: defaultCancelledRoute,
		orderRoute:     defaultOrderRoute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes wires the /payments endpoints onto the provided router. These are
// deliberately unauthenticated: the browser lands here via gateway redirects
// and beacons that carry no token.
func (h *PaymentReturnHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/return", h.handleReturn)
	r.Post("/navigation-cancel", h.handleBeacon)
}

// handleReturn is the guard route. A guard+next pair bounces straight to
// next, recreating the synthetic history entry. Otherwise the expectBack flag
// decides between the cancelled landing page and the order status page.
func (h *PaymentReturnHandlers) handleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if query.Get("guard") != "" {
		if next := sanitizeNext(query.Get("next")); next != "" {
			http.Redirect(w, r, next, http.StatusFound)
			return
		}
	}

	orderID := strings.TrimSpace(query.Get("order"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order query parameter is required", http.StatusBadRequest))
		return
	}
	if h.navigation == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment return handling is unavailable", http.StatusServiceUnavailable))
		return
	}

	outcome, err := h.navigation.HandleReturn(ctx, orderID)
	if err != nil {
		if errors.Is(err, services.ErrReturnOrderNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment return handling is unavailable", http.StatusServiceUnavailable))
		return
	}

	target := h.orderRoute + "/" + url.PathEscape(outcome.OrderID)
	if outcome.Cancelled {
		target = h.cancelledRoute + "?order=" + url.QueryEscape(outcome.OrderID)
	}

	// The redirect carries a plain link too so a no-JS client can follow it.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusFound)
	fmt.Fprintf(w, `<html><body><a href=%q>Continuar</a></body></html>`, target)
}

// handleBeacon is the fire-and-forget cancellation endpoint. It always
// answers 204; the browser never reads the response.
func (h *PaymentReturnHandlers) handleBeacon(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.URL.Query().Get("order"))
	if orderID == "" {
		if err := r.ParseForm(); err == nil {
			orderID = strings.TrimSpace(r.PostFormValue("order"))
		}
	}
	if h.navigation != nil && orderID != "" {
		h.navigation.HandleCancelBeacon(r.Context(), orderID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// sanitizeNext only allows same-site relative paths as bounce targets.
func sanitizeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	if strings.ContainsAny(next, "\r\n") {
		return ""
	}
	return next
}
