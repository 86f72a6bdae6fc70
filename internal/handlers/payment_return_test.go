package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/refaxia/storefront-api/internal/services"
)

func TestPaymentReturnGuardBounce(t *testing.T) {
	navigation := &stubNavigationService{
		handleReturnFunc: func(ctx context.Context, orderID string) (services.ReturnOutcome, error) {
			t.Fatalf("guard bounce must not consume the return flag")
			return services.ReturnOutcome{}, nil
		},
	}
	handler := NewPaymentReturnHandlers(navigation)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	target := "/payments/return?guard=1&next=" + url.QueryEscape("/payments/return?order=order-1")
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/payments/return?order=order-1" {
		t.Fatalf("unexpected bounce target %q", loc)
	}
}

func TestPaymentReturnGuardRejectsOffsiteNext(t *testing.T) {
	cases := []string{
		"https://evil.example.com/",
		"//evil.example.com/",
		"/ok\r\nSet-Cookie: x=1",
		"",
	}

	for _, next := range cases {
		navigation := &stubNavigationService{
			handleReturnFunc: func(ctx context.Context, orderID string) (services.ReturnOutcome, error) {
				return services.ReturnOutcome{OrderID: orderID}, nil
			},
		}
		handler := NewPaymentReturnHandlers(navigation)
		router := chi.NewRouter()
		router.Route("/payments", handler.Routes)

		target := "/payments/return?guard=1&order=order-1&next=" + url.QueryEscape(next)
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		// An unusable next falls through to normal return handling.
		if rr.Code != http.StatusFound {
			t.Fatalf("next %q: expected status 302, got %d", next, rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "/orders/order-1" {
			t.Fatalf("next %q: unexpected redirect %q", next, loc)
		}
	}
}

func TestPaymentReturnCancelsOnFirstHit(t *testing.T) {
	navigation := &stubNavigationService{
		handleReturnFunc: func(ctx context.Context, orderID string) (services.ReturnOutcome, error) {
			if orderID != "order-1" {
				t.Fatalf("unexpected order %q", orderID)
			}
			return services.ReturnOutcome{OrderID: "order-1", Cancelled: true}, nil
		},
	}
	handler := NewPaymentReturnHandlers(navigation)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/payments/return?order=order-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if loc != "/checkout/cancelled?order=order-1" {
		t.Fatalf("unexpected redirect %q", loc)
	}
	if !strings.Contains(rr.Body.String(), `href="/checkout/cancelled?order=order-1"`) {
		t.Fatalf("expected fallback link in body, got %q", rr.Body.String())
	}
}

func TestPaymentReturnSecondHitGoesToOrder(t *testing.T) {
	navigation := &stubNavigationService{
		handleReturnFunc: func(ctx context.Context, orderID string) (services.ReturnOutcome, error) {
			return services.ReturnOutcome{OrderID: orderID, Cancelled: false}, nil
		},
	}
	handler := NewPaymentReturnHandlers(navigation)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/payments/return?order=order-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/orders/order-1" {
		t.Fatalf("unexpected redirect %q", loc)
	}
}

func TestPaymentReturnCustomRoutes(t *testing.T) {
	navigation := &stubNavigationService{
		handleReturnFunc: func(ctx context.Context, orderID string) (services.ReturnOutcome, error) {
			return services.ReturnOutcome{OrderID: orderID, Cancelled: true}, nil
		},
	}
	handler := NewPaymentReturnHandlers(navigation,
		WithCancelledRoute("/compra/cancelada"),
		WithOrderRoute("/compra/pedidos"),
	)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/payments/return?order=order-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if loc := rr.Header().Get("Location"); loc != "/compra/cancelada?order=order-1" {
		t.Fatalf("unexpected redirect %q", loc)
	}
}

func TestPaymentReturnMissingOrder(t *testing.T) {
	handler := NewPaymentReturnHandlers(&stubNavigationService{})
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/payments/return", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPaymentReturnOrderNotFound(t *testing.T) {
	navigation := &stubNavigationService{
		handleReturnFunc: func(ctx context.Context, orderID string) (services.ReturnOutcome, error) {
			return services.ReturnOutcome{}, services.ErrReturnOrderNotFound
		},
	}
	handler := NewPaymentReturnHandlers(navigation)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/payments/return?order=ghost", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if code, _ := decodeErrorEnvelope(t, rr); code != "order_not_found" {
		t.Fatalf("expected order_not_found, got %q", code)
	}
}

func TestPaymentBeaconAlwaysNoContent(t *testing.T) {
	var gotOrder string
	navigation := &stubNavigationService{
		beaconFunc: func(ctx context.Context, orderID string) {
			gotOrder = orderID
		},
	}
	handler := NewPaymentReturnHandlers(navigation)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/payments/navigation-cancel?order=order-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if gotOrder != "order-1" {
		t.Fatalf("expected order-1, got %q", gotOrder)
	}
}

func TestPaymentBeaconAcceptsFormBody(t *testing.T) {
	var gotOrder string
	navigation := &stubNavigationService{
		beaconFunc: func(ctx context.Context, orderID string) {
			gotOrder = orderID
		},
	}
	handler := NewPaymentReturnHandlers(navigation)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	body := strings.NewReader("order=order-2")
	req := httptest.NewRequest(http.MethodPost, "/payments/navigation-cancel", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if gotOrder != "order-2" {
		t.Fatalf("expected order-2, got %q", gotOrder)
	}
}

func TestPaymentBeaconWithoutOrderStillNoContent(t *testing.T) {
	navigation := &stubNavigationService{
		beaconFunc: func(ctx context.Context, orderID string) {
			t.Fatalf("beacon must not fire without an order id")
		},
	}
	handler := NewPaymentReturnHandlers(navigation)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/payments/navigation-cancel", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestSanitizeNext(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/payments/return?order=o1", "/payments/return?order=o1"},
		{"  /cart  ", "/cart"},
		{"https://evil.example.com", ""},
		{"//evil.example.com", ""},
		{"/ok\nX: y", ""},
		{"", ""},
		{"relative/path", ""},
	}

	for _, tc := range cases {
		if got := sanitizeNext(tc.in); got != tc.want {
			t.Fatalf("sanitizeNext(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
