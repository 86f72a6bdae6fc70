package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"

	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/platform/auth"
	"github.com/refaxia/storefront-api/internal/platform/idempotency"
	"github.com/refaxia/storefront-api/internal/services"
)

func TestCheckoutHandlersCreateSession(t *testing.T) {
	expires := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	var gotCmd services.CheckoutCommand
	checkout := &stubCheckoutService{
		createSessionFunc: func(ctx context.Context, cmd services.CheckoutCommand) (domain.CheckoutSession, error) {
			gotCmd = cmd
			return domain.CheckoutSession{
				OrderID:     "order-1",
				CheckoutURL: "https://pay.example.com/cs_123",
				SessionID:   "cs_123",
				ExpiresAt:   expires,
			}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, checkout, nil)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := strings.NewReader(`{
		"destination": {"kind": "address", "address_id": "addr-1"},
		"contact_phone": "81 1234 5678",
		"invoice": {"required": true, "rfc": "ABC680524P76", "tax_document_path": "tax/u/doc.pdf"},
		"email": "buyer@example.com"
	}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/checkout/session", body), "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rr.Code, rr.Body.String())
	}

	if gotCmd.UserID != "user-7" {
		t.Fatalf("expected user-7, got %q", gotCmd.UserID)
	}
	if gotCmd.Destination.Kind != domain.DestinationAddress || gotCmd.Destination.AddressID != "addr-1" {
		t.Fatalf("unexpected destination %#v", gotCmd.Destination)
	}
	if !gotCmd.Invoice.Required || gotCmd.Invoice.RFC != "ABC680524P76" {
		t.Fatalf("unexpected invoice %#v", gotCmd.Invoice)
	}
	if gotCmd.CustomerEmail != "buyer@example.com" {
		t.Fatalf("unexpected email %q", gotCmd.CustomerEmail)
	}

	var resp createSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderID != "order-1" || resp.SessionID != "cs_123" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.CheckoutURL != "https://pay.example.com/cs_123" {
		t.Fatalf("unexpected checkout url %q", resp.CheckoutURL)
	}
	if resp.ExpiresAt == "" {
		t.Fatalf("expected expires_at to be set")
	}
}

func TestCheckoutHandlersCreateSessionGateErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"destination", services.ErrDestinationRequired, http.StatusConflict, "destination_required"},
		{"phone", services.ErrPhoneRequired, http.StatusConflict, "phone_required"},
		{"invoice", services.ErrInvoiceIncomplete, http.StatusConflict, "invoice_incomplete"},
		{"empty cart", services.ErrCartEmpty, http.StatusConflict, "cart_empty"},
		{"stock drift", services.ErrStockChanged, http.StatusConflict, "stock_changed"},
		{"shipping", services.ErrShippingUnavailable, http.StatusConflict, "shipping_unavailable"},
		{"gateway", services.ErrSessionCreationFailed, http.StatusBadGateway, "session_creation_failed"},
		{"backend", services.ErrCheckoutUnavailable, http.StatusServiceUnavailable, "checkout_service_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checkout := &stubCheckoutService{
				createSessionFunc: func(ctx context.Context, cmd services.CheckoutCommand) (domain.CheckoutSession, error) {
					return domain.CheckoutSession{}, tc.err
				},
			}
			handler := NewCheckoutHandlers(nil, checkout, nil)
			router := chi.NewRouter()
			router.Route("/checkout", handler.Routes)

			body := strings.NewReader(`{"destination":{"kind":"pickup","branch_id":"branch-1"}}`)
			req := authed(httptest.NewRequest(http.MethodPost, "/checkout/session", body), "user-7")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if code, _ := decodeErrorEnvelope(t, rr); code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, code)
			}
		})
	}
}

func TestCheckoutHandlersCreateSessionUnauthenticated(t *testing.T) {
	handler := NewCheckoutHandlers(nil, &stubCheckoutService{}, nil)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/session", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCheckoutHandlersCollectInvoice(t *testing.T) {
	invoices := &stubInvoiceService{
		collectFunc: func(ctx context.Context, userID, rfc, fileName, contentType string, document io.Reader) (domain.InvoiceRequest, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user %q", userID)
			}
			if rfc != "abc680524p76" {
				t.Fatalf("unexpected rfc %q", rfc)
			}
			if fileName != "constancia.pdf" {
				t.Fatalf("unexpected file name %q", fileName)
			}
			content, err := io.ReadAll(document)
			if err != nil {
				t.Fatalf("failed to read document: %v", err)
			}
			if string(content) != "%PDF-1.4 fake" {
				t.Fatalf("unexpected document content %q", content)
			}
			return domain.InvoiceRequest{
				Required:        true,
				RFC:             "ABC680524P76",
				TaxDocumentPath: "tax/user-7/constancia.pdf",
			}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, &stubCheckoutService{}, invoices)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("rfc", "abc680524p76"); err != nil {
		t.Fatalf("failed to write rfc field: %v", err)
	}
	part, err := form.CreateFormFile("document", "constancia.pdf")
	if err != nil {
		t.Fatalf("failed to create file part: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 fake")); err != nil {
		t.Fatalf("failed to write file part: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("failed to close form: %v", err)
	}

	req := authed(httptest.NewRequest(http.MethodPost, "/checkout/invoice", &buf), "user-7")
	req.Header.Set("Content-Type", form.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rr.Code, rr.Body.String())
	}

	var resp collectInvoiceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Required || resp.RFC != "ABC680524P76" || resp.TaxDocumentPath != "tax/user-7/constancia.pdf" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestCheckoutHandlersCollectInvoiceMissingDocument(t *testing.T) {
	handler := NewCheckoutHandlers(nil, &stubCheckoutService{}, &stubInvoiceService{})
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("rfc", "ABC680524P76"); err != nil {
		t.Fatalf("failed to write rfc field: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("failed to close form: %v", err)
	}

	req := authed(httptest.NewRequest(http.MethodPost, "/checkout/invoice", &buf), "user-7")
	req.Header.Set("Content-Type", form.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCheckoutHandlersCollectInvoiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad rfc", services.ErrInvalidTaxID, http.StatusBadRequest, "invalid_tax_id"},
		{"upload failed", services.ErrUploadFailed, http.StatusBadGateway, "upload_failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			invoices := &stubInvoiceService{
				collectFunc: func(ctx context.Context, userID, rfc, fileName, contentType string, document io.Reader) (domain.InvoiceRequest, error) {
					return domain.InvoiceRequest{}, tc.err
				},
			}
			handler := NewCheckoutHandlers(nil, &stubCheckoutService{}, invoices)
			router := chi.NewRouter()
			router.Route("/checkout", handler.Routes)

			var buf bytes.Buffer
			form := multipart.NewWriter(&buf)
			part, err := form.CreateFormFile("document", "doc.pdf")
			if err != nil {
				t.Fatalf("failed to create file part: %v", err)
			}
			if _, err := part.Write([]byte("doc")); err != nil {
				t.Fatalf("failed to write file part: %v", err)
			}
			if err := form.Close(); err != nil {
				t.Fatalf("failed to close form: %v", err)
			}

			req := authed(httptest.NewRequest(http.MethodPost, "/checkout/invoice", &buf), "user-7")
			req.Header.Set("Content-Type", form.FormDataContentType())
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if code, _ := decodeErrorEnvelope(t, rr); code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, code)
			}
		})
	}
}

func TestCheckoutHandlersGetOrder(t *testing.T) {
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	checkout := &stubCheckoutService{
		getOrderFunc: func(ctx context.Context, userID, orderID string) (domain.Order, error) {
			if userID != "user-7" || orderID != "order-1" {
				t.Fatalf("unexpected args %q/%q", userID, orderID)
			}
			return domain.Order{
				ID:     "order-1",
				UserID: "user-7",
				Lines: []domain.OrderLine{
					{ProductID: "prod-1", Name: "Filtro de aceite", UnitPrice: 25900, Quantity: 2},
				},
				Subtotal:     51800,
				ShippingCost: 14900,
				Total:        66700,
				Currency:     "MXN",
				Status:       domain.OrderPendingPayment,
				CheckoutURL:  "https://pay.example.com/cs_123",
				CreatedAt:    created,
			}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, checkout, nil)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := authed(httptest.NewRequest(http.MethodGet, "/checkout/orders/order-1", nil), "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}

	var resp orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "order-1" || resp.Status != string(domain.OrderPendingPayment) {
		t.Fatalf("unexpected order %#v", resp)
	}
	if resp.Total != 66700 || resp.ShippingCost != 14900 {
		t.Fatalf("unexpected totals %d/%d", resp.Total, resp.ShippingCost)
	}
	if len(resp.Lines) != 1 || resp.Lines[0].ProductID != "prod-1" {
		t.Fatalf("unexpected lines %#v", resp.Lines)
	}
}

func TestCheckoutHandlersGetOrderNotFound(t *testing.T) {
	checkout := &stubCheckoutService{
		getOrderFunc: func(ctx context.Context, userID, orderID string) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderNotFound
		},
	}
	handler := NewCheckoutHandlers(nil, checkout, nil)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := authed(httptest.NewRequest(http.MethodGet, "/checkout/orders/ghost", nil), "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if code, _ := decodeErrorEnvelope(t, rr); code != "order_not_found" {
		t.Fatalf("expected order_not_found, got %q", code)
	}
}

type stubTokenVerifier struct {
	verifyFn func(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if s.verifyFn == nil {
		return nil, auth.ErrTokenInvalid
	}
	return s.verifyFn(ctx, idToken)
}

func TestCheckoutSessionIdempotencyScopedToVerifiedUser(t *testing.T) {
	verifier := &stubTokenVerifier{
		verifyFn: func(_ context.Context, idToken string) (*firebaseauth.Token, error) {
			return &firebaseauth.Token{UID: strings.TrimSuffix(idToken, "-token")}, nil
		},
	}
	authn := auth.NewAuthenticator(verifier)

	var calls int32
	checkout := &stubCheckoutService{
		createSessionFunc: func(_ context.Context, cmd services.CheckoutCommand) (domain.CheckoutSession, error) {
			atomic.AddInt32(&calls, 1)
			return domain.CheckoutSession{
				OrderID:     "order-for-" + cmd.UserID,
				SessionID:   "cs_" + cmd.UserID,
				CheckoutURL: "https://pay.example.com/cs_" + cmd.UserID,
			}, nil
		},
	}

	replay := idempotency.Middleware(idempotency.NewMemoryStore())
	handler := NewCheckoutHandlers(authn, checkout, nil, WithCheckoutMiddleware(replay))
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	send := func(token string) *httptest.ResponseRecorder {
		body := strings.NewReader(`{"destination": {"kind": "pickup", "branch_id": "branch-1"}, "contact_phone": "8112345678"}`)
		req := httptest.NewRequest(http.MethodPost, "/checkout/session", body)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "key-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send("alice-token")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", first.Code, first.Body.String())
	}
	if !strings.Contains(first.Body.String(), "order-for-alice") {
		t.Fatalf("unexpected first response %q", first.Body.String())
	}

	second := send("alice-token")
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatal("expected replay for the same user and key")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay must return the stored response, got %q", second.Body.String())
	}

	other := send("bob-token")
	if other.Header().Get("X-Idempotent-Replay") != "" {
		t.Fatal("keys must be scoped to the verified user")
	}
	if !strings.Contains(other.Body.String(), "order-for-bob") {
		t.Fatalf("expected a fresh session for the second user, got %q", other.Body.String())
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected one session per user, service ran %d times", got)
	}
}
