package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/platform/auth"
	"github.com/refaxia/storefront-api/internal/services"
)

var errStubNotWired = errors.New("stub not wired")

type stubCartService struct {
	getCartFunc        func(ctx context.Context, userID string) (domain.Cart, error)
	addLineFunc        func(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error)
	updateQuantityFunc func(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error)
	removeLineFunc     func(ctx context.Context, userID, productID string) (domain.Cart, error)
	clearCartFunc      func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getCartFunc == nil {
		return domain.Cart{}, errStubNotWired
	}
	return s.getCartFunc(ctx, userID)
}

func (s *stubCartService) AddLine(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if s.addLineFunc == nil {
		return domain.Cart{}, errStubNotWired
	}
	return s.addLineFunc(ctx, userID, productID, quantity)
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if s.updateQuantityFunc == nil {
		return domain.Cart{}, errStubNotWired
	}
	return s.updateQuantityFunc(ctx, userID, productID, quantity)
}

func (s *stubCartService) RemoveLine(ctx context.Context, userID, productID string) (domain.Cart, error) {
	if s.removeLineFunc == nil {
		return domain.Cart{}, errStubNotWired
	}
	return s.removeLineFunc(ctx, userID, productID)
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearCartFunc == nil {
		return errStubNotWired
	}
	return s.clearCartFunc(ctx, userID)
}

type stubCheckoutService struct {
	createSessionFunc func(ctx context.Context, cmd services.CheckoutCommand) (domain.CheckoutSession, error)
	getOrderFunc      func(ctx context.Context, userID, orderID string) (domain.Order, error)
}

func (s *stubCheckoutService) CreateSession(ctx context.Context, cmd services.CheckoutCommand) (domain.CheckoutSession, error) {
	if s.createSessionFunc == nil {
		return domain.CheckoutSession{}, errStubNotWired
	}
	return s.createSessionFunc(ctx, cmd)
}

func (s *stubCheckoutService) GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error) {
	if s.getOrderFunc == nil {
		return domain.Order{}, errStubNotWired
	}
	return s.getOrderFunc(ctx, userID, orderID)
}

type stubInvoiceService struct {
	collectFunc func(ctx context.Context, userID, rfc, fileName, contentType string, document io.Reader) (domain.InvoiceRequest, error)
}

func (s *stubInvoiceService) Collect(ctx context.Context, userID, rfc, fileName, contentType string, document io.Reader) (domain.InvoiceRequest, error) {
	if s.collectFunc == nil {
		return domain.InvoiceRequest{}, errStubNotWired
	}
	return s.collectFunc(ctx, userID, rfc, fileName, contentType, document)
}

type stubShippingService struct {
	quoteFunc func(ctx context.Context, userID string, dest domain.Destination, lines []domain.CartLine) (domain.ShippingQuote, error)
}

func (s *stubShippingService) Quote(ctx context.Context, userID string, dest domain.Destination, lines []domain.CartLine) (domain.ShippingQuote, error) {
	if s.quoteFunc == nil {
		return domain.ShippingQuote{}, errStubNotWired
	}
	return s.quoteFunc(ctx, userID, dest, lines)
}

type stubNavigationService struct {
	handleReturnFunc func(ctx context.Context, orderID string) (services.ReturnOutcome, error)
	beaconFunc       func(ctx context.Context, orderID string)
}

func (s *stubNavigationService) HandleReturn(ctx context.Context, orderID string) (services.ReturnOutcome, error) {
	if s.handleReturnFunc == nil {
		return services.ReturnOutcome{}, errStubNotWired
	}
	return s.handleReturnFunc(ctx, orderID)
}

func (s *stubNavigationService) HandleCancelBeacon(ctx context.Context, orderID string) {
	if s.beaconFunc != nil {
		s.beaconFunc(ctx, orderID)
	}
}

type stubAddressService struct {
	listFunc   func(ctx context.Context, userID string) ([]domain.Address, error)
	getFunc    func(ctx context.Context, userID, addressID string) (domain.Address, error)
	saveFunc   func(ctx context.Context, address domain.Address) (domain.Address, error)
	deleteFunc func(ctx context.Context, userID, addressID string) error
	lookupFunc func(ctx context.Context, postalCode string) (domain.PostalInfo, error)
}

func (s *stubAddressService) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	if s.listFunc == nil {
		return nil, errStubNotWired
	}
	return s.listFunc(ctx, userID)
}

func (s *stubAddressService) GetAddress(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if s.getFunc == nil {
		return domain.Address{}, errStubNotWired
	}
	return s.getFunc(ctx, userID, addressID)
}

func (s *stubAddressService) SaveAddress(ctx context.Context, address domain.Address) (domain.Address, error) {
	if s.saveFunc == nil {
		return domain.Address{}, errStubNotWired
	}
	return s.saveFunc(ctx, address)
}

func (s *stubAddressService) DeleteAddress(ctx context.Context, userID, addressID string) error {
	if s.deleteFunc == nil {
		return errStubNotWired
	}
	return s.deleteFunc(ctx, userID, addressID)
}

func (s *stubAddressService) LookupPostalCode(ctx context.Context, postalCode string) (domain.PostalInfo, error) {
	if s.lookupFunc == nil {
		return domain.PostalInfo{}, errStubNotWired
	}
	return s.lookupFunc(ctx, postalCode)
}

type stubCatalogService struct {
	getProductFunc func(ctx context.Context, productID string) (domain.Product, error)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if s.getProductFunc == nil {
		return domain.Product{}, errStubNotWired
	}
	return s.getProductFunc(ctx, productID)
}

type stubSystemService struct {
	checkHealthFunc func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubSystemService) CheckHealth(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.checkHealthFunc == nil {
		return domain.SystemHealthReport{}, errStubNotWired
	}
	return s.checkHealthFunc(ctx)
}

func authed(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
}

func decodeErrorEnvelope(t *testing.T, rr *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode error envelope: %v (body %q)", err, rr.Body.String())
	}
	return payload.Error, payload.Message
}

func testCart(uid string, updatedAt time.Time) domain.Cart {
	return domain.Cart{
		ID:       uid,
		UserID:   uid,
		Currency: "MXN",
		Lines: []domain.CartLine{
			{
				ID:             "line-1",
				ProductID:      "prod-1",
				Name:           "Filtro de aceite",
				UnitPrice:      25900,
				Quantity:       2,
				AvailableStock: 8,
				ImageURL:       "https://cdn.example.com/prod-1.png",
			},
		},
		UpdatedAt: updatedAt,
	}
}
