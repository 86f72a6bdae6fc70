package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/refaxia/storefront-api/internal/clients/shiprates"
	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/payments"
	"github.com/refaxia/storefront-api/internal/platform/storage"
)

func testClock() time.Time {
	return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

var errRepoNotFound = &stubRepoError{notFound: true}

type stubCartRepo struct {
	getFn    func(ctx context.Context, userID string) (domain.Cart, error)
	saveFn   func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	deleteFn func(ctx context.Context, userID string) error
}

func (s *stubCartRepo) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn == nil {
		return domain.Cart{}, errRepoNotFound
	}
	return s.getFn(ctx, userID)
}

func (s *stubCartRepo) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.saveFn == nil {
		return cart, nil
	}
	return s.saveFn(ctx, cart)
}

func (s *stubCartRepo) DeleteCart(ctx context.Context, userID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID)
}

type stubAddressRepo struct {
	listFn   func(ctx context.Context, userID string) ([]domain.Address, error)
	getFn    func(ctx context.Context, userID, addressID string) (domain.Address, error)
	saveFn   func(ctx context.Context, address domain.Address) (domain.Address, error)
	deleteFn func(ctx context.Context, userID, addressID string) error
}

func (s *stubAddressRepo) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID)
}

func (s *stubAddressRepo) GetAddress(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if s.getFn == nil {
		return domain.Address{}, errRepoNotFound
	}
	return s.getFn(ctx, userID, addressID)
}

func (s *stubAddressRepo) SaveAddress(ctx context.Context, address domain.Address) (domain.Address, error) {
	if s.saveFn == nil {
		return address, nil
	}
	return s.saveFn(ctx, address)
}

func (s *stubAddressRepo) DeleteAddress(ctx context.Context, userID, addressID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID, addressID)
}

type stubOrderRepo struct {
	createFn  func(ctx context.Context, order domain.Order) (domain.Order, error)
	getFn     func(ctx context.Context, orderID string) (domain.Order, error)
	statusFn  func(ctx context.Context, orderID string, status domain.OrderStatus) error
	consumeFn func(ctx context.Context, orderID string) (bool, error)
}

func (s *stubOrderRepo) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.createFn == nil {
		return order, nil
	}
	return s.createFn(ctx, order)
}

func (s *stubOrderRepo) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn == nil {
		return domain.Order{}, errRepoNotFound
	}
	return s.getFn(ctx, orderID)
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	if s.statusFn == nil {
		return nil
	}
	return s.statusFn(ctx, orderID, status)
}

func (s *stubOrderRepo) ConsumeReturnFlag(ctx context.Context, orderID string) (bool, error) {
	if s.consumeFn == nil {
		return false, nil
	}
	return s.consumeFn(ctx, orderID)
}

type stubGateway struct {
	createFn func(ctx context.Context, req payments.SessionRequest) (payments.Session, error)
	lookupFn func(ctx context.Context, sessionID string) (payments.Session, error)
	expireFn func(ctx context.Context, sessionID string) error
}

func (s *stubGateway) CreateSession(ctx context.Context, req payments.SessionRequest) (payments.Session, error) {
	if s.createFn == nil {
		return payments.Session{ID: "cs_stub", Status: payments.SessionOpen, CheckoutURL: "https://pay.example.com/cs_stub"}, nil
	}
	return s.createFn(ctx, req)
}

func (s *stubGateway) LookupSession(ctx context.Context, sessionID string) (payments.Session, error) {
	if s.lookupFn == nil {
		return payments.Session{ID: sessionID, Status: payments.SessionOpen}, nil
	}
	return s.lookupFn(ctx, sessionID)
}

func (s *stubGateway) ExpireSession(ctx context.Context, sessionID string) error {
	if s.expireFn == nil {
		return nil
	}
	return s.expireFn(ctx, sessionID)
}

type stubProductFetcher struct {
	getFn func(ctx context.Context, productID string) (domain.Product, error)
}

func (s *stubProductFetcher) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if s.getFn == nil {
		return domain.Product{}, errors.New("stub: no product")
	}
	return s.getFn(ctx, productID)
}

type stubStockFetcher struct {
	getFn func(ctx context.Context, productID string) (int, error)
}

func (s *stubStockFetcher) GetStock(ctx context.Context, productID string) (int, error) {
	if s.getFn == nil {
		return 0, errors.New("stub: no stock")
	}
	return s.getFn(ctx, productID)
}

type stubStockService struct {
	reconcileFn func(ctx context.Context, productID string, lastKnown int) int
}

func (s *stubStockService) Reconcile(ctx context.Context, productID string, lastKnown int) int {
	if s.reconcileFn == nil {
		return lastKnown
	}
	return s.reconcileFn(ctx, productID, lastKnown)
}

type stubRateFetcher struct {
	quoteFn func(ctx context.Context, req shiprates.QuoteRequest) (shiprates.Quote, error)
}

func (s *stubRateFetcher) GetQuote(ctx context.Context, req shiprates.QuoteRequest) (shiprates.Quote, error) {
	if s.quoteFn == nil {
		return shiprates.Quote{}, errors.New("stub: no quote")
	}
	return s.quoteFn(ctx, req)
}

type stubShippingService struct {
	quoteFn func(ctx context.Context, userID string, dest domain.Destination, lines []domain.CartLine) (domain.ShippingQuote, error)
}

func (s *stubShippingService) Quote(ctx context.Context, userID string, dest domain.Destination, lines []domain.CartLine) (domain.ShippingQuote, error) {
	if s.quoteFn == nil {
		return domain.ShippingQuote{}, nil
	}
	return s.quoteFn(ctx, userID, dest, lines)
}

type stubPostalFetcher struct {
	lookupFn func(ctx context.Context, postalCode string) (domain.PostalInfo, error)
}

func (s *stubPostalFetcher) Lookup(ctx context.Context, postalCode string) (domain.PostalInfo, error) {
	if s.lookupFn == nil {
		return domain.PostalInfo{}, errors.New("stub: no postal info")
	}
	return s.lookupFn(ctx, postalCode)
}

type stubUploader struct {
	uploadFn func(ctx context.Context, object, contentType string, body io.Reader) (storage.UploadResult, error)
}

func (s *stubUploader) Upload(ctx context.Context, object, contentType string, body io.Reader) (storage.UploadResult, error) {
	if s.uploadFn == nil {
		return storage.UploadResult{Path: object}, nil
	}
	return s.uploadFn(ctx, object, contentType, body)
}

type stubHealthRepo struct {
	collectFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepo) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFn == nil {
		return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
	}
	return s.collectFn(ctx)
}

type memoryCartRepo struct {
	carts map[string]domain.Cart
}

func newMemoryCartRepo() *memoryCartRepo {
	return &memoryCartRepo{carts: make(map[string]domain.Cart)}
}

func (m *memoryCartRepo) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, ok := m.carts[userID]
	if !ok {
		return domain.Cart{}, errRepoNotFound
	}
	return cart, nil
}

func (m *memoryCartRepo) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	m.carts[cart.UserID] = cart
	return cart, nil
}

func (m *memoryCartRepo) DeleteCart(ctx context.Context, userID string) error {
	delete(m.carts, userID)
	return nil
}
