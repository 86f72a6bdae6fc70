package services

import (
	"context"
	"errors"
	"io"

	"github.com/refaxia/storefront-api/internal/clients/shiprates"
	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/repositories"
)

// CartService owns the authoritative per-user cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	AddLine(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error)
	RemoveLine(ctx context.Context, userID, productID string) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// StockService reconciles a locally known stock figure against the catalog.
type StockService interface {
	// Reconcile returns the authoritative stock for the product, falling
	// back to lastKnown when the catalog cannot answer.
	Reconcile(ctx context.Context, productID string, lastKnown int) int
}

// ShippingService computes the shipping quote for a destination and line set.
type ShippingService interface {
	Quote(ctx context.Context, userID string, dest domain.Destination, lines []domain.CartLine) (domain.ShippingQuote, error)
}

// InvoiceService validates and stores tax-invoice data for a checkout attempt.
type InvoiceService interface {
	Collect(ctx context.Context, userID, rfc, fileName, contentType string, document io.Reader) (domain.InvoiceRequest, error)
}

// CheckoutCommand is the submission payload for creating a payment session.
type CheckoutCommand struct {
	UserID        string
	Destination   domain.Destination
	ContactPhone  string
	Invoice       domain.InvoiceRequest
	CustomerEmail string
}

// CheckoutService orchestrates checkout submission against the payment gateway.
type CheckoutService interface {
	CreateSession(ctx context.Context, cmd CheckoutCommand) (domain.CheckoutSession, error)
	GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error)
}

// ReturnOutcome describes what the return-navigation guard decided for one hit.
type ReturnOutcome struct {
	OrderID   string
	Cancelled bool
}

// NavigationService implements the return-navigation guard over the persisted
// expectBack flag.
type NavigationService interface {
	HandleReturn(ctx context.Context, orderID string) (ReturnOutcome, error)
	// HandleCancelBeacon is the fire-and-forget cancellation path. It never
	// returns an error; failures are logged and swallowed.
	HandleCancelBeacon(ctx context.Context, orderID string)
}

// AddressService manages the saved address book and postal-code autofill.
type AddressService interface {
	ListAddresses(ctx context.Context, userID string) ([]domain.Address, error)
	GetAddress(ctx context.Context, userID, addressID string) (domain.Address, error)
	SaveAddress(ctx context.Context, address domain.Address) (domain.Address, error)
	DeleteAddress(ctx context.Context, userID, addressID string) error
	LookupPostalCode(ctx context.Context, postalCode string) (domain.PostalInfo, error)
}

// CatalogService proxies the read-only product catalog.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// SystemService surfaces dependency health for readiness probes.
type SystemService interface {
	CheckHealth(ctx context.Context) (domain.SystemHealthReport, error)
}

// ProductFetcher is the catalog dependency used to hydrate cart lines.
type ProductFetcher interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// StockFetcher is the catalog dependency answering authoritative stock.
type StockFetcher interface {
	GetStock(ctx context.Context, productID string) (int, error)
}

// RateFetcher is the carrier-rate dependency used by the shipping quoter.
type RateFetcher interface {
	GetQuote(ctx context.Context, req shiprates.QuoteRequest) (shiprates.Quote, error)
}

// PostalFetcher resolves postal codes for address form autofill.
type PostalFetcher interface {
	Lookup(ctx context.Context, postalCode string) (domain.PostalInfo, error)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
