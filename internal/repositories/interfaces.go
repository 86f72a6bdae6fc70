package repositories

import (
	"context"

	"github.com/refaxia/storefront-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Addresses() AddressRepository
	Orders() OrderRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists the single active cart per user. The document ID is
// the user ID.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
}

// AddressRepository manages the saved address book.
type AddressRepository interface {
	ListAddresses(ctx context.Context, userID string) ([]domain.Address, error)
	GetAddress(ctx context.Context, userID, addressID string) (domain.Address, error)
	SaveAddress(ctx context.Context, address domain.Address) (domain.Address, error)
	DeleteAddress(ctx context.Context, userID, addressID string) error
}

// OrderRepository persists checkout orders and the back-navigation flag.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	// ConsumeReturnFlag atomically reads and clears the order's expectBack
	// flag, reporting whether it was set. At most one caller observes true.
	ConsumeReturnFlag(ctx context.Context, orderID string) (bool, error)
}

// HealthRepository evaluates dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
