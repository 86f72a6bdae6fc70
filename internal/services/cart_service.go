package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/refaxia/storefront-api/internal/clients/catalog"
	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
	errCartStockRequired      = errors.New("cart service: stock service is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartInvalidQuantity indicates a quantity below one.
var ErrCartInvalidQuantity = errors.New("cart service: quantity must be at least 1")

// ErrCartUnavailable indicates the cart backend cannot fulfil the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrProductNotFound indicates the catalog has no such product.
var ErrProductNotFound = errors.New("cart service: product not found")

// ErrProductOutOfStock indicates the reconciled stock is zero.
var ErrProductOutOfStock = errors.New("cart service: product out of stock")

// CartServiceDeps wires the repository, catalog, and stock dependencies.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Catalog         ProductFetcher
	Stock           StockService
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	repo     repositories.CartRepository
	catalog  ProductFetcher
	stock    StockService
	newID    func() string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Stock == nil {
		return nil, errCartStockRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "MXN"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		repo:     deps.Repository,
		catalog:  deps.Catalog,
		stock:    deps.Stock,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// GetCart loads the active cart for the user, creating an empty cart when absent.
func (s *cartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s == nil || s.repo == nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return s.newCart(uid), nil
		}
		return domain.Cart{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return cart, nil
}

// AddLine hydrates the product from the catalog, reconciles stock, merges with
// any existing line for the same product, and persists before returning.
func (s *cartService) AddLine(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if s == nil || s.repo == nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return domain.Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if quantity < 1 {
		return domain.Cart{}, ErrCartInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, pid)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return domain.Cart{}, fmt.Errorf("%w: %s", ErrProductNotFound, pid)
		}
		return domain.Cart{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	available := s.stock.Reconcile(ctx, pid, product.Stock)
	if available <= 0 {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrProductOutOfStock, pid)
	}

	cart, err := s.GetCart(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	now := s.now()
	merged := false
	for i := range cart.Lines {
		if cart.Lines[i].ProductID != pid {
			continue
		}
		requested := cart.Lines[i].Quantity + quantity
		cart.Lines[i].Quantity, cart.Lines[i].Adjusted = clampQuantity(requested, available)
		cart.Lines[i].AvailableStock = available
		cart.Lines[i].UnitPrice = product.UnitPrice
		cart.Lines[i].Name = product.Name
		cart.Lines[i].UpdatedAt = now
		merged = true
		break
	}
	if merged {
		for i := range cart.Lines {
			if cart.Lines[i].ProductID == pid && cart.Lines[i].Adjusted {
				s.logClamp(ctx, uid, pid, cart.Lines[i].Quantity, available)
			}
		}
	} else {
		qty, adjusted := clampQuantity(quantity, available)
		if adjusted {
			s.logClamp(ctx, uid, pid, qty, available)
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:             s.newID(),
			ProductID:      pid,
			Name:           product.Name,
			UnitPrice:      product.UnitPrice,
			Quantity:       qty,
			AvailableStock: available,
			ImageURL:       product.ImageURL,
			Adjusted:       adjusted,
			AddedAt:        now,
			UpdatedAt:      now,
		})
	}

	return s.persist(ctx, cart, "cart.line_added", map[string]any{
		"productId": pid,
		"quantity":  quantity,
	})
}

// UpdateQuantity sets the quantity for an existing line, clamped to stock.
// A line whose stock reconciles to zero is rejected as out of stock.
func (s *cartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if s == nil || s.repo == nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return domain.Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if quantity < 1 {
		return domain.Cart{}, ErrCartInvalidQuantity
	}

	cart, err := s.GetCart(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	idx := -1
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == pid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Cart{}, fmt.Errorf("%w: product %s is not in the cart", ErrCartInvalidInput, pid)
	}

	available := s.stock.Reconcile(ctx, pid, cart.Lines[idx].AvailableStock)
	if available <= 0 {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrProductOutOfStock, pid)
	}
	cart.Lines[idx].Quantity, cart.Lines[idx].Adjusted = clampQuantity(quantity, available)
	cart.Lines[idx].AvailableStock = available
	cart.Lines[idx].UpdatedAt = s.now()
	if cart.Lines[idx].Adjusted {
		s.logClamp(ctx, uid, pid, cart.Lines[idx].Quantity, available)
	}

	return s.persist(ctx, cart, "cart.quantity_updated", map[string]any{
		"productId": pid,
		"quantity":  quantity,
	})
}

// RemoveLine drops a line from the cart. Removing an absent line is a no-op.
func (s *cartService) RemoveLine(ctx context.Context, userID, productID string) (domain.Cart, error) {
	if s == nil || s.repo == nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return domain.Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.GetCart(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	kept := cart.Lines[:0]
	removed := false
	for _, line := range cart.Lines {
		if line.ProductID == pid {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return cart, nil
	}
	cart.Lines = kept

	return s.persist(ctx, cart, "cart.line_removed", map[string]any{
		"productId": pid,
	})
}

// ClearCart deletes the cart document. Used on logout and after checkout handoff.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	if err := s.repo.DeleteCart(ctx, uid); err != nil && !isRepoNotFound(err) {
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"userId": uid})
	return nil
}

func (s *cartService) persist(ctx context.Context, cart domain.Cart, event string, fields map[string]any) (domain.Cart, error) {
	cart.UpdatedAt = s.now()
	saved, err := s.repo.SaveCart(ctx, cart)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	fields["userId"] = cart.UserID
	fields["totalItems"] = saved.TotalItems()
	s.logger(ctx, event, fields)
	return saved, nil
}

func (s *cartService) logClamp(ctx context.Context, userID, productID string, quantity, available int) {
	s.logger(ctx, "cart.quantity_clamped", map[string]any{
		"userId":    userID,
		"productId": productID,
		"quantity":  quantity,
		"available": available,
	})
}

func (s *cartService) newCart(userID string) domain.Cart {
	now := s.now()
	return domain.Cart{
		ID:        userID,
		UserID:    userID,
		Currency:  s.currency,
		Lines:     nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// clampQuantity caps the requested quantity at the available stock and reports
// whether a clamp happened. Callers must reject zero stock before clamping.
func clampQuantity(requested, available int) (int, bool) {
	if requested > available {
		return available, true
	}
	return requested, false
}
