package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/refaxia/storefront-api/internal/domain"
	pfirestore "github.com/refaxia/storefront-api/internal/platform/firestore"
)

const cartCollection = "carts"

type cartLineDocument struct {
	ID             string    `firestore:"id"`
	ProductID      string    `firestore:"productId"`
	Name           string    `firestore:"name"`
	UnitPrice      int64     `firestore:"unitPrice"`
	Quantity       int       `firestore:"quantity"`
	AvailableStock int       `firestore:"availableStock"`
	ImageURL       string    `firestore:"imageUrl,omitempty"`
	Adjusted       bool      `firestore:"adjusted"`
	AddedAt        time.Time `firestore:"addedAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

type cartDocument struct {
	Currency  string             `firestore:"currency"`
	Lines     []cartLineDocument `firestore:"lines"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// CartRepository persists the per-user cart document within Firestore. The
// document ID equals the user ID, keeping one active cart per shopper.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
	}, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(doc.ID, doc.Data), nil
}

// SaveCart upserts the full cart document under the user ID.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		uid = strings.TrimSpace(cart.ID)
	}
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocument{
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Lines:     make([]cartLineDocument, 0, len(cart.Lines)),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	for _, line := range cart.Lines {
		doc.Lines = append(doc.Lines, cartLineDocument{
			ID:             line.ID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPrice:      line.UnitPrice,
			Quantity:       line.Quantity,
			AvailableStock: line.AvailableStock,
			ImageURL:       line.ImageURL,
			Adjusted:       line.Adjusted,
			AddedAt:        line.AddedAt.UTC(),
			UpdatedAt:      line.UpdatedAt.UTC(),
		})
	}

	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cartFromDocument(uid, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// DeleteCart removes the user's cart document entirely.
func (r *CartRepository) DeleteCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	return r.base.Delete(ctx, uid)
}

func cartFromDocument(id string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		ID:        id,
		UserID:    id,
		Currency:  strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Lines:     make([]domain.CartLine, 0, len(doc.Lines)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, line := range doc.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:             line.ID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPrice:      line.UnitPrice,
			Quantity:       line.Quantity,
			AvailableStock: line.AvailableStock,
			ImageURL:       line.ImageURL,
			Adjusted:       line.Adjusted,
			AddedAt:        line.AddedAt,
			UpdatedAt:      line.UpdatedAt,
		})
	}
	return cart
}
