package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/refaxia/storefront-api/internal/domain"
	pfirestore "github.com/refaxia/storefront-api/internal/platform/firestore"
)

const orderCollection = "orders"

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
}

type orderDestinationDocument struct {
	Kind      string `firestore:"kind"`
	AddressID string `firestore:"addressId,omitempty"`
	BranchID  string `firestore:"branchId,omitempty"`
}

type orderAddressDocument struct {
	Street         string `firestore:"street"`
	Colony         string `firestore:"colony"`
	ExteriorNumber string `firestore:"exteriorNumber"`
	InteriorNumber string `firestore:"interiorNumber,omitempty"`
	PostalCode     string `firestore:"postalCode"`
	City           string `firestore:"city"`
	State          string `firestore:"state"`
	Phone          string `firestore:"phone"`
	Reference      string `firestore:"reference,omitempty"`
}

type orderInvoiceDocument struct {
	Required        bool   `firestore:"required"`
	RFC             string `firestore:"rfc,omitempty"`
	TaxDocumentPath string `firestore:"taxDocumentPath,omitempty"`
}

type orderDocument struct {
	UserID           string                   `firestore:"userId"`
	Lines            []orderLineDocument      `firestore:"lines"`
	Destination      orderDestinationDocument `firestore:"destination"`
	ShippingAddress  *orderAddressDocument    `firestore:"shippingAddress,omitempty"`
	ContactPhone     string                   `firestore:"contactPhone,omitempty"`
	Invoice          orderInvoiceDocument     `firestore:"invoice"`
	Subtotal         int64                    `firestore:"subtotal"`
	ShippingCost     int64                    `firestore:"shippingCost"`
	Total            int64                    `firestore:"total"`
	Currency         string                   `firestore:"currency"`
	Status           string                   `firestore:"status"`
	PaymentSessionID string                   `firestore:"paymentSessionId,omitempty"`
	CheckoutURL      string                   `firestore:"checkoutUrl,omitempty"`
	ExpectBack       bool                     `firestore:"expectBack"`
	CreatedAt        time.Time                `firestore:"createdAt"`
	UpdatedAt        time.Time                `firestore:"updatedAt"`
}

// OrderRepository persists checkout orders. The expectBack flag lives on the
// order document and is cleared transactionally so the return-navigation
// guard fires at most once per order.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		provider: provider,
	}, nil
}

// CreateOrder persists a new order document.
func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if strings.TrimSpace(order.UserID) == "" {
		return domain.Order{}, errors.New("order repository: user id is required")
	}

	now := time.Now().UTC()
	createdAt := order.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := orderToDocument(order)
	doc.CreatedAt = createdAt
	doc.UpdatedAt = now

	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.Order{}, err
	}

	saved := orderFromDocument(id, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetOrder loads the order by ID.
func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc.ID, doc.Data), nil
}

// UpdateStatus transitions the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	_, err := r.base.Update(ctx, strings.TrimSpace(orderID), []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}

// ConsumeReturnFlag reads and clears expectBack inside a transaction. It
// returns true only for the first caller that observes the flag set.
func (r *OrderRepository) ConsumeReturnFlag(ctx context.Context, orderID string) (bool, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return false, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return false, errors.New("order repository: order id is required")
	}

	consumed := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if !doc.ExpectBack {
			consumed = false
			return nil
		}
		consumed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "expectBack", Value: false},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

func orderToDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID: strings.TrimSpace(order.UserID),
		Lines:  make([]orderLineDocument, 0, len(order.Lines)),
		Destination: orderDestinationDocument{
			Kind:      string(order.Destination.Kind),
			AddressID: order.Destination.AddressID,
			BranchID:  order.Destination.BranchID,
		},
		ContactPhone:     strings.TrimSpace(order.ContactPhone),
		Invoice:          orderInvoiceDocument(order.Invoice),
		Subtotal:         order.Subtotal,
		ShippingCost:     order.ShippingCost,
		Total:            order.Total,
		Currency:         strings.ToUpper(strings.TrimSpace(order.Currency)),
		Status:           string(order.Status),
		PaymentSessionID: order.PaymentSessionID,
		CheckoutURL:      order.CheckoutURL,
		ExpectBack:       order.ExpectBack,
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument(line))
	}
	if order.ShippingAddress != nil {
		doc.ShippingAddress = &orderAddressDocument{
			Street:         order.ShippingAddress.Street,
			Colony:         order.ShippingAddress.Colony,
			ExteriorNumber: order.ShippingAddress.ExteriorNumber,
			InteriorNumber: order.ShippingAddress.InteriorNumber,
			PostalCode:     order.ShippingAddress.PostalCode,
			City:           order.ShippingAddress.City,
			State:          order.ShippingAddress.State,
			Phone:          order.ShippingAddress.Phone,
			Reference:      order.ShippingAddress.Reference,
		}
	}
	return doc
}

func orderFromDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:     id,
		UserID: doc.UserID,
		Lines:  make([]domain.OrderLine, 0, len(doc.Lines)),
		Destination: domain.Destination{
			Kind:      domain.DestinationKind(doc.Destination.Kind),
			AddressID: doc.Destination.AddressID,
			BranchID:  doc.Destination.BranchID,
		},
		ContactPhone:     doc.ContactPhone,
		Invoice:          domain.InvoiceRequest(doc.Invoice),
		Subtotal:         doc.Subtotal,
		ShippingCost:     doc.ShippingCost,
		Total:            doc.Total,
		Currency:         doc.Currency,
		Status:           domain.OrderStatus(doc.Status),
		PaymentSessionID: doc.PaymentSessionID,
		CheckoutURL:      doc.CheckoutURL,
		ExpectBack:       doc.ExpectBack,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	for _, line := range doc.Lines {
		order.Lines = append(order.Lines, domain.OrderLine(line))
	}
	if doc.ShippingAddress != nil {
		order.ShippingAddress = &domain.Address{
			Street:         doc.ShippingAddress.Street,
			Colony:         doc.ShippingAddress.Colony,
			ExteriorNumber: doc.ShippingAddress.ExteriorNumber,
			InteriorNumber: doc.ShippingAddress.InteriorNumber,
			PostalCode:     doc.ShippingAddress.PostalCode,
			City:           doc.ShippingAddress.City,
			State:          doc.ShippingAddress.State,
			Phone:          doc.ShippingAddress.Phone,
			Reference:      doc.ShippingAddress.Reference,
		}
	}
	return order
}
