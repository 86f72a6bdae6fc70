package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/payments"
	"github.com/refaxia/storefront-api/internal/repositories"
)

var (
	errCheckoutCartsRequired     = errors.New("checkout service: cart service is required")
	errCheckoutOrdersRequired    = errors.New("checkout service: order repository is required")
	errCheckoutAddressesRequired = errors.New("checkout service: address repository is required")
	errCheckoutStockRequired     = errors.New("checkout service: stock service is required")
	errCheckoutShippingRequired  = errors.New("checkout service: shipping service is required")
	errCheckoutGatewayRequired   = errors.New("checkout service: payment gateway is required")
	errCheckoutClockRequired     = errors.New("checkout service: clock is required")
)

// ErrDestinationRequired indicates no valid destination was chosen.
var ErrDestinationRequired = errors.New("checkout service: destination is required")

// ErrPhoneRequired indicates a pickup order without a usable contact phone.
var ErrPhoneRequired = errors.New("checkout service: a 10-digit contact phone is required for pickup")

// ErrInvoiceIncomplete indicates the invoice gate is not satisfied. The
// gateway is never called while this holds.
var ErrInvoiceIncomplete = errors.New("checkout service: invoice data incomplete")

// ErrCartEmpty indicates submission with no cart lines.
var ErrCartEmpty = errors.New("checkout service: cart is empty")

// ErrStockChanged indicates a line exceeds reconciled stock at submission time.
var ErrStockChanged = errors.New("checkout service: stock changed")

// ErrSessionCreationFailed wraps the gateway failure message verbatim.
var ErrSessionCreationFailed = errors.New("checkout service: session creation failed")

// ErrOrderNotFound indicates the order does not exist or belongs to another user.
var ErrOrderNotFound = errors.New("checkout service: order not found")

// ErrCheckoutUnavailable indicates a backend failure outside the gateway.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// CheckoutServiceDeps wires the checkout orchestrator.
type CheckoutServiceDeps struct {
	Carts       CartService
	Orders      repositories.OrderRepository
	Addresses   repositories.AddressRepository
	Stock       StockService
	Shipping    ShippingService
	Gateway     payments.Gateway
	Currency    string
	SuccessURL  string
	CancelURL   string
	SessionTTL  time.Duration
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type checkoutService struct {
	carts      CartService
	orders     repositories.OrderRepository
	addresses  repositories.AddressRepository
	stock      StockService
	shipping   ShippingService
	gateway    payments.Gateway
	currency   string
	successURL string
	cancelURL  string
	sessionTTL time.Duration
	now        func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs the checkout orchestrator.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Addresses == nil {
		return nil, errCheckoutAddressesRequired
	}
	if deps.Stock == nil {
		return nil, errCheckoutStockRequired
	}
	if deps.Shipping == nil {
		return nil, errCheckoutShippingRequired
	}
	if deps.Gateway == nil {
		return nil, errCheckoutGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
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

	return &checkoutService{
		carts:      deps.Carts,
		orders:     deps.Orders,
		addresses:  deps.Addresses,
		stock:      deps.Stock,
		shipping:   deps.Shipping,
		gateway:    deps.Gateway,
		currency:   currency,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		sessionTTL: deps.SessionTTL,
		now:        func() time.Time { return deps.Clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// CreateSession validates every submission gate, then creates the hosted
// payment session and persists the order snapshot with expectBack set.
func (s *checkoutService) CreateSession(ctx context.Context, cmd CheckoutCommand) (domain.CheckoutSession, error) {
	if s == nil || s.gateway == nil {
		return domain.CheckoutSession{}, ErrCheckoutUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return domain.CheckoutSession{}, fmt.Errorf("%w: user id is required", ErrCheckoutUnavailable)
	}

	if err := validateDestination(cmd.Destination); err != nil {
		return domain.CheckoutSession{}, err
	}

	invoice := cmd.Invoice
	if invoice.Required {
		if !invoice.Complete() {
			return domain.CheckoutSession{}, ErrInvoiceIncomplete
		}
		normalised, err := NormalizeRFC(invoice.RFC)
		if err != nil {
			return domain.CheckoutSession{}, fmt.Errorf("%w: %v", ErrInvoiceIncomplete, err)
		}
		invoice.RFC = normalised
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	if len(cart.Lines) == 0 {
		return domain.CheckoutSession{}, ErrCartEmpty
	}

	contactPhone, shippingAddress, err := s.resolveContact(ctx, uid, cmd)
	if err != nil {
		return domain.CheckoutSession{}, err
	}

	// Stock is reconciled per line immediately before submission. Any line
	// over the authoritative figure aborts the whole attempt.
	for _, line := range cart.Lines {
		available := s.stock.Reconcile(ctx, line.ProductID, line.AvailableStock)
		if line.Quantity > available {
			return domain.CheckoutSession{}, fmt.Errorf("%w: %s has %d available", ErrStockChanged, line.ProductID, available)
		}
	}

	var quote domain.ShippingQuote
	if !cmd.Destination.IsPickup() {
		quote, err = s.shipping.Quote(ctx, uid, cmd.Destination, cart.Lines)
		if err != nil {
			return domain.CheckoutSession{}, err
		}
	}

	subtotal := cart.TotalPrice()
	total := subtotal + quote.Cost
	orderID := s.newID()

	session, err := s.gateway.CreateSession(ctx, payments.SessionRequest{
		OrderID:        orderID,
		Currency:       s.currency,
		SuccessURL:     appendOrderParam(s.successURL, orderID),
		CancelURL:      appendOrderParam(s.cancelURL, orderID),
		CustomerEmail:  strings.TrimSpace(cmd.CustomerEmail),
		ShippingAmount: quote.Cost,
		ExpiresIn:      s.sessionTTL,
		Metadata:       map[string]string{"user_id": uid},
		Items:          sessionItems(cart.Lines),
	})
	if err != nil {
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"userId": uid,
			"error":  err.Error(),
		})
		return domain.CheckoutSession{}, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	order := domain.Order{
		ID:               orderID,
		UserID:           uid,
		Lines:            orderLines(cart.Lines),
		Destination:      cmd.Destination,
		ShippingAddress:  shippingAddress,
		ContactPhone:     contactPhone,
		Invoice:          invoice,
		Subtotal:         subtotal,
		ShippingCost:     quote.Cost,
		Total:            total,
		Currency:         s.currency,
		Status:           domain.OrderPendingPayment,
		PaymentSessionID: session.ID,
		CheckoutURL:      session.CheckoutURL,
		ExpectBack:       true,
		CreatedAt:        s.now(),
	}
	if _, err := s.orders.CreateOrder(ctx, order); err != nil {
		// The session exists but nothing references it. Expire it so the
		// buyer cannot pay an order we failed to record.
		if expireErr := s.gateway.ExpireSession(ctx, session.ID); expireErr != nil {
			s.logger(ctx, "checkout.orphan_session", map[string]any{
				"sessionId": session.ID,
				"error":     expireErr.Error(),
			})
		}
		return domain.CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	s.logger(ctx, "checkout.session_created", map[string]any{
		"userId":    uid,
		"orderId":   orderID,
		"sessionId": session.ID,
		"total":     total,
	})

	return domain.CheckoutSession{
		OrderID:     orderID,
		CheckoutURL: session.CheckoutURL,
		SessionID:   session.ID,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// GetOrder loads an order, hiding other users' orders behind not-found.
func (s *checkoutService) GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrCheckoutUnavailable
	}
	uid := strings.TrimSpace(userID)
	oid := strings.TrimSpace(orderID)
	if uid == "" || oid == "" {
		return domain.Order{}, ErrOrderNotFound
	}

	order, err := s.orders.GetOrder(ctx, oid)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if order.UserID != uid {
		return domain.Order{}, ErrOrderNotFound
	}
	return order, nil
}

// resolveContact settles the pickup phone gate and snapshots the shipping
// address for delivery orders.
func (s *checkoutService) resolveContact(ctx context.Context, userID string, cmd CheckoutCommand) (string, *domain.Address, error) {
	if cmd.Destination.IsPickup() {
		phone := normalizePhone(cmd.ContactPhone)
		if phone != "" {
			return phone, nil, nil
		}
		if cmd.ContactPhone != "" {
			return "", nil, fmt.Errorf("%w: %q is not a valid phone", ErrPhoneRequired, cmd.ContactPhone)
		}
		addresses, err := s.addresses.ListAddresses(ctx, userID)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		for _, address := range addresses {
			if phone := normalizePhone(address.Phone); phone != "" {
				return phone, nil, nil
			}
		}
		return "", nil, ErrPhoneRequired
	}

	address, err := s.addresses.GetAddress(ctx, userID, strings.TrimSpace(cmd.Destination.AddressID))
	if err != nil {
		if isRepoNotFound(err) {
			return "", nil, fmt.Errorf("%w: address not found", ErrDestinationRequired)
		}
		return "", nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	snapshot := address
	snapshot.ID = ""
	snapshot.UserID = ""
	return normalizePhone(address.Phone), &snapshot, nil
}

func validateDestination(dest domain.Destination) error {
	switch dest.Kind {
	case domain.DestinationAddress:
		if strings.TrimSpace(dest.AddressID) == "" {
			return ErrDestinationRequired
		}
	case domain.DestinationPickup:
		if strings.TrimSpace(dest.BranchID) == "" {
			return ErrDestinationRequired
		}
	default:
		return ErrDestinationRequired
	}
	return nil
}

// normalizePhone strips separators and returns the phone only when it is
// exactly ten digits.
func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	if digits.Len() != 10 {
		return ""
	}
	return digits.String()
}

func sessionItems(lines []domain.CartLine) []payments.SessionLineItem {
	items := make([]payments.SessionLineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, payments.SessionLineItem{
			Name:       line.Name,
			Quantity:   int64(line.Quantity),
			UnitAmount: line.UnitPrice,
		})
	}
	return items
}

func orderLines(lines []domain.CartLine) []domain.OrderLine {
	snapshot := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		snapshot = append(snapshot, domain.OrderLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return snapshot
}

func appendOrderParam(base, orderID string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	query := parsed.Query()
	query.Set("order", orderID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
