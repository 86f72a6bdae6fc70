package domain

import "time"

// Product is the read-only catalog view consumed by the storefront. The
// catalog itself is owned by an external system; this struct mirrors the
// fields its API exposes.
type Product struct {
	ID          string
	Code        string
	Name        string
	Description string
	UnitPrice   int64
	Stock       int
	ImageURL    string
	Colors      []string
}

// CartLine is a single (product, quantity) pair inside a cart.
//
// AvailableStock is the last reconciled stock figure for the product;
// Adjusted marks lines whose quantity was clamped to it server-side.
type CartLine struct {
	ID             string
	ProductID      string
	Name           string
	UnitPrice      int64
	Quantity       int
	AvailableStock int
	ImageURL       string
	Adjusted       bool
	AddedAt        time.Time
	UpdatedAt      time.Time
}

// Subtotal returns unit price times quantity for this line.
func (l CartLine) Subtotal() int64 {
	if l.Quantity <= 0 || l.UnitPrice <= 0 {
		return 0
	}
	return l.UnitPrice * int64(l.Quantity)
}

// Cart is the authoritative per-user cart. The document ID equals the user ID;
// one active cart per authenticated session.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalItems sums quantities across all lines. Derived on every call, never
// cached.
func (c Cart) TotalItems() int {
	total := 0
	for _, line := range c.Lines {
		if line.Quantity > 0 {
			total += line.Quantity
		}
	}
	return total
}

// TotalPrice sums unit price times quantity across all lines.
func (c Cart) TotalPrice() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.Subtotal()
	}
	return total
}

// Address is a saved delivery address in the user's address book.
type Address struct {
	ID             string
	UserID         string
	Street         string
	Colony         string
	ExteriorNumber string
	InteriorNumber string
	PostalCode     string
	City           string
	State          string
	Phone          string
	Reference      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PostalInfo is the postal-code lookup result used for address form autofill.
type PostalInfo struct {
	PostalCode string
	State      string
	City       string
	Colonies   []string
}

// DestinationKind discriminates between home delivery and branch pickup.
type DestinationKind string

const (
	DestinationAddress DestinationKind = "address"
	DestinationPickup  DestinationKind = "pickup"
)

// Destination is where an order is delivered: either a saved address or a
// fixed pickup branch.
type Destination struct {
	Kind      DestinationKind
	AddressID string
	BranchID  string
}

// IsPickup reports whether the destination is a pickup branch.
func (d Destination) IsPickup() bool { return d.Kind == DestinationPickup }

// ShippingQuote is a derived value, recomputed whenever destination or line
// items change. Invariant: IsFreeShipping implies Cost == 0, with
// OriginalCost retaining the carrier-computed figure.
type ShippingQuote struct {
	Cost             int64
	OriginalCost     int64
	IsFreeShipping   bool
	EstimatedArrival *time.Time
}

// InvoiceRequest captures the buyer's tax-invoice decision for one checkout
// attempt. When Required is true both RFC and TaxDocumentPath must be present
// before submission proceeds.
type InvoiceRequest struct {
	Required        bool
	RFC             string
	TaxDocumentPath string
}

// Complete reports whether the invoice data satisfies the submission gate.
func (r InvoiceRequest) Complete() bool {
	if !r.Required {
		return true
	}
	return r.RFC != "" && r.TaxDocumentPath != ""
}

// OrderStatus tracks an order through the hosted-payment handoff.
type OrderStatus string

const (
	// OrderPendingPayment means a gateway session exists and the buyer was
	// redirected to the hosted payment page.
	OrderPendingPayment OrderStatus = "pending_payment"
	// OrderPaid is set by webhook reconciliation, outside this service.
	OrderPaid OrderStatus = "paid"
	// OrderCancelledByNavigation marks checkouts abandoned via the browser
	// back button, detected by the return-navigation guard.
	OrderCancelledByNavigation OrderStatus = "cancelled_by_navigation"
	// OrderCancelled marks explicit cancellations.
	OrderCancelled OrderStatus = "cancelled"
)

// OrderLine is the immutable snapshot of a cart line at purchase time.
type OrderLine struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
}

// Order is the server-side checkout session record created immediately before
// redirecting to the external payment host.
//
// ExpectBack is the persisted "expect back-navigation" flag; it is consumed
// exactly once by the return-navigation guard.
type Order struct {
	ID               string
	UserID           string
	Lines            []OrderLine
	Destination      Destination
	ShippingAddress  *Address
	ContactPhone     string
	Invoice          InvoiceRequest
	Subtotal         int64
	ShippingCost     int64
	Total            int64
	Currency         string
	Status           OrderStatus
	PaymentSessionID string
	CheckoutURL      string
	ExpectBack       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CheckoutSession is what the orchestrator hands back to the browser: the
// order correlation ID and the hosted payment page to navigate to.
type CheckoutSession struct {
	OrderID     string
	CheckoutURL string
	SessionID   string
	ExpiresAt   time.Time
}

// HealthStatus enumerates aggregate and per-dependency health states.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck is the outcome of probing a single dependency.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for the readiness endpoint.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
