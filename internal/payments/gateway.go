package payments

import (
	"context"
	"errors"
	"time"
)

// SessionStatus enumerates the normalised checkout session states.
type SessionStatus string

const (
	// SessionOpen indicates the session is still payable.
	SessionOpen SessionStatus = "open"
	// SessionComplete indicates the customer finished payment.
	SessionComplete SessionStatus = "complete"
	// SessionExpired indicates the session can no longer be paid.
	SessionExpired SessionStatus = "expired"
)

// ErrSessionNotFound is returned when the PSP has no such session.
var ErrSessionNotFound = errors.New("payments: session not found")

// SessionLineItem describes a single order line to include in a checkout session.
type SessionLineItem struct {
	Name        string
	Description string
	Quantity    int64
	UnitAmount  int64
}

// SessionRequest captures the payload required to create a hosted checkout session.
type SessionRequest struct {
	OrderID        string
	Currency       string
	SuccessURL     string
	CancelURL      string
	CustomerEmail  string
	ShippingAmount int64
	ExpiresIn      time.Duration
	Metadata       map[string]string
	Items          []SessionLineItem
}

// Session is the PSP session handed back to the storefront.
type Session struct {
	ID          string
	Status      SessionStatus
	CheckoutURL string
	ExpiresAt   time.Time
}

// Gateway is the contract PSP adapters implement for hosted checkout.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	LookupSession(ctx context.Context, sessionID string) (Session, error)
	ExpireSession(ctx context.Context, sessionID string) error
}
