package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/refaxia/storefront-api/internal/clients/shiprates"
	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/repositories"
)

var (
	errShippingRatesRequired     = errors.New("shipping service: rate client is required")
	errShippingAddressesRequired = errors.New("shipping service: address repository is required")
)

// ErrShippingUnavailable indicates no quote could be computed for the
// destination. Checkout submission is blocked while this holds.
var ErrShippingUnavailable = errors.New("shipping service: quote unavailable")

// ErrShippingInvalidInput indicates a malformed destination or line set.
var ErrShippingInvalidInput = errors.New("shipping service: invalid input")

// ShippingServiceDeps wires the carrier-rate client and address book.
type ShippingServiceDeps struct {
	Rates                 RateFetcher
	Addresses             repositories.AddressRepository
	FreeShippingThreshold int64
	Logger                func(context.Context, string, map[string]any)
}

type shippingService struct {
	rates     RateFetcher
	addresses repositories.AddressRepository
	threshold int64
	logger    func(context.Context, string, map[string]any)
}

// NewShippingService constructs the shipping quoter.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Rates == nil {
		return nil, errShippingRatesRequired
	}
	if deps.Addresses == nil {
		return nil, errShippingAddressesRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shippingService{
		rates:     deps.Rates,
		addresses: deps.Addresses,
		threshold: deps.FreeShippingThreshold,
		logger:    logger,
	}, nil
}

// Quote computes the shipping quote for a destination and line set. Pickup
// destinations short-circuit to a zero-cost quote without any external call.
func (s *shippingService) Quote(ctx context.Context, userID string, dest domain.Destination, lines []domain.CartLine) (domain.ShippingQuote, error) {
	if s == nil || s.rates == nil {
		return domain.ShippingQuote{}, ErrShippingUnavailable
	}

	if dest.IsPickup() {
		if strings.TrimSpace(dest.BranchID) == "" {
			return domain.ShippingQuote{}, fmt.Errorf("%w: pickup destination needs a branch", ErrShippingInvalidInput)
		}
		return domain.ShippingQuote{Cost: 0, OriginalCost: 0, IsFreeShipping: false}, nil
	}

	if dest.Kind != domain.DestinationAddress || strings.TrimSpace(dest.AddressID) == "" {
		return domain.ShippingQuote{}, fmt.Errorf("%w: destination needs an address", ErrShippingInvalidInput)
	}
	if len(lines) == 0 {
		return domain.ShippingQuote{}, fmt.Errorf("%w: at least one line is required", ErrShippingInvalidInput)
	}

	address, err := s.addresses.GetAddress(ctx, strings.TrimSpace(userID), strings.TrimSpace(dest.AddressID))
	if err != nil {
		if isRepoNotFound(err) {
			return domain.ShippingQuote{}, fmt.Errorf("%w: address not found", ErrShippingInvalidInput)
		}
		return domain.ShippingQuote{}, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}

	req := shiprates.QuoteRequest{
		PostalCode: address.PostalCode,
		State:      address.State,
		City:       address.City,
		Lines:      make([]shiprates.QuoteLine, 0, len(lines)),
	}
	var subtotal int64
	for _, line := range lines {
		subtotal += line.Subtotal()
		req.Lines = append(req.Lines, shiprates.QuoteLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	carrier, err := s.rates.GetQuote(ctx, req)
	if err != nil {
		s.logger(ctx, "shipping.quote_failed", map[string]any{
			"postalCode": address.PostalCode,
			"error":      err.Error(),
		})
		return domain.ShippingQuote{}, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}

	quote := domain.ShippingQuote{
		Cost:             carrier.Cost,
		OriginalCost:     carrier.OriginalCost,
		IsFreeShipping:   carrier.FreeShipping,
		EstimatedArrival: carrier.EstimatedArrival,
	}
	if quote.IsFreeShipping {
		quote.Cost = 0
	}
	// Subtotal threshold overrides whatever the carrier decided.
	if s.threshold > 0 && subtotal >= s.threshold && !quote.IsFreeShipping {
		quote.OriginalCost = carrier.Cost
		quote.Cost = 0
		quote.IsFreeShipping = true
	}

	s.logger(ctx, "shipping.quoted", map[string]any{
		"postalCode":   address.PostalCode,
		"cost":         quote.Cost,
		"freeShipping": quote.IsFreeShipping,
	})
	return quote, nil
}
