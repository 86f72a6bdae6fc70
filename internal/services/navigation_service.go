package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/payments"
	"github.com/refaxia/storefront-api/internal/repositories"
)

var errNavigationOrdersRequired = errors.New("navigation service: order repository is required")

// ErrReturnOrderNotFound indicates the guard was hit with an unknown order.
var ErrReturnOrderNotFound = errors.New("navigation service: order not found")

// ErrNavigationUnavailable indicates the flag could not be read.
var ErrNavigationUnavailable = errors.New("navigation service: unavailable")

// NavigationServiceDeps wires the return-navigation guard.
type NavigationServiceDeps struct {
	Orders        repositories.OrderRepository
	Gateway       payments.Gateway
	CancelTimeout time.Duration
	Logger        func(context.Context, string, map[string]any)
}

type navigationService struct {
	orders        repositories.OrderRepository
	gateway       payments.Gateway
	cancelTimeout time.Duration
	logger        func(context.Context, string, map[string]any)
}

const defaultCancelTimeout = 10 * time.Second

// NewNavigationService constructs the return-navigation guard.
func NewNavigationService(deps NavigationServiceDeps) (NavigationService, error) {
	if deps.Orders == nil {
		return nil, errNavigationOrdersRequired
	}
	timeout := deps.CancelTimeout
	if timeout <= 0 {
		timeout = defaultCancelTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &navigationService{
		orders:        deps.Orders,
		gateway:       deps.Gateway,
		cancelTimeout: timeout,
		logger:        logger,
	}, nil
}

// HandleReturn consumes the order's expectBack flag. The first hit cancels the
// order best-effort; later hits see Cancelled false and trigger nothing.
func (s *navigationService) HandleReturn(ctx context.Context, orderID string) (ReturnOutcome, error) {
	if s == nil || s.orders == nil {
		return ReturnOutcome{}, ErrNavigationUnavailable
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return ReturnOutcome{}, ErrReturnOrderNotFound
	}

	consumed, err := s.orders.ConsumeReturnFlag(ctx, oid)
	if err != nil {
		if isRepoNotFound(err) {
			return ReturnOutcome{}, ErrReturnOrderNotFound
		}
		return ReturnOutcome{}, fmt.Errorf("%w: %v", ErrNavigationUnavailable, err)
	}
	if !consumed {
		return ReturnOutcome{OrderID: oid, Cancelled: false}, nil
	}

	s.cancelOrder(ctx, oid)
	return ReturnOutcome{OrderID: oid, Cancelled: true}, nil
}

// HandleCancelBeacon is the fire-and-forget path behind the browser beacon.
// It consumes the flag and cancels exactly like HandleReturn, but every
// failure is logged and dropped.
func (s *navigationService) HandleCancelBeacon(ctx context.Context, orderID string) {
	if s == nil || s.orders == nil {
		return
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return
	}

	consumed, err := s.orders.ConsumeReturnFlag(ctx, oid)
	if err != nil {
		s.logger(ctx, "navigation.beacon_failed", map[string]any{
			"orderId": oid,
			"error":   err.Error(),
		})
		return
	}
	if consumed {
		s.cancelOrder(ctx, oid)
	}
}

// cancelOrder marks the order cancelled and expires the payment session.
// Recovery is cosmetic here so failures are logged, never surfaced.
func (s *navigationService) cancelOrder(ctx context.Context, orderID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cancelTimeout)
	defer cancel()

	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderCancelledByNavigation); err != nil {
		s.logger(ctx, "navigation.cancel_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}

	if s.gateway == nil {
		return
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil || order.PaymentSessionID == "" {
		return
	}
	if err := s.gateway.ExpireSession(ctx, order.PaymentSessionID); err != nil {
		s.logger(ctx, "navigation.session_expire_failed", map[string]any{
			"orderId":   orderID,
			"sessionId": order.PaymentSessionID,
			"error":     err.Error(),
		})
	}
}
