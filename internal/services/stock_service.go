package services

import (
	"context"
	"errors"
	"strings"
)

var errStockCatalogRequired = errors.New("stock service: catalog is required")

// StockServiceDeps wires the catalog stock endpoint.
type StockServiceDeps struct {
	Catalog StockFetcher
	Logger  func(context.Context, string, map[string]any)
}

type stockService struct {
	catalog StockFetcher
	logger  func(context.Context, string, map[string]any)
}

// NewStockService constructs the stock reconciler.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Catalog == nil {
		return nil, errStockCatalogRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &stockService{catalog: deps.Catalog, logger: logger}, nil
}

// Reconcile asks the catalog for the authoritative stock figure. Any failure
// keeps the last known value so a flaky catalog never blocks the caller.
func (s *stockService) Reconcile(ctx context.Context, productID string, lastKnown int) int {
	if lastKnown < 0 {
		lastKnown = 0
	}
	if s == nil || s.catalog == nil {
		return lastKnown
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return lastKnown
	}

	available, err := s.catalog.GetStock(ctx, pid)
	if err != nil {
		s.logger(ctx, "stock.reconcile_failed", map[string]any{
			"productId": pid,
			"lastKnown": lastKnown,
			"error":     err.Error(),
		})
		return lastKnown
	}
	if available < 0 {
		available = 0
	}
	return available
}
