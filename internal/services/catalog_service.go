package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/refaxia/storefront-api/internal/clients/catalog"
	"github.com/refaxia/storefront-api/internal/domain"
)

var errCatalogClientRequired = errors.New("catalog service: client is required")

// ErrCatalogProductNotFound indicates the catalog has no such product.
var ErrCatalogProductNotFound = errors.New("catalog service: product not found")

// ErrCatalogUnavailable indicates the catalog collaborator cannot answer.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// CatalogServiceDeps wires the catalog collaborator.
type CatalogServiceDeps struct {
	Client ProductFetcher
	Stock  StockService
	Logger func(context.Context, string, map[string]any)
}

type catalogService struct {
	client ProductFetcher
	stock  StockService
	logger func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog read-through.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Client == nil {
		return nil, errCatalogClientRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{client: deps.Client, stock: deps.Stock, logger: logger}, nil
}

// GetProduct proxies the catalog, overlaying the reconciled stock figure.
func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if s == nil || s.client == nil {
		return domain.Product{}, ErrCatalogUnavailable
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogProductNotFound)
	}

	product, err := s.client.GetProduct(ctx, pid)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrCatalogProductNotFound, pid)
		}
		return domain.Product{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	if s.stock != nil {
		product.Stock = s.stock.Reconcile(ctx, pid, product.Stock)
	}
	return product, nil
}
