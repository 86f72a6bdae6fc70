package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/refaxia/storefront-api/internal/payments"
	"github.com/refaxia/storefront-api/internal/platform/config"
	"github.com/refaxia/storefront-api/internal/repositories"
	"github.com/refaxia/storefront-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Cart       services.CartService
	Stock      services.StockService
	Shipping   services.ShippingService
	Invoice    services.InvoiceService
	Checkout   services.CheckoutService
	Navigation services.NavigationService
	Addresses  services.AddressService
	Catalog    services.CatalogService
	System     services.SystemService
}

// Deps carries the externally constructed infrastructure the services build on.
type Deps struct {
	Registry repositories.Registry
	Products services.ProductFetcher
	Stock    services.StockFetcher
	Rates    services.RateFetcher
	Postal   services.PostalFetcher
	Uploader services.DocumentUploader
	Gateway  payments.Gateway
	Logger   *zap.Logger
}

// Container wires repositories, clients, and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources held by the container.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := func() string { return ulid.Make().String() }

	stockSvc, err := services.NewStockService(services.StockServiceDeps{
		Catalog: deps.Stock,
		Logger:  eventLogger(logger.Named("stock")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock service: %w", err)
	}
	svc.Stock = stockSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository:      reg.Carts(),
		Catalog:         deps.Products,
		Stock:           stockSvc,
		Clock:           time.Now,
		DefaultCurrency: cfg.Checkout.Currency,
		Logger:          eventLogger(logger.Named("cart")),
		IDGenerator:     newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	shippingSvc, err := services.NewShippingService(services.ShippingServiceDeps{
		Rates:                 deps.Rates,
		Addresses:             reg.Addresses(),
		FreeShippingThreshold: cfg.Shipping.FreeShippingThreshold,
		Logger:                eventLogger(logger.Named("shipping")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}
	svc.Shipping = shippingSvc

	invoiceSvc, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Uploader: deps.Uploader,
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("invoice")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build invoice service: %w", err)
	}
	svc.Invoice = invoiceSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       cartSvc,
		Orders:      reg.Orders(),
		Addresses:   reg.Addresses(),
		Stock:       stockSvc,
		Shipping:    shippingSvc,
		Gateway:     deps.Gateway,
		Currency:    cfg.Checkout.Currency,
		SuccessURL:  cfg.PSP.SuccessURL,
		CancelURL:   cfg.PSP.CancelURL,
		SessionTTL:  cfg.PSP.SessionTTL,
		Clock:       time.Now,
		Logger:      eventLogger(logger.Named("checkout")),
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	navigationSvc, err := services.NewNavigationService(services.NavigationServiceDeps{
		Orders:  reg.Orders(),
		Gateway: deps.Gateway,
		Logger:  eventLogger(logger.Named("navigation")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build navigation service: %w", err)
	}
	svc.Navigation = navigationSvc

	addressSvc, err := services.NewAddressService(services.AddressServiceDeps{
		Repository:  reg.Addresses(),
		Postal:      deps.Postal,
		Clock:       time.Now,
		Logger:      eventLogger(logger.Named("addresses")),
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}
	svc.Addresses = addressSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Client: deps.Products,
		Stock:  stockSvc,
		Logger: eventLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			Health: healthRepo,
			Logger: eventLogger(logger.Named("system")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// eventLogger adapts a zap logger to the service-layer logging callback.
func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
