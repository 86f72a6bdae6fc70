package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/platform/config"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrProductNotFound is returned when the catalog has no such product.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrStockUnavailable is returned when the stock endpoint cannot answer.
	ErrStockUnavailable = errors.New("catalog: stock unavailable")
)

// Client issues read-only calls against the product catalog service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a catalog client from configuration.
func NewClient(cfg config.CatalogConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type productPayload struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	Stock       int      `json:"stock"`
	Image       string   `json:"image"`
	Colors      []string `json:"colors"`
}

type stockPayload struct {
	Success    bool `json:"success"`
	LocalStock int  `json:"local_stock"`
}

// GetProduct fetches the catalog view of a single product.
func (c *Client) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("catalog: product id is required")
	}

	endpoint, err := url.JoinPath(c.baseURL, "products", id)
	if err != nil {
		return domain.Product{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Product{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Product{}, fmt.Errorf("catalog: fetch product %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Product{}, ErrProductNotFound
	}
	if resp.StatusCode >= 400 {
		return domain.Product{}, fmt.Errorf("catalog: product status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var payload productPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Product{}, fmt.Errorf("catalog: decode product %s: %w", id, err)
	}

	return domain.Product{
		ID:          strings.TrimSpace(payload.ID),
		Code:        strings.TrimSpace(payload.Code),
		Name:        strings.TrimSpace(payload.Name),
		Description: payload.Description,
		UnitPrice:   payload.Price,
		Stock:       payload.Stock,
		ImageURL:    strings.TrimSpace(payload.Image),
		Colors:      payload.Colors,
	}, nil
}

// GetStock queries the authoritative stock endpoint for a product.
func (c *Client) GetStock(ctx context.Context, productID string) (int, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return 0, errors.New("catalog: product id is required")
	}

	endpoint, err := url.JoinPath(c.baseURL, "products", id, "stock")
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStockUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("%w: status %d", ErrStockUnavailable, resp.StatusCode)
	}

	var payload stockPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStockUnavailable, err)
	}
	if !payload.Success {
		return 0, ErrStockUnavailable
	}
	if payload.LocalStock < 0 {
		return 0, nil
	}
	return payload.LocalStock, nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
