package shiprates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/refaxia/storefront-api/internal/platform/config"
)

const defaultTimeout = 10 * time.Second

// ErrQuoteFailed signals that the carrier rate service could not produce a quote.
var ErrQuoteFailed = errors.New("shiprates: quote failed")

// Client requests shipping rates from the carrier rate service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a rate client from configuration.
func NewClient(cfg config.ShippingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// QuoteLine is one cart line submitted for rating.
type QuoteLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// QuoteRequest carries the destination and full line set.
type QuoteRequest struct {
	PostalCode string      `json:"postal_code"`
	State      string      `json:"state"`
	City       string      `json:"city"`
	Lines      []QuoteLine `json:"lines"`
}

// Quote is the carrier's answer for one destination and line set.
type Quote struct {
	Cost             int64
	OriginalCost     int64
	FreeShipping     bool
	EstimatedArrival *time.Time
}

type quotePayload struct {
	ShippingCost  int64  `json:"shipping_cost"`
	OriginalPrice int64  `json:"original_price"`
	FreeShipping  bool   `json:"free_shipping"`
	ETA           string `json:"eta"`
}

// GetQuote posts the destination and lines and returns the carrier quote.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if strings.TrimSpace(req.PostalCode) == "" {
		return Quote{}, fmt.Errorf("%w: postal code is required", ErrQuoteFailed)
	}
	if len(req.Lines) == 0 {
		return Quote{}, fmt.Errorf("%w: at least one line is required", ErrQuoteFailed)
	}

	endpoint, err := url.JoinPath(c.baseURL, "quotes")
	if err != nil {
		return Quote{}, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Quote{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Quote{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrQuoteFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Quote{}, fmt.Errorf("%w: status %d: %s", ErrQuoteFailed, resp.StatusCode, drainError(resp.Body))
	}

	var body quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrQuoteFailed, err)
	}

	quote := Quote{
		Cost:         body.ShippingCost,
		OriginalCost: body.OriginalPrice,
		FreeShipping: body.FreeShipping,
	}
	if quote.OriginalCost == 0 {
		quote.OriginalCost = body.ShippingCost
	}
	if eta := parseETA(body.ETA); !eta.IsZero() {
		quote.EstimatedArrival = &eta
	}
	return quote, nil
}

func parseETA(val string) time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, val); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
