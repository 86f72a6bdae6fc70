package postal

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
	// ErrPostalCodeNotFound is returned when the lookup service has no entry.
	ErrPostalCodeNotFound = errors.New("postal: postal code not found")
	// ErrLookupFailed signals that the lookup service could not answer.
	ErrLookupFailed = errors.New("postal: lookup failed")
)

// Client resolves Mexican postal codes to state, city, and colonies.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a postal lookup client from configuration.
func NewClient(cfg config.PostalConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type lookupPayload struct {
	Estado    string   `json:"estado"`
	Municipio string   `json:"municipio"`
	Colonias  []string `json:"colonias"`
}

// Lookup fetches the postal record for a five digit code.
func (c *Client) Lookup(ctx context.Context, postalCode string) (domain.PostalInfo, error) {
	code := strings.TrimSpace(postalCode)
	if len(code) != 5 {
		return domain.PostalInfo{}, fmt.Errorf("%w: postal code must be five digits", ErrPostalCodeNotFound)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return domain.PostalInfo{}, fmt.Errorf("%w: postal code must be five digits", ErrPostalCodeNotFound)
		}
	}

	endpoint, err := url.JoinPath(c.baseURL, "postal-codes", code)
	if err != nil {
		return domain.PostalInfo{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.PostalInfo{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.PostalInfo{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.PostalInfo{}, ErrPostalCodeNotFound
	}
	if resp.StatusCode >= 400 {
		return domain.PostalInfo{}, fmt.Errorf("%w: status %d: %s", ErrLookupFailed, resp.StatusCode, drainError(resp.Body))
	}

	var payload lookupPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.PostalInfo{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	info := domain.PostalInfo{
		PostalCode: code,
		State:      strings.TrimSpace(payload.Estado),
		City:       strings.TrimSpace(payload.Municipio),
		Colonies:   make([]string, 0, len(payload.Colonias)),
	}
	for _, colony := range payload.Colonias {
		if colony = strings.TrimSpace(colony); colony != "" {
			info.Colonies = append(info.Colonies, colony)
		}
	}
	return info, nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
