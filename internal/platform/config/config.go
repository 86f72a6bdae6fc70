package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultClientTimeout     = 10 * time.Second
	defaultCurrency          = "MXN"
	defaultFreeShippingMinor = int64(200000)
	defaultSessionTTL        = 30 * time.Minute
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	Storage   StorageConfig
	PSP       PSPConfig
	Catalog   CatalogConfig
	Shipping  ShippingConfig
	Postal    PostalConfig
	Checkout  CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings used for token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig lists bucket settings used by the application.
type StorageConfig struct {
	TaxDocumentsBucket string
	CredentialsFile    string
}

// PSPConfig collects payment provider credentials and redirect targets.
type PSPConfig struct {
	StripeAPIKey string
	SuccessURL   string
	CancelURL    string
	SessionTTL   time.Duration
}

// CatalogConfig points at the read-only product catalog service.
type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ShippingConfig points at the carrier rate service and carries the
// storefront's free-shipping policy.
type ShippingConfig struct {
	BaseURL               string
	Timeout               time.Duration
	FreeShippingThreshold int64
	PickupBranchIDs       []string
}

// PostalConfig points at the postal-code lookup service.
type PostalConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CheckoutConfig groups order-level settings.
type CheckoutConfig struct {
	Currency string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values
// in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided
// maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			TaxDocumentsBucket: stringWithDefault(lookup, "API_STORAGE_TAX_DOCUMENTS_BUCKET", ""),
			CredentialsFile:    stringWithDefault(lookup, "API_STORAGE_CREDENTIALS_FILE", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey: stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			SuccessURL:   stringWithDefault(lookup, "API_PSP_SUCCESS_URL", ""),
			CancelURL:    stringWithDefault(lookup, "API_PSP_CANCEL_URL", ""),
			SessionTTL:   durationWithDefault(lookup, "API_PSP_SESSION_TTL", defaultSessionTTL),
		},
		Catalog: CatalogConfig{
			BaseURL: stringWithDefault(lookup, "API_CATALOG_BASE_URL", ""),
			Timeout: durationWithDefault(lookup, "API_CATALOG_TIMEOUT", defaultClientTimeout),
		},
		Shipping: ShippingConfig{
			BaseURL:               stringWithDefault(lookup, "API_SHIPPING_BASE_URL", ""),
			Timeout:               durationWithDefault(lookup, "API_SHIPPING_TIMEOUT", defaultClientTimeout),
			FreeShippingThreshold: int64WithDefault(lookup, "API_SHIPPING_FREE_THRESHOLD", defaultFreeShippingMinor),
			PickupBranchIDs:       csvWithDefault(lookup, "API_SHIPPING_PICKUP_BRANCHES"),
		},
		Postal: PostalConfig{
			BaseURL: stringWithDefault(lookup, "API_POSTAL_BASE_URL", ""),
			Timeout: durationWithDefault(lookup, "API_POSTAL_TIMEOUT", defaultClientTimeout),
		},
		Checkout: CheckoutConfig{
			Currency: strings.ToUpper(stringWithDefault(lookup, "API_CHECKOUT_CURRENCY", defaultCurrency)),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Storage.TaxDocumentsBucket == "" {
		missing = append(missing, "Storage.TaxDocumentsBucket")
	}
	if cfg.PSP.StripeAPIKey == "" {
		missing = append(missing, "PSP.StripeAPIKey")
	}
	if cfg.PSP.SuccessURL == "" {
		missing = append(missing, "PSP.SuccessURL")
	}
	if cfg.PSP.CancelURL == "" {
		missing = append(missing, "PSP.CancelURL")
	}
	if cfg.Catalog.BaseURL == "" {
		missing = append(missing, "Catalog.BaseURL")
	}
	if cfg.Shipping.BaseURL == "" {
		missing = append(missing, "Shipping.BaseURL")
	}
	if cfg.Shipping.FreeShippingThreshold < 0 {
		missing = append(missing, "Shipping.FreeShippingThreshold")
	}
	if cfg.Postal.BaseURL == "" {
		missing = append(missing, "Postal.BaseURL")
	}
	if cfg.Checkout.Currency == "" {
		missing = append(missing, "Checkout.Currency")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
