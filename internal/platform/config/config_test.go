package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":          "storefront-dev",
		"API_STORAGE_TAX_DOCUMENTS_BUCKET": "storefront-tax-docs-dev",
		"API_PSP_STRIPE_API_KEY":           "sk_test_123",
		"API_PSP_SUCCESS_URL":              "https://shop.example.com/payments/return",
		"API_PSP_CANCEL_URL":               "https://shop.example.com/payments/return",
		"API_CATALOG_BASE_URL":             "https://catalog.example.com",
		"API_SHIPPING_BASE_URL":            "https://rates.example.com",
		"API_POSTAL_BASE_URL":              "https://postal.example.com",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "storefront-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Shipping.FreeShippingThreshold != defaultFreeShippingMinor {
		t.Errorf("unexpected default free shipping threshold: %d", cfg.Shipping.FreeShippingThreshold)
	}
	if len(cfg.Shipping.PickupBranchIDs) != 0 {
		t.Errorf("expected no pickup branches, got %v", cfg.Shipping.PickupBranchIDs)
	}
	if cfg.Checkout.Currency != "MXN" {
		t.Errorf("expected default currency MXN, got %s", cfg.Checkout.Currency)
	}
	if cfg.PSP.SessionTTL != defaultSessionTTL {
		t.Errorf("unexpected default session ttl: %s", cfg.PSP.SessionTTL)
	}
	if cfg.Catalog.Timeout != defaultClientTimeout {
		t.Errorf("unexpected default catalog timeout: %s", cfg.Catalog.Timeout)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_SERVER_READ_TIMEOUT"] = "20s"
	env["API_FIRESTORE_PROJECT_ID"] = "storefront-fire"
	env["API_SHIPPING_FREE_THRESHOLD"] = "100000"
	env["API_SHIPPING_PICKUP_BRANCHES"] = "matriz, sucursal-norte"
	env["API_SHIPPING_TIMEOUT"] = "5s"
	env["API_CHECKOUT_CURRENCY"] = "mxn"
	env["API_PSP_SESSION_TTL"] = "45m"

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "storefront-fire" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Shipping.FreeShippingThreshold != 100000 {
		t.Errorf("unexpected free shipping threshold: %d", cfg.Shipping.FreeShippingThreshold)
	}
	if len(cfg.Shipping.PickupBranchIDs) != 2 || cfg.Shipping.PickupBranchIDs[1] != "sucursal-norte" {
		t.Errorf("unexpected pickup branches: %v", cfg.Shipping.PickupBranchIDs)
	}
	if cfg.Shipping.Timeout != 5*time.Second {
		t.Errorf("unexpected shipping timeout: %s", cfg.Shipping.Timeout)
	}
	if cfg.Checkout.Currency != "MXN" {
		t.Errorf("expected currency upper-cased, got %s", cfg.Checkout.Currency)
	}
	if cfg.PSP.SessionTTL != 45*time.Minute {
		t.Errorf("unexpected session ttl: %s", cfg.PSP.SessionTTL)
	}
}

func TestLoadValidation(t *testing.T) {
	env := baseEnv()
	delete(env, "API_PSP_STRIPE_API_KEY")
	delete(env, "API_SHIPPING_BASE_URL")

	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	fields := validation.Fields()
	want := map[string]bool{"PSP.StripeAPIKey": false, "Shipping.BaseURL": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields, got %v", field, fields)
		}
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	contents := "API_SERVER_PORT=7070\nexport API_CHECKOUT_CURRENCY=\"usd\"\n# comment\n"
	if err := os.WriteFile(envPath, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from .env, got %s", cfg.Server.Port)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Errorf("expected currency from .env, got %s", cfg.Checkout.Currency)
	}
}

func TestEnvMapTakesPrecedenceOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("API_SERVER_PORT=7070\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	env := baseEnv()
	env["API_SERVER_PORT"] = "9999"

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("expected explicit env map to win, got %s", cfg.Server.Port)
	}
}
