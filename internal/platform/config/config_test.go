package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_AUTH_JWT_SECRET": "test-secret",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %s, got %s", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected default memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.PubSub.Topic != defaultEventTopic {
		t.Errorf("expected default topic %s, got %s", defaultEventTopic, cfg.PubSub.Topic)
	}
	if cfg.Checkout.PendingTTL != 30*time.Minute {
		t.Errorf("unexpected pending ttl: %s", cfg.Checkout.PendingTTL)
	}
	if cfg.Checkout.BaseShippingFee != defaultBaseShippingFee {
		t.Errorf("unexpected base shipping fee: %d", cfg.Checkout.BaseShippingFee)
	}
	if cfg.PSP.GatewayWebhookSecret != "" {
		t.Errorf("expected empty gateway webhook secret, got %q", cfg.PSP.GatewayWebhookSecret)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                "9090",
		"API_SERVER_READ_TIMEOUT":        "20s",
		"API_STORE_BACKEND":              "firestore",
		"API_FIRESTORE_PROJECT_ID":       "mekong-prod",
		"API_FIRESTORE_COLLECTION":       "cart_records",
		"API_PUBSUB_ORDER_TOPIC":         "orders-prod",
		"API_PSP_STRIPE_API_KEY":         "sk_test_123",
		"API_PSP_GATEWAY_WEBHOOK_SECRET": "whsec_abc",
		"API_AUTH_JWT_SECRET":            "prod-secret",
		"API_CHECKOUT_PENDING_TTL":       "45m",
		"API_CHECKOUT_BASE_SHIPPING_FEE": "25000",
	}

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
	if cfg.Store.Backend != "firestore" {
		t.Errorf("unexpected backend: %s", cfg.Store.Backend)
	}
	if cfg.Firestore.Collection != "cart_records" {
		t.Errorf("unexpected collection: %s", cfg.Firestore.Collection)
	}
	if cfg.PubSub.ProjectID != "mekong-prod" {
		t.Errorf("expected pubsub project to fall back to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.Topic != "orders-prod" {
		t.Errorf("unexpected topic: %s", cfg.PubSub.Topic)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_123" {
		t.Errorf("unexpected stripe key: %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.PSP.GatewayWebhookSecret != "whsec_abc" {
		t.Errorf("unexpected webhook secret: %s", cfg.PSP.GatewayWebhookSecret)
	}
	if cfg.Checkout.PendingTTL != 45*time.Minute {
		t.Errorf("unexpected pending ttl: %s", cfg.Checkout.PendingTTL)
	}
	if cfg.Checkout.BaseShippingFee != 25_000 {
		t.Errorf("unexpected base shipping fee: %d", cfg.Checkout.BaseShippingFee)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{
			name:  "missing jwt secret",
			env:   map[string]string{},
			field: "Auth.JWTSecret",
		},
		{
			name: "firestore backend requires project",
			env: map[string]string{
				"API_AUTH_JWT_SECRET": "s",
				"API_STORE_BACKEND":   "firestore",
			},
			field: "Firestore.ProjectID",
		},
		{
			name: "unknown backend",
			env: map[string]string{
				"API_AUTH_JWT_SECRET": "s",
				"API_STORE_BACKEND":   "postgres",
			},
			field: "Store.Backend",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(WithEnvMap(tc.env), WithoutSystemEnv(), WithEnvFile(""))
			var invalid *ValidationError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected validation error, got %v", err)
			}
			found := false
			for _, field := range invalid.Fields() {
				if field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, invalid.Fields())
			}
		})
	}
}
