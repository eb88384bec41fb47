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
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultStoreBackend    = "memory"
	defaultBaseShippingFee = int64(30_000)
	defaultEventTopic      = "order-events"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	PSP       PSPConfig
	Auth      AuthConfig
	Checkout  CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string // "memory" or "firestore"
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	Collection   string
	EmulatorHost string
}

// PubSubConfig configures order event publishing. Publishing is disabled when
// the topic is empty.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// PSPConfig collects settings for payment providers.
type PSPConfig struct {
	StripeAPIKey      string
	StripeSuccessURL  string
	StripeCancelURL   string
	WalletEndpoint    string
	WalletSecret      string
	BankAccountName   string
	BankAccountNumber string
	BankName          string
	// GatewayWebhookSecret signs the payment callback bodies. Callbacks are
	// rejected when the secret is set and the signature does not match.
	GatewayWebhookSecret string
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// CheckoutConfig tunes order construction behaviour.
type CheckoutConfig struct {
	PendingTTL time.Duration
	// BaseShippingFee is the standard delivery fee in VND before promotion
	// and threshold rules apply.
	BaseShippingFee int64
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
		Store: StoreConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "API_STORE_BACKEND", defaultStoreBackend)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			Collection:   stringWithDefault(lookup, "API_FIRESTORE_COLLECTION", "records"),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID: stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "API_PUBSUB_ORDER_TOPIC", defaultEventTopic),
		},
		PSP: PSPConfig{
			StripeAPIKey:         stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripeSuccessURL:     stringWithDefault(lookup, "API_PSP_STRIPE_SUCCESS_URL", ""),
			StripeCancelURL:      stringWithDefault(lookup, "API_PSP_STRIPE_CANCEL_URL", ""),
			WalletEndpoint:       stringWithDefault(lookup, "API_PSP_WALLET_ENDPOINT", ""),
			WalletSecret:         stringWithDefault(lookup, "API_PSP_WALLET_SECRET", ""),
			BankAccountName:      stringWithDefault(lookup, "API_PSP_BANK_ACCOUNT_NAME", ""),
			BankAccountNumber:    stringWithDefault(lookup, "API_PSP_BANK_ACCOUNT_NUMBER", ""),
			BankName:             stringWithDefault(lookup, "API_PSP_BANK_NAME", ""),
			GatewayWebhookSecret: stringWithDefault(lookup, "API_PSP_GATEWAY_WEBHOOK_SECRET", ""),
		},
		Auth: AuthConfig{
			JWTSecret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
		},
		Checkout: CheckoutConfig{
			PendingTTL:      durationWithDefault(lookup, "API_CHECKOUT_PENDING_TTL", 30*time.Minute),
			BaseShippingFee: int64WithDefault(lookup, "API_CHECKOUT_BASE_SHIPPING_FEE", defaultBaseShippingFee),
		},
	}

	// PubSub project defaults to Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
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
	switch cfg.Store.Backend {
	case "memory":
	case "firestore":
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	default:
		missing = append(missing, "Store.Backend")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "Auth.JWTSecret")
	}
	if cfg.Checkout.PendingTTL <= 0 {
		missing = append(missing, "Checkout.PendingTTL")
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

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}
