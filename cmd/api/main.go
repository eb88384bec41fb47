package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/handlers"
	"github.com/mekongcart/api/internal/payments"
	"github.com/mekongcart/api/internal/platform/auth"
	"github.com/mekongcart/api/internal/platform/config"
	pfirestore "github.com/mekongcart/api/internal/platform/firestore"
	"github.com/mekongcart/api/internal/platform/jobs"
	"github.com/mekongcart/api/internal/platform/observability"
	"github.com/mekongcart/api/internal/repositories"
	"github.com/mekongcart/api/internal/repositories/kv"
	"github.com/mekongcart/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("configuration invalid", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise store", zap.Error(err))
	}
	defer closeStore()

	cartRepo := kv.NewCartRepository(store)
	addressRepo := kv.NewAddressRepository(store)
	appliedRepo := kv.NewAppliedPromotionRepository(store)
	promotionRepo := kv.NewPromotionRepository(store)
	pendingRepo := kv.NewPendingOrderRepository(store)
	orderRepo := kv.NewOrderRepository(store)

	// The in-memory backend starts empty on every boot, so load a small
	// promotion catalog for local development.
	if cfg.Store.Backend == "memory" {
		if err := seedPromotions(ctx, promotionRepo, startedAt); err != nil {
			logger.Warn("promotion catalog seed failed", zap.Error(err))
		}
	}

	engine, err := services.NewPricingEngine(services.PricingEngineDeps{})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	catalog, err := services.NewPromotionCatalog(services.PromotionCatalogDeps{Repository: promotionRepo})
	if err != nil {
		logger.Fatal("failed to initialise promotion catalog", zap.Error(err))
	}

	paymentLog := observability.EventLogger(logger.Named("payments"))
	paymentManager, walletProvider, err := newPaymentManager(cfg.PSP, paymentLog)
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}

	var publisher services.OrderEventPublisher
	if cfg.PubSub.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(cfg.PubSub.Topic)
		defer topic.Stop()
		publisher, err = jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	} else {
		logger.Info("order event publishing disabled; no pubsub project configured")
	}

	serviceLog := observability.EventLogger(logger.Named("services"))

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Carts:           cartRepo,
		Addresses:       addressRepo,
		Applied:         appliedRepo,
		Catalog:         catalog,
		Engine:          engine,
		BaseShippingFee: cfg.Checkout.BaseShippingFee,
		Logger:          serviceLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:      cartRepo,
		Applied:    appliedRepo,
		Pending:    pendingRepo,
		Orders:     orderRepo,
		Engine:     engine,
		Payments:   paymentManager,
		Events:     publisher,
		BaseFee:    cfg.Checkout.BaseShippingFee,
		PendingTTL: cfg.Checkout.PendingTTL,
		Logger:     serviceLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	fulfillmentService, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
		Orders: orderRepo,
		Events: publisher,
		Logger: serviceLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise fulfillment service", zap.Error(err))
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	cartHandlers := handlers.NewCartHandlers(authenticator, cartService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, fulfillmentService)
	webhookHandlers := handlers.NewPaymentWebhookHandlers(checkoutService, walletProvider)

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
	}
	if cfg.Store.Backend == "firestore" {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("store", storeProbe(store)))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	}
	if secret := strings.TrimSpace(cfg.PSP.GatewayWebhookSecret); secret != "" {
		verifier := auth.NewSignedBodyVerifier(secret)
		opts = append(opts, handlers.WithWebhookMiddlewares(verifier.Middleware()))
	} else {
		logger.Warn("gateway webhook signature verification disabled; no secret configured")
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("mekongcart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newStore selects the persistence backend. The returned close func releases
// the backing client when one exists.
func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.KV, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		logger.Info("using in-memory store; data is lost on restart")
		return kv.NewMemory(), func() {}, nil
	case "firestore":
		provider := pfirestore.NewProvider(cfg.Firestore)
		client, err := provider.Client(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		store, err := kv.NewFirestore(client, cfg.Firestore.Collection)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore store: %w", err)
		}
		closeStore := func() {
			if err := provider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}
		return store, closeStore, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// storeProbe reads a sentinel key to confirm the backend answers. A missing
// key is still a healthy round trip.
func storeProbe(store repositories.KV) handlers.ReadinessCheck {
	return func(ctx context.Context) error {
		_, _, err := store.Get(ctx, "healthcheck")
		return err
	}
}

func seedPromotions(ctx context.Context, repo repositories.PromotionRepository, now time.Time) error {
	expiry := now.AddDate(1, 0, 0)

	welcome, err := domain.NewPercentagePromotion("WELCOME10", 10, 50_000, 100_000, expiry, true)
	if err != nil {
		return err
	}
	freeship, err := domain.NewShippingPromotion("FREESHIP", 30_000, 200_000, expiry, false)
	if err != nil {
		return err
	}

	for _, promotion := range []domain.Promotion{welcome, freeship} {
		if err := repo.Put(ctx, promotion); err != nil {
			return err
		}
	}
	return nil
}

func newPaymentManager(cfg config.PSPConfig, logger func(context.Context, string, map[string]any)) (*payments.Manager, *payments.WalletProvider, error) {
	providers := map[domain.PaymentMethod]payments.Provider{
		domain.PaymentCashOnDelivery: payments.NewCashProvider(),
	}

	if strings.TrimSpace(cfg.BankAccountNumber) != "" {
		bank, err := payments.NewBankTransferProvider(payments.BankTransferConfig{
			AccountName:   cfg.BankAccountName,
			AccountNumber: cfg.BankAccountNumber,
			BankName:      cfg.BankName,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bank transfer provider: %w", err)
		}
		providers[domain.PaymentBankTransfer] = bank
	}

	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		card, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:     cfg.StripeAPIKey,
			SuccessURL: cfg.StripeSuccessURL,
			CancelURL:  cfg.StripeCancelURL,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("stripe provider: %w", err)
		}
		providers[domain.PaymentCard] = card
	}

	var wallet *payments.WalletProvider
	if strings.TrimSpace(cfg.WalletEndpoint) != "" {
		provider, err := payments.NewWalletProvider(payments.WalletConfig{
			Endpoint: cfg.WalletEndpoint,
			Secret:   cfg.WalletSecret,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wallet provider: %w", err)
		}
		wallet = provider
		providers[domain.PaymentEWallet] = wallet
	}

	manager, err := payments.NewManager(providers)
	if err != nil {
		return nil, nil, err
	}
	return manager, wallet, nil
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
