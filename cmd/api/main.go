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
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/email"
	"github.com/asg-shop/api/internal/handlers"
	"github.com/asg-shop/api/internal/payments"
	"github.com/asg-shop/api/internal/platform/auth"
	"github.com/asg-shop/api/internal/platform/config"
	pfirestore "github.com/asg-shop/api/internal/platform/firestore"
	"github.com/asg-shop/api/internal/platform/jobs"
	"github.com/asg-shop/api/internal/platform/observability"
	"github.com/asg-shop/api/internal/platform/secrets"
	platformstorage "github.com/asg-shop/api/internal/platform/storage"
	firestoreRepo "github.com/asg-shop/api/internal/repositories/firestore"
	"github.com/asg-shop/api/internal/services"
	"github.com/asg-shop/api/internal/shipping"
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

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.ResolveSecret)),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	orderTopic := pubsubClient.Topic(cfg.Events.OrderTopic)
	defer orderTopic.Stop()

	orderPublisher, err := jobs.NewPubSubOrderPublisher(orderTopic)
	if err != nil {
		logger.Fatal("failed to initialise order publisher", zap.Error(err))
	}

	var labelArchiver services.LabelArchiver
	if strings.TrimSpace(cfg.Storage.LabelsBucket) != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		labelArchiver, err = platformstorage.NewLabelArchiver(storageClient, cfg.Storage.LabelsBucket)
		if err != nil {
			logger.Fatal("failed to initialise label archiver", zap.Error(err))
		}
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	counterRepo, err := firestoreRepo.NewCounterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}
	inventoryRepo, err := firestoreRepo.NewInventoryRepository(firestoreProvider, observability.EventLogger(logger.Named("inventory")))
	if err != nil {
		logger.Fatal("failed to initialise inventory repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	creditRepo, err := firestoreRepo.NewCreditRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise credit repository", zap.Error(err))
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		logger.Fatal("stripe api key is required")
	}
	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: observability.EventLogger(logger.Named("payments")),
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
	}

	if strings.TrimSpace(cfg.Carrier.ShippoAPIKey) == "" {
		logger.Fatal("shippo api key is required")
	}
	carrier, err := shipping.NewShippoClient(cfg.Carrier.ShippoAPIKey,
		shipping.WithBaseURL(cfg.Carrier.BaseURL),
		shipping.WithHTTPClient(&http.Client{Timeout: cfg.Carrier.Timeout}),
	)
	if err != nil {
		logger.Fatal("failed to initialise carrier client", zap.Error(err))
	}

	rateAggregator, err := shipping.NewRateAggregator(shipping.RateAggregatorDeps{
		Carrier:       carrier,
		ShipFrom:      shipFromAddress(cfg.Carrier),
		CustomsSigner: cfg.Carrier.CustomsSigner,
		Logger:        observability.EventLogger(logger.Named("shipping")),
	})
	if err != nil {
		logger.Fatal("failed to initialise rate aggregator", zap.Error(err))
	}

	orderIDs, err := services.NewOrderIDAllocator(services.OrderIDAllocatorDeps{Counters: counterRepo})
	if err != nil {
		logger.Fatal("failed to initialise order id allocator", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		OrderIDs:  orderIDs,
		Orders:    orderRepo,
		Credit:    creditRepo,
		Gateway:   gateway,
		Publisher: orderPublisher,
		Logger:    observability.EventLogger(logger.Named("checkout")),
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Repository: inventoryRepo,
		Logger:     observability.EventLogger(logger.Named("inventory")),
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory service", zap.Error(err))
	}

	var receiptSender services.ReceiptSender
	var pickTicketSender services.PickTicketSender
	if strings.TrimSpace(cfg.Email.SendGridAPIKey) != "" {
		mailSender, err := email.NewSendGridSender(cfg.Email)
		if err != nil {
			logger.Fatal("failed to initialise email sender", zap.Error(err))
		}
		receiptSender = mailSender
		pickTicketSender = mailSender
	} else {
		logger.Warn("email: sendgrid api key not configured; receipts disabled")
	}

	fulfillmentService, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
		Orders:      orderRepo,
		Inventory:   inventoryService,
		Labels:      rateAggregator,
		Archiver:    labelArchiver,
		Receipts:    receiptSender,
		PickTickets: pickTicketSender,
		Logger:      observability.EventLogger(logger.Named("fulfillment")),
	})
	if err != nil {
		logger.Fatal("failed to initialise fulfillment service", zap.Error(err))
	}

	shippingHandlers := handlers.NewShippingHandlers(rateAggregator)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, fulfillmentService)
	eventHandlers := handlers.NewEventHandlers(fulfillmentService)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthStartedAt(startedAt),
		handlers.WithReadinessChecks(handlers.ReadinessCheck{
			Name: "firestore",
			Probe: func(ctx context.Context) error {
				probeCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
				defer cancel()
				iter := firestoreClient.Collections(probeCtx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithShippingRoutes(shippingHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithInternalRoutes(eventHandlers.Routes),
	)

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
		serverLogger.Info("asg-shop api listening")
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

func shipFromAddress(cfg config.CarrierConfig) domain.Address {
	return domain.Address{
		Name:    cfg.ShipFrom.Name,
		Street1: cfg.ShipFrom.Street1,
		City:    cfg.ShipFrom.City,
		State:   cfg.ShipFrom.State,
		Zip:     cfg.ShipFrom.Zip,
		Country: cfg.ShipFrom.Country,
		Phone:   cfg.ShipFrom.Phone,
		Email:   cfg.ShipFrom.Email,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
