package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/cuongbtq/chain-job-service/internal/chain"
	"github.com/cuongbtq/chain-job-service/internal/config"
	"github.com/cuongbtq/chain-job-service/internal/events"
	"github.com/cuongbtq/chain-job-service/internal/kms"
	"github.com/cuongbtq/chain-job-service/internal/metrics"
	"github.com/cuongbtq/chain-job-service/internal/processor"
	"github.com/cuongbtq/chain-job-service/internal/worker"
	"github.com/cuongbtq/chain-job-service/internal/worker/storage"
	"github.com/cuongbtq/chain-job-service/shared/logger"
	"github.com/cuongbtq/chain-job-service/shared/postgresql"
	"github.com/cuongbtq/chain-job-service/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fundNative, fundStablecoin, err := parseFundingAmounts(&cfg.Funding)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	workerID := "worker-" + uuid.NewString()[:8]

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	// Cleanup function to close all resources
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer cleanup()

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	closers = append(closers, func() { dbClient.Close() })

	appLogger.Info("Database connection established")

	// Job queue: consumes work and parks retries
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	closers = append(closers, func() { rabbitClient.Close() })

	// Events exchange: publish only
	eventsClient, err := initEventsRabbitMQ(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize events publisher: %w", err)
	}
	closers = append(closers, func() { eventsClient.Close() })

	appLogger.Info("RabbitMQ connections established")

	// Initialize chain client
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 30*time.Second)
	chainClient, err := chain.Dial(dialCtx, chain.Config{
		RPCURL:              cfg.Chain.RPCURL,
		ChainID:             cfg.Chain.ChainID,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval,
		AdminPrivateKey:     cfg.Chain.AdminPrivateKey,
		FaucetPrivateKey:    cfg.Chain.FaucetPrivateKey,
	}, appLogger.Logger)
	if err != nil {
		dialCancel()
		return fmt.Errorf("failed to initialize chain client: %w", err)
	}
	closers = append(closers, chainClient.Close)

	logChainState(dialCtx, chainClient, appLogger.Logger)
	dialCancel()

	registry := chain.NewRegistry(chain.RegistryConfig{
		OrganizationFactory: cfg.Contracts.OrganizationFactory,
		AssetRegistry:       cfg.Contracts.AssetRegistry,
		RevenueDistributor:  cfg.Contracts.RevenueDistributor,
		Stablecoin:          cfg.Contracts.Stablecoin,
	})

	jobProcessor := processor.New(&processor.Config{
		Logger:               appLogger.Logger,
		Store:                storage.NewStorage(dbClient.GetDB(), appLogger.Logger),
		Chain:                chainClient,
		Keys:                 kms.NewClient(kms.Config{BaseURL: cfg.KMS.BaseURL, APIToken: cfg.KMS.APIToken, Timeout: cfg.KMS.Timeout}, appLogger.Logger),
		Registry:             registry,
		Publisher:            events.NewPublisher(eventsClient, appLogger.Logger),
		StablecoinDecimals:   cfg.Contracts.StablecoinDecimals,
		FundNativeAmount:     fundNative,
		FundStablecoinAmount: fundStablecoin,
		JobTimeout:           cfg.Worker.JobTimeout,
		ClaimLease:           cfg.Worker.ClaimLease,
	})

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Broker:        rabbitClient,
		Processor:     jobProcessor,
		WorkerID:      workerID,
		QueueName:     cfg.RabbitMQ.Queue.Name,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		Retry: worker.RetryPolicy{
			MaxAttempts: cfg.RabbitMQ.Retry.MaxAttempts,
			BaseDelay:   cfg.RabbitMQ.Retry.BaseDelay,
			MaxDelay:    cfg.RabbitMQ.Retry.MaxDelay,
		},
	})

	metricsServer := startMetricsServer(&cfg.Metrics, appLogger.Logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.String("queue", cfg.RabbitMQ.Queue.Name),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", runErr),
		)
	}

	// Stop intake, then give in-flight jobs time to finish
	cancel()
	workerInstance.Stop(cfg.Worker.ShutdownTimeout)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
		shutdownCancel()
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the job queue client together with its retry and dead-letter queues
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryQueueName:     cfg.Queue.RetryQueue,
		DeadLetterQueue:    cfg.Queue.DeadLetterQueue,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initEventsRabbitMQ initializes a publish-only client on the events topic exchange
func initEventsRabbitMQ(cfg *config.Config, logger *slog.Logger) (*rabbitmq.Client, error) {
	broker := &cfg.RabbitMQ
	exchange := &cfg.Events.Exchange

	rabbitConfig := &rabbitmq.Config{
		Host:               broker.Host,
		Port:               broker.Port,
		User:               broker.User,
		Password:           broker.Password,
		VHost:              broker.VHost,
		ExchangeName:       exchange.Name,
		ExchangeType:       exchange.Type,
		ExchangeDurable:    exchange.Durable,
		ExchangeAutoDelete: exchange.AutoDelete,
		RetryAttempts:      broker.Connection.RetryAttempts,
		RetryInterval:      broker.Connection.RetryInterval,
		Heartbeat:          broker.Connection.Heartbeat,
		ConnectionTimeout:  broker.Connection.ConnectionTimeout,
		PublishRetries:     broker.Publish.RetryAttempts,
		PublishRetryDelay:  broker.Publish.RetryInterval,
		PublishBackoffMult: broker.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// parseFundingAmounts reads the per-wallet funding amounts as decimals
func parseFundingAmounts(cfg *config.FundingConfig) (decimal.Decimal, decimal.Decimal, error) {
	native, err := decimal.NewFromString(cfg.NativeAmount)
	if err != nil || !native.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("funding native_amount must be a positive decimal, got %q", cfg.NativeAmount)
	}

	stablecoin, err := decimal.NewFromString(cfg.StablecoinAmount)
	if err != nil || !stablecoin.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("funding stablecoin_amount must be a positive decimal, got %q", cfg.StablecoinAmount)
	}

	return native, stablecoin, nil
}

// logChainState logs the head block and platform wallet balances
func logChainState(ctx context.Context, client *chain.Client, logger *slog.Logger) {
	head, err := client.Provider().BlockNumber(ctx)
	if err != nil {
		logger.Warn("Failed to read head block", slog.Any("error", err))
		return
	}

	attrs := []any{slog.Uint64("head_block", head)}
	for name, signer := range map[string]chain.Signer{"admin": client.AdminSigner(), "faucet": client.FaucetSigner()} {
		balance, err := client.BalanceAt(ctx, signer.Address())
		if err != nil {
			logger.Warn("Failed to read wallet balance", slog.String("wallet", name), slog.Any("error", err))
			continue
		}
		attrs = append(attrs, slog.String(name+"_balance", chain.FromBaseUnits(balance, chain.NativeDecimals).String()))
	}

	logger.Info("Chain state", attrs...)
}

// startMetricsServer serves Prometheus metrics when enabled
func startMetricsServer(cfg *config.MetricsConfig, logger *slog.Logger) *http.Server {
	if !cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	logger.Info("Metrics server listening",
		slog.String("address", srv.Addr),
		slog.String("path", cfg.Path),
	)
	return srv
}
