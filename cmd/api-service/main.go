package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/api/handler"
	"github.com/cuongbtq/media-fetcher/internal/api/router"
	"github.com/cuongbtq/media-fetcher/internal/api/storage"
	"github.com/cuongbtq/media-fetcher/internal/config"
	"github.com/cuongbtq/media-fetcher/internal/converter"
	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/cuongbtq/media-fetcher/internal/converter/events"
	"github.com/cuongbtq/media-fetcher/internal/converter/process"
	"github.com/cuongbtq/media-fetcher/internal/converter/provision"
	"github.com/cuongbtq/media-fetcher/shared/logger"
	"github.com/cuongbtq/media-fetcher/shared/postgresql"
	"github.com/cuongbtq/media-fetcher/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger = appLogger.WithAttrs(
		slog.String("service", "api-service"),
		slog.String("environment", cfg.App.Environment),
	)

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Converter executable
	provisioner, err := initProvisioner(&cfg.Converter, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize provisioner: %w", err)
	}

	if cfg.Converter.ProvisionOnStart {
		exe, err := provisioner.Ensure(context.Background())
		if err != nil {
			return fmt.Errorf("failed to provision converter: %w", err)
		}
		appLogger.Info("Converter executable ready",
			slog.String("path", exe.Path),
			slog.Int64("size_bytes", exe.SizeBytes),
		)
	}

	handlerDeps := &handler.Dependencies{
		Logger:     appLogger.Logger,
		Executable: provisioner,
	}

	// Optional conversion history
	var dbClient *postgresql.Client
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		handlerDeps.Conversions = storage.NewStorage(dbClient)
		handlerDeps.Database = dbClient

		appLogger.Info("Database connection established")
	}

	// Optional conversion events
	var (
		rabbitClient *rabbitmq.Client
		publisher    events.Publisher
	)
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		publisher = events.NewRabbitPublisher(rabbitClient, appLogger.Logger)

		appLogger.Info("RabbitMQ connection established")
	}

	service, err := initConverter(cfg, provisioner, publisher, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize converter: %w", err)
	}
	handlerDeps.Converter = service

	// Initialize router
	r := initRouter(cfg.App.Environment, handlerDeps)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.String("delivery_mode", string(service.Mode())),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...",
			slog.String("signal", sig.String()),
		)
	case err := <-serverErr:
		appLogger.Error("Server failed to start",
			slog.Any("error", err),
		)
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
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

// initProvisioner creates the converter executable provisioner
func initProvisioner(cfg *config.ConverterConfig, logger *slog.Logger) (*provision.Provisioner, error) {
	return provision.New(provision.Config{
		Path:           cfg.ExecutablePath,
		DownloadURL:    cfg.DownloadURL,
		MinSizeBytes:   cfg.MinSizeBytes,
		MaxRedirects:   cfg.MaxRedirects,
		Timeout:        cfg.DownloadTimeout,
		ExpectedSHA256: cfg.ExpectedSHA256,
	}, logger)
}

// initConverter wires the process runner and the orchestrator
func initConverter(cfg *config.Config, provisioner *provision.Provisioner, publisher events.Publisher, logger *slog.Logger) (*converter.Service, error) {
	mode, err := domain.ParseDeliveryMode(cfg.Converter.DeliveryMode)
	if err != nil {
		return nil, err
	}

	if cfg.Converter.WorkDir != "" {
		if err := os.MkdirAll(cfg.Converter.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
	}

	runner := process.NewRunner(process.Config{
		StderrLines: cfg.Converter.StderrLines,
		KillGrace:   cfg.Converter.KillGracePeriod,
	}, logger)

	return converter.NewService(converter.Config{
		WorkDir:        cfg.Converter.WorkDir,
		Mode:           mode,
		JobTimeout:     cfg.Converter.JobTimeout,
		PublishTimeout: cfg.RabbitMQ.Publish.Timeout,
	}, provisioner, runner, publisher, logger), nil
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
		RetryAttempts:   cfg.RetryAttempts,
		RetryInterval:   cfg.RetryInterval,
		ConnectTimeout:  cfg.ConnectTimeout,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
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

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
