package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/config"
	"github.com/cuongbtq/media-fetcher/internal/recorder"
	"github.com/cuongbtq/media-fetcher/internal/recorder/storage"
	"github.com/cuongbtq/media-fetcher/shared/logger"
	"github.com/cuongbtq/media-fetcher/shared/postgresql"
	"github.com/cuongbtq/media-fetcher/shared/rabbitmq"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var errDeliveriesClosed = errors.New("delivery channel closed by broker")

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
	defaultConfigPath := os.Getenv("RECORDER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/recorder-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateRecorderConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger = appLogger.WithAttrs(
		slog.String("service", "recorder-service"),
		slog.String("environment", cfg.App.Environment),
	)

	appLogger.Info("Starting recorder service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureSchema(schemaCtx)
	schemaCancel()
	if err != nil {
		return err
	}

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	// Create recorder instance
	recorderInstance := recorder.NewRecorder(&recorder.Config{
		Logger:         appLogger.Logger,
		Store:          store,
		Consumer:       rabbitClient,
		WorkerID:       "recorder-" + uuid.NewString()[:8],
		QueueName:      cfg.RabbitMQ.Queue.Name,
		Concurrency:    cfg.Recorder.Concurrency,
		PrefetchCount:  cfg.RabbitMQ.Consumer.PrefetchCount,
		ProcessTimeout: cfg.Recorder.ProcessTimeout,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start recorder in a goroutine
	errChan := make(chan error, 1)
	go func() {
		err := recorderInstance.Start(ctx)
		if err == nil && ctx.Err() == nil {
			err = errDeliveriesClosed
		}
		errChan <- err
	}()

	appLogger.Info("Recorder service started successfully")

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
		appLogger.Error("Recorder error",
			slog.Any("error", runErr),
		)
	}

	// Cancel context to stop the dispatcher
	cancel()

	// Give in-flight events time to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Recorder.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		recorderInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Recorder stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Recorder shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Recorder service shutdown complete")
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
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
