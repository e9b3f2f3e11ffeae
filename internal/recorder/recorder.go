package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/events"
	"github.com/cuongbtq/media-fetcher/internal/recorder/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ConversionStore persists conversion events
type ConversionStore interface {
	InsertConversion(ctx context.Context, ev *events.Event) error
}

// Consumer is the subset of the RabbitMQ client the recorder reads from
type Consumer interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds recorder configuration
type Config struct {
	Logger         *slog.Logger
	Store          ConversionStore
	Consumer       Consumer
	WorkerID       string
	QueueName      string
	Concurrency    int
	PrefetchCount  int
	ProcessTimeout time.Duration
}

// Recorder consumes conversion events and writes them to the database
type Recorder struct {
	logger         *slog.Logger
	store          ConversionStore
	consumer       Consumer
	workerID       string
	queueName      string
	concurrency    int
	prefetchCount  int
	processTimeout time.Duration
	messagesChan   chan *domain.EventMessage
	wg             sync.WaitGroup
	stopChan       chan struct{}
	stopOnce       sync.Once
}

// NewRecorder creates a new recorder instance
func NewRecorder(cfg *Config) *Recorder {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency * 2
	}
	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Recorder{
		logger:         cfg.Logger,
		store:          cfg.Store,
		consumer:       cfg.Consumer,
		workerID:       cfg.WorkerID,
		queueName:      cfg.QueueName,
		concurrency:    concurrency,
		prefetchCount:  prefetch,
		processTimeout: timeout,
		messagesChan:   make(chan *domain.EventMessage, concurrency),
		stopChan:       make(chan struct{}),
	}
}

// Start subscribes to the queue and records events until ctx is canceled
func (r *Recorder) Start(ctx context.Context) error {
	r.logger.Info("Starting recorder",
		slog.String("worker_id", r.workerID),
		slog.Int("concurrency", r.concurrency),
		slog.Duration("process_timeout", r.processTimeout),
	)

	deliveries, err := r.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	r.spawnWorkerPool(ctx)
	r.startMessageDispatcher(ctx, deliveries)

	r.logger.Info("Recorder dispatcher exited",
		slog.String("worker_id", r.workerID),
	)
	return nil
}

// Stop gracefully stops the recorder
func (r *Recorder) Stop() {
	r.logger.Info("Stopping recorder...")
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
	r.logger.Info("Recorder stopped")
}
