package recorder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-fetcher/internal/converter/events"
	"github.com/cuongbtq/media-fetcher/internal/recorder/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up RabbitMQ consumer with QoS and returns delivery channel
func (r *Recorder) setupConsumer() (<-chan amqp.Delivery, error) {
	// prefetch_count: number of unacknowledged messages per consumer
	if err := r.consumer.Qos(r.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	r.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", r.prefetchCount),
	)

	// Manual acknowledgment; the consumer tag is the worker ID
	deliveries, err := r.consumer.Consume(r.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	r.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", r.workerID),
		slog.String("queue", r.queueName),
	)

	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the worker pool.
// It returns when ctx is canceled or the delivery channel closes.
func (r *Recorder) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	r.logger.Info("Message dispatcher started",
		slog.String("worker_id", r.workerID),
	)
	defer close(r.messagesChan)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				r.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			ev, err := events.Decode(delivery.Body)
			if err != nil {
				r.logger.Error("Failed to decode conversion event",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// NACK without requeue - malformed messages should go to DLQ
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					r.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			msg := &domain.EventMessage{
				Event:    ev,
				Delivery: delivery,
			}

			select {
			case r.messagesChan <- msg:
				r.logger.Debug("Event dispatched to worker pool",
					slog.String("job_id", ev.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				r.logger.Info("Message dispatcher stopped while dispatching event")
				// NACK the message so it can be reprocessed
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					r.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
