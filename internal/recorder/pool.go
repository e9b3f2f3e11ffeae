package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-fetcher/internal/recorder/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (r *Recorder) spawnWorkerPool(ctx context.Context) {
	r.logger.Info("Spawning worker pool",
		slog.Int("concurrency", r.concurrency),
		slog.String("worker_id", r.workerID),
	)

	for i := 0; i < r.concurrency; i++ {
		r.wg.Add(1)
		go r.workerLoop(ctx, i)
	}

	r.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", r.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (r *Recorder) workerLoop(ctx context.Context, workerNum int) {
	defer r.wg.Done()

	workerName := fmt.Sprintf("%s-%d", r.workerID, workerNum)
	r.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-r.stopChan:
			r.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			r.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-r.messagesChan:
			if !ok {
				r.logger.Debug("Worker goroutine stopping - messagesChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}
			r.handleMessage(ctx, workerName, msg)
		}
	}
}

// handleMessage records one event and settles its delivery
func (r *Recorder) handleMessage(ctx context.Context, workerName string, msg *domain.EventMessage) {
	jobID := msg.Event.JobID
	err := r.processEvent(ctx, msg.Event)

	if err == nil || errors.Is(err, domain.ErrDuplicateEvent) {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			r.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", jobID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	r.logger.Error("Event processing failed",
		slog.String("worker_name", workerName),
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)

	requeue := shouldRequeue(err)
	if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
		r.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("job_id", jobID),
			slog.String("error", nackErr.Error()),
		)
		return
	}

	r.logger.Info("Message NACKed",
		slog.String("worker_name", workerName),
		slog.String("job_id", jobID),
		slog.Bool("requeue", requeue),
	)
}

// shouldRequeue determines if an event should be requeued based on the error type
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	// Requeue for transient/retryable errors
	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	// Default: don't requeue for unknown errors
	return false
}
