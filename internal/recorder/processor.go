package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-fetcher/internal/converter/events"
	"github.com/cuongbtq/media-fetcher/internal/recorder/domain"
)

// processEvent writes one conversion event to the store
func (r *Recorder) processEvent(ctx context.Context, ev *events.Event) error {
	r.logger.Debug("Processing conversion event",
		slog.String("job_id", ev.JobID),
		slog.String("type", string(ev.Type)),
	)

	if ev.OutputKind == "" || ev.Status == "" || ev.CompletedAt.IsZero() {
		return fmt.Errorf("%w: job %s is missing kind, status or completion time", domain.ErrInvalidPayload, ev.JobID)
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.processTimeout)
	defer cancel()

	if err := r.store.InsertConversion(storeCtx, ev); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			return err
		}
		// Database errors are treated as transient
		return domain.NewRetryableError(fmt.Errorf("failed to record conversion: %w", err))
	}

	return nil
}
