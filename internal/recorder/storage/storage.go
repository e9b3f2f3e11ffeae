package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-fetcher/internal/converter/events"
	"github.com/cuongbtq/media-fetcher/internal/recorder/domain"
	"github.com/jmoiron/sqlx"
)

const schema = `
	CREATE TABLE IF NOT EXISTS conversions (
		job_id            UUID PRIMARY KEY,
		event_id          UUID NOT NULL,
		source_reference  TEXT NOT NULL,
		output_kind       TEXT NOT NULL,
		delivery_mode     TEXT NOT NULL,
		status            TEXT NOT NULL,
		bytes_delivered   BIGINT NOT NULL DEFAULT 0,
		exit_code         INTEGER,
		error_kind        TEXT,
		error_message     TEXT,
		started_at        TIMESTAMPTZ NOT NULL,
		completed_at      TIMESTAMPTZ NOT NULL,
		recorded_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_conversions_completed_at ON conversions (completed_at DESC, job_id DESC);
	CREATE INDEX IF NOT EXISTS idx_conversions_status ON conversions (status);
`

// Storage handles all database operations for the recorder
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the conversions table when it is missing
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	s.logger.Info("Conversions schema ready")
	return nil
}

// InsertConversion records one conversion event.
// A second event for the same job returns ErrDuplicateEvent.
func (s *Storage) InsertConversion(ctx context.Context, ev *events.Event) error {
	query := `
		INSERT INTO conversions (
			job_id, event_id, source_reference, output_kind, delivery_mode,
			status, bytes_delivered, exit_code, error_kind, error_message,
			started_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, NULLIF($9, ''), NULLIF($10, ''),
			$11, $12
		)
		ON CONFLICT (job_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		ev.JobID,
		ev.EventID,
		ev.SourceReference,
		ev.OutputKind,
		ev.DeliveryMode,
		ev.Status,
		ev.BytesDelivered,
		ev.ExitCode,
		ev.ErrorKind,
		ev.ErrorMessage,
		ev.StartedAt,
		ev.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Conversion already recorded",
			slog.String("job_id", ev.JobID),
		)
		return domain.ErrDuplicateEvent
	}

	s.logger.Info("Conversion recorded",
		slog.String("job_id", ev.JobID),
		slog.String("status", ev.Status),
	)

	return nil
}
