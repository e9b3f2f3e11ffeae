package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/api/domain"
	"github.com/cuongbtq/media-fetcher/internal/api/model"
	"github.com/cuongbtq/media-fetcher/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const conversionColumns = `
			job_id, event_id, source_reference, output_kind, delivery_mode,
			status, bytes_delivered, exit_code, error_kind, error_message,
			started_at, completed_at, recorded_at`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

func (s *Storage) GetConversion(ctx context.Context, jobID string) (*model.Conversion, error) {
	var conversion model.Conversion
	query := `
		SELECT` + conversionColumns + `
		FROM conversions
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &conversion, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConversionNotFound
		}
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}

	return &conversion, nil
}

type ConversionFilter struct {
	OutputKind string
	Status     string
	PageSize   int
	Cursor     *ConversionCursor
}

type ConversionCursor struct {
	CompletedAt time.Time
	JobID       string
}

func (s *Storage) ListConversions(ctx context.Context, filter ConversionFilter) ([]model.Conversion, error) {
	query, args := buildListQuery(filter)

	var conversions []model.Conversion
	err := s.db.SelectContext(ctx, &conversions, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}

	return conversions, nil
}

func buildListQuery(filter ConversionFilter) (string, []interface{}) {
	query := `
        SELECT` + conversionColumns + `
        FROM conversions
        WHERE 1=1
    `
	args := []interface{}{}
	argIdx := 1

	if filter.OutputKind != "" {
		query += fmt.Sprintf(" AND output_kind = $%d", argIdx)
		args = append(args, filter.OutputKind)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (completed_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CompletedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Newest first; job_id breaks ties so pages never overlap
	query += " ORDER BY completed_at DESC, job_id DESC"

	// One extra row tells the handler whether another page exists
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}
