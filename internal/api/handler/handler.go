package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/media-fetcher/internal/api/model"
	"github.com/cuongbtq/media-fetcher/internal/api/storage"
	"github.com/cuongbtq/media-fetcher/internal/converter"
	"github.com/cuongbtq/media-fetcher/internal/converter/delivery"
	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
)

// Converter runs one conversion into a sink
type Converter interface {
	Convert(ctx context.Context, req domain.Request, sink delivery.Sink) (*converter.Outcome, error)
	Mode() domain.DeliveryMode
}

// ExecutableStatus reports the converter executable without provisioning it
type ExecutableStatus interface {
	Path() string
	Status() (*domain.Executable, error)
}

// ConversionReader reads recorded conversions
type ConversionReader interface {
	GetConversion(ctx context.Context, jobID string) (*model.Conversion, error)
	ListConversions(ctx context.Context, filter storage.ConversionFilter) ([]model.Conversion, error)
}

// HealthChecker is implemented by optional backing services
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Converter  Converter
	Executable ExecutableStatus
	// Conversions is nil when conversion history is disabled
	Conversions ConversionReader
	// Database is nil when no database is configured
	Database HealthChecker
}

// DownloadHandler handles conversion requests
type DownloadHandler struct {
	logger    *slog.Logger
	converter Converter
}

// NewDownloadHandler creates a new DownloadHandler instance
func NewDownloadHandler(deps *Dependencies) *DownloadHandler {
	return &DownloadHandler{
		logger:    deps.Logger,
		converter: deps.Converter,
	}
}

// ConversionHandler serves conversion history
type ConversionHandler struct {
	logger  *slog.Logger
	storage ConversionReader
}

// NewConversionHandler creates a new ConversionHandler instance
func NewConversionHandler(deps *Dependencies) *ConversionHandler {
	return &ConversionHandler{
		logger:  deps.Logger,
		storage: deps.Conversions,
	}
}

// SystemHandler serves health and metadata endpoints
type SystemHandler struct {
	logger     *slog.Logger
	converter  Converter
	executable ExecutableStatus
	database   HealthChecker
}

// NewSystemHandler creates a new SystemHandler instance
func NewSystemHandler(deps *Dependencies) *SystemHandler {
	return &SystemHandler{
		logger:     deps.Logger,
		converter:  deps.Converter,
		executable: deps.Executable,
		database:   deps.Database,
	}
}
